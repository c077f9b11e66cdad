package chat

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures for the calling surface.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindPermission  Kind = "permission"
	KindProvider    Kind = "provider"
	KindConsistency Kind = "consistency"
)

// Error is a classified pipeline failure. Provider is set for KindProvider.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classification from err, or "" for unclassified
// errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Err: errors.New(msg)}
}

func notFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Err: errors.New(msg)}
}

func permissionError(msg string) error {
	return &Error{Kind: KindPermission, Err: errors.New(msg)}
}

func providerError(provider string, err error) error {
	return &Error{Kind: KindProvider, Provider: provider, Err: err}
}

func consistencyError(err error) error {
	return &Error{Kind: KindConsistency, Err: err}
}
