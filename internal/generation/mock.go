package generation

import (
	"context"
	"fmt"
	"strings"
)

// MockStrategy provides deterministic local replies when no provider is
// configured.
type MockStrategy struct{}

func NewMockStrategy() *MockStrategy { return &MockStrategy{} }

func (s *MockStrategy) Name() string { return "mock" }

func (s *MockStrategy) StreamReply(ctx context.Context, req Request, onDelta DeltaHandler) (Reply, error) {
	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return Reply{}, err
		}
	}
	return Reply{Text: text}, nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(req.UserText)
	if base == "" {
		base = "I am here."
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return fmt.Sprintf("I hear you: %s", base)
	}
	return fmt.Sprintf("I hear you: %s\nI'm holding what you've shared with me before.", base)
}
