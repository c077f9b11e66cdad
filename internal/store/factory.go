package store

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise the
// in-process store.
func NewStore(ctx context.Context, databaseURL string, embeddingDim int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemStore(embeddingDim), nil
	}
	return NewPostgresStore(ctx, databaseURL, embeddingDim)
}
