package embedding

import (
	"context"
	"fmt"
	"strings"
)

// Provider converts text to a fixed-dimension embedding vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model identifies which embedder produced the vectors. Stored alongside
	// each memory so retrieval only compares vectors from the same model.
	Model() string
	Dimensions() int
}

// Config controls provider construction.
type Config struct {
	Mode   string
	URL    string
	APIKey string
	Model  string
	Dim    int
}

func NewProvider(cfg Config) (Provider, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewHTTPProvider(cfg.URL, cfg.APIKey, cfg.Model, cfg.Dim), nil
		}
		return NewMockProvider(cfg.Dim), nil
	case "http":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("embedding API key is required for http mode")
		}
		return NewHTTPProvider(cfg.URL, cfg.APIKey, cfg.Model, cfg.Dim), nil
	case "mock":
		return NewMockProvider(cfg.Dim), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider mode %q", cfg.Mode)
	}
}
