package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is the normalized request sent to a text-generation provider.
type Request struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	SystemPrompt   string `json:"system_prompt"`
	UserText       string `json:"user_text"`
}

// Reply is the final reply after streaming deltas. Strategy names which
// strategy in the chain served the request.
type Reply struct {
	Text     string `json:"text"`
	Strategy string `json:"strategy,omitempty"`
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Strategy produces an assistant reply for one request. Implementations are
// tried in order by Chain until one succeeds.
type Strategy interface {
	Name() string
	StreamReply(ctx context.Context, req Request, onDelta DeltaHandler) (Reply, error)
}

// Config controls strategy-chain construction.
type Config struct {
	Mode               string
	HTTPURL            string
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicMaxTokens int
}

// NewChainFromConfig builds the ordered strategy list for the configured
// mode. In auto mode the cloud endpoint is preferred, with the direct LLM
// client behind it, matching the app's cloud-function-then-direct fallback.
func NewChainFromConfig(cfg Config) (*Chain, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		var strategies []Strategy
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			strategies = append(strategies, NewHTTPStrategy(cfg.HTTPURL))
		}
		if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
			strategies = append(strategies, NewAnthropicStrategy(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens))
		}
		if len(strategies) == 0 {
			strategies = append(strategies, NewMockStrategy())
		}
		return NewChain(strategies...), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("generation HTTP url is required for http mode")
		}
		return NewChain(NewHTTPStrategy(cfg.HTTPURL)), nil
	case "anthropic":
		if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
			return nil, errors.New("anthropic API key is required for anthropic mode")
		}
		return NewChain(NewAnthropicStrategy(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicMaxTokens)), nil
	case "mock":
		return NewChain(NewMockStrategy()), nil
	default:
		return nil, fmt.Errorf("unsupported generation mode %q", cfg.Mode)
	}
}
