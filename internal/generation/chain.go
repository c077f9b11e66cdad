package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Chain tries each strategy in order until one succeeds. The serving
// strategy's name is recorded on the reply for observability.
type Chain struct {
	strategies []Strategy
}

func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Strategies returns the configured order, primary first.
func (c *Chain) Strategies() []Strategy {
	if c == nil {
		return nil
	}
	return c.strategies
}

func (c *Chain) StreamReply(ctx context.Context, req Request, onDelta DeltaHandler) (Reply, error) {
	if c == nil || len(c.strategies) == 0 {
		return Reply{}, errors.New("generation chain has no strategies")
	}

	var failures []string
	for _, strategy := range c.strategies {
		reply, err := strategy.StreamReply(ctx, req, onDelta)
		if err == nil {
			reply.Strategy = strategy.Name()
			return reply, nil
		}
		// Caller cancellation is not a strategy failure; stop immediately.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Reply{}, err
		}
		failures = append(failures, fmt.Sprintf("%s: %v", strategy.Name(), err))
	}

	return Reply{}, fmt.Errorf("all generation strategies failed: %s", strings.Join(failures, "; "))
}
