package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicStrategy calls the Anthropic API directly, used when the hosted
// endpoint is unavailable or not configured.
type AnthropicStrategy struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicStrategy(apiKey, model string, maxTokens int) *AnthropicStrategy {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicStrategy{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (s *AnthropicStrategy) Name() string { return "anthropic" }

func (s *AnthropicStrategy) StreamReply(ctx context.Context, req Request, onDelta DeltaHandler) (Reply, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(s.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserText)),
		},
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
	}

	var msg *anthropic.Message
	var err error
	if onDelta != nil {
		msg, err = s.streamMessage(ctx, params, onDelta)
	} else {
		msg, err = s.client.Messages.New(ctx, params)
	}
	if err != nil {
		return Reply{}, fmt.Errorf("anthropic api: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return Reply{Text: text.String()}, nil
}

func (s *AnthropicStrategy) streamMessage(ctx context.Context, params anthropic.MessageNewParams, onDelta DeltaHandler) (*anthropic.Message, error) {
	stream := s.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate stream event: %w", err)
		}

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := onDelta(delta.Text); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}
