package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/soulkindred/kindred/internal/embedding"
	"github.com/soulkindred/kindred/internal/generation"
	"github.com/soulkindred/kindred/internal/observability"
	"github.com/soulkindred/kindred/internal/persona"
	"github.com/soulkindred/kindred/internal/policy"
	"github.com/soulkindred/kindred/internal/store"
)

// contextSeparator keeps distinct memories distinguishable in the prompt.
const contextSeparator = "\n---\n"

// Generator produces an assistant reply; generation.Chain is the production
// implementation.
type Generator interface {
	StreamReply(ctx context.Context, req generation.Request, onDelta generation.DeltaHandler) (generation.Reply, error)
}

// Options tune the pipeline.
type Options struct {
	RetrievalK            int
	ContextPerMemoryChars int
	// DegradeOnRetrievalOutage proceeds with empty context when the vector
	// search fails, instead of failing the invocation. Embedding and
	// generation failures always abort with nothing persisted.
	DegradeOnRetrievalOutage bool
	DefaultPersonaID         string
}

// Result is the outcome of one successful sendMessage invocation.
type Result struct {
	Text             string `json:"text"`
	Strategy         string `json:"strategy,omitempty"`
	UserMessageID    string `json:"user_message_id,omitempty"`
	AssistantMessage string `json:"assistant_message_id,omitempty"`
}

// Pipeline runs the embed, retrieve, assemble, generate, persist flow for
// one user message per invocation. All collaborators are injected; the
// pipeline holds no cross-invocation state beyond the ownership cache.
type Pipeline struct {
	store     store.Store
	embedder  embedding.Provider
	generator Generator
	metrics   *observability.Metrics
	opts      Options

	// owners caches conversation records for the precondition check. A
	// conversation's owner never changes, so entries cannot go stale.
	owners *ristretto.Cache
}

func New(st store.Store, embedder embedding.Provider, generator Generator, metrics *observability.Metrics, opts Options) (*Pipeline, error) {
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = 3
	}
	if opts.ContextPerMemoryChars <= 0 {
		opts.ContextPerMemoryChars = 500
	}
	if opts.DefaultPersonaID == "" {
		opts.DefaultPersonaID = "warm"
	}

	owners, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("init ownership cache: %w", err)
	}

	return &Pipeline{
		store:     st,
		embedder:  embedder,
		generator: generator,
		metrics:   metrics,
		opts:      opts,
		owners:    owners,
	}, nil
}

// SendMessage runs one full pipeline invocation. Cheapest checks run first:
// validation and ownership abort before any provider is called. onDelta may
// be nil; when set it receives streaming reply fragments.
func (p *Pipeline) SendMessage(ctx context.Context, userID, conversationID, content, personaID string, onDelta generation.DeltaHandler) (Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Result{}, validationError("message content is required")
	}
	if strings.TrimSpace(conversationID) == "" {
		return Result{}, validationError("conversation id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return Result{}, validationError("user id is required")
	}

	conv, err := p.conversationFor(ctx, conversationID)
	if err != nil {
		return Result{}, err
	}
	if conv.UserID != userID {
		return Result{}, permissionError("conversation belongs to another user")
	}

	queryVec, err := p.embed(ctx, content)
	if err != nil {
		return Result{}, err
	}

	memoryIDs, err := p.retrieve(ctx, userID, queryVec)
	if err != nil {
		return Result{}, err
	}
	contextBlock := p.assembleContext(ctx, userID, memoryIDs)

	reply, err := p.generate(ctx, conv, content, personaID, contextBlock, onDelta)
	if err != nil {
		return Result{}, err
	}

	userMsg, assistantMsg, err := p.persist(ctx, conv, content, reply.Text)
	if err != nil {
		return Result{}, err
	}

	log.Printf("chat turn complete: conversation=%s strategy=%s memories=%d content=%q",
		conv.ID, reply.Strategy, len(memoryIDs), policy.SafeForLog(content))

	return Result{
		Text:             reply.Text,
		Strategy:         reply.Strategy,
		UserMessageID:    userMsg.ID,
		AssistantMessage: assistantMsg.ID,
	}, nil
}

// Remember captures a new memory for later retrieval: embed the text, then
// store it tagged with the embedding model.
func (p *Pipeline) Remember(ctx context.Context, userID, text string) (store.Memory, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Memory{}, validationError("memory text is required")
	}
	if strings.TrimSpace(userID) == "" {
		return store.Memory{}, validationError("user id is required")
	}

	vec, err := p.embed(ctx, text)
	if err != nil {
		return store.Memory{}, err
	}

	mem, err := p.store.AddMemory(ctx, store.Memory{
		UserID:         userID,
		Text:           text,
		Embedding:      vec,
		EmbeddingModel: p.embedder.Model(),
	})
	if err != nil {
		return store.Memory{}, providerError("store", err)
	}
	return mem, nil
}

func (p *Pipeline) conversationFor(ctx context.Context, conversationID string) (store.Conversation, error) {
	if cached, ok := p.owners.Get(conversationID); ok {
		if conv, ok := cached.(store.Conversation); ok {
			return conv, nil
		}
	}

	conv, err := p.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Conversation{}, notFoundError("conversation not found")
		}
		return store.Conversation{}, providerError("store", err)
	}
	p.owners.Set(conversationID, conv, 1)
	return conv, nil
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := p.embedder.Embed(ctx, text)
	p.metrics.ObserveStage("embedding", time.Since(start))
	if err != nil {
		p.metrics.ProviderErrors.WithLabelValues("embedding").Inc()
		return nil, providerError("embedding", err)
	}
	return vec, nil
}

// retrieve returns ids of the nearest memories. On an outage the configured
// policy either fails the invocation or degrades to an empty block; context
// is never fabricated.
func (p *Pipeline) retrieve(ctx context.Context, userID string, queryVec []float32) ([]string, error) {
	start := time.Now()
	ids, err := p.store.SearchMemories(ctx, userID, queryVec, p.embedder.Model(), p.opts.RetrievalK)
	p.metrics.ObserveStage("retrieval", time.Since(start))
	if err != nil {
		p.metrics.ProviderErrors.WithLabelValues("retrieval").Inc()
		if !p.opts.DegradeOnRetrievalOutage {
			return nil, providerError("retrieval", err)
		}
		p.metrics.RetrievalDegraded.Inc()
		log.Printf("retrieval degraded to empty context: %v", err)
		return nil, nil
	}
	return ids, nil
}

func (p *Pipeline) assembleContext(ctx context.Context, userID string, memoryIDs []string) string {
	if len(memoryIDs) == 0 {
		return ""
	}

	start := time.Now()
	defer func() {
		p.metrics.ObserveStage("assembly", time.Since(start))
	}()

	texts := make([]string, 0, len(memoryIDs))
	for _, id := range memoryIDs {
		mem, err := p.store.GetMemory(ctx, userID, id)
		if err != nil {
			// Raced-deleted or otherwise unavailable records are skipped.
			if !errors.Is(err, store.ErrNotFound) {
				log.Printf("skipping memory %s: %v", id, err)
			}
			continue
		}
		text := strings.TrimSpace(mem.Text)
		if text == "" {
			continue
		}
		if len(text) > p.opts.ContextPerMemoryChars {
			text = text[:p.opts.ContextPerMemoryChars]
		}
		texts = append(texts, text)
	}
	return strings.Join(texts, contextSeparator)
}

func (p *Pipeline) generate(ctx context.Context, conv store.Conversation, content, personaID, contextBlock string, onDelta generation.DeltaHandler) (generation.Reply, error) {
	if strings.TrimSpace(personaID) == "" {
		personaID = p.opts.DefaultPersonaID
	}
	profile := persona.ProfileFor(personaID)

	start := time.Now()
	reply, err := p.generator.StreamReply(ctx, generation.Request{
		UserID:         conv.UserID,
		ConversationID: conv.ID,
		SystemPrompt:   persona.SystemPrompt(profile, contextBlock),
		UserText:       content,
	}, onDelta)
	p.metrics.ObserveStage("generation", time.Since(start))
	if err != nil {
		p.metrics.ProviderErrors.WithLabelValues("generation").Inc()
		return generation.Reply{}, providerError("generation", err)
	}
	if strings.TrimSpace(reply.Text) == "" {
		p.metrics.ProviderErrors.WithLabelValues("generation").Inc()
		return generation.Reply{}, providerError("generation", errors.New("provider returned an empty reply"))
	}
	p.metrics.GenerationServedBy.WithLabelValues(reply.Strategy).Inc()
	return reply, nil
}

func (p *Pipeline) persist(ctx context.Context, conv store.Conversation, content, replyText string) (store.Message, store.Message, error) {
	start := time.Now()
	userMsg, assistantMsg, err := p.store.AppendTurn(ctx, store.Turn{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		UserText:       content,
		AssistantText:  replyText,
	})
	p.metrics.ObserveStage("persistence", time.Since(start))
	if err != nil {
		if errors.Is(err, store.ErrPartialTurn) {
			return store.Message{}, store.Message{}, consistencyError(err)
		}
		return store.Message{}, store.Message{}, providerError("store", err)
	}
	p.metrics.TurnsPersisted.Inc()
	return userMsg, assistantMsg, nil
}
