package store

import (
	"context"
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrPartialTurn reports a turn whose user message was persisted without
	// its assistant reply. Stores with atomic turn writes never return it;
	// it exists so non-atomic backends can surface the condition instead of
	// leaving the conversation silently inconsistent.
	ErrPartialTurn       = errors.New("turn partially persisted")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// User is an authenticated person, created on first authenticated request.
type User struct {
	ID          string            `json:"id"`
	Identity    string            `json:"identity"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Preferences map[string]string `json:"preferences,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Conversation scopes an ordered sequence of messages to one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
}

// Message is one turn half. UserID is denormalized from the conversation
// for query convenience.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Memory is a retained fact usable as retrieval context. EmbeddingModel tags
// which embedder produced the vector so a provider change cannot silently
// corrupt similarity search.
type Memory struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is a user message and its assistant reply, persisted as one unit.
type Turn struct {
	ConversationID string
	UserID         string
	UserText       string
	AssistantText  string
}

// Store persists users, conversations, messages, and memories, and serves
// vector similarity search over memories.
type Store interface {
	UpsertUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)

	CreateConversation(ctx context.Context, userID, title string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// AppendTurn persists the user and assistant messages atomically, in
	// that order. Either both messages exist afterwards or neither does.
	AppendTurn(ctx context.Context, turn Turn) (userMsg, assistantMsg Message, err error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	AddMemory(ctx context.Context, m Memory) (Memory, error)
	GetMemory(ctx context.Context, userID, id string) (Memory, error)
	ListMemories(ctx context.Context, userID string, limit int) ([]Memory, error)
	// SearchMemories returns ids of the k memories nearest to the query
	// vector, scoped to the given user and embedding model tag. Fewer than
	// k stored memories is not an error.
	SearchMemories(ctx context.Context, userID string, query []float32, model string, k int) ([]string, error)

	Close() error
}
