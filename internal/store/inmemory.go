package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

// MemStore is an in-process store for local/dev use. Documents live in maps;
// memory vectors are indexed in chromem-go, an embedded vector database,
// with one collection per user for tenant isolation.
type MemStore struct {
	mu            sync.RWMutex
	dim           int
	usersByID     map[string]User
	userIDByIdent map[string]string
	conversations map[string]Conversation
	messages      map[string][]Message
	memories      map[string]map[string]Memory

	vdb         *chromem.DB
	collections map[string]*chromem.Collection
}

func NewMemStore(embeddingDim int) *MemStore {
	return &MemStore{
		dim:           embeddingDim,
		usersByID:     make(map[string]User),
		userIDByIdent: make(map[string]string),
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
		memories:      make(map[string]map[string]Memory),
		vdb:           chromem.NewDB(),
		collections:   make(map[string]*chromem.Collection),
	}
}

func (s *MemStore) UpsertUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.userIDByIdent[u.Identity]; ok {
		existing := s.usersByID[id]
		if u.Name != "" {
			existing.Name = u.Name
		}
		if u.Email != "" {
			existing.Email = u.Email
		}
		existing.UpdatedAt = now
		s.usersByID[id] = existing
		return existing, nil
	}

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	s.usersByID[u.ID] = u
	s.userIDByIdent[u.Identity] = u.ID
	return u, nil
}

func (s *MemStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemStore) CreateConversation(_ context.Context, userID, title string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		StartedAt: time.Now().UTC(),
	}
	s.conversations[c.ID] = c
	return c, nil
}

func (s *MemStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (s *MemStore) ListConversations(_ context.Context, userID string) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// AppendTurn appends both halves of a turn under one critical section, so
// readers never observe a user message without its reply.
func (s *MemStore) AppendTurn(_ context.Context, turn Turn) (Message, Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[turn.ConversationID]; !ok {
		return Message{}, Message{}, ErrNotFound
	}

	now := time.Now().UTC()
	userMsg := Message{
		ID:             uuid.NewString(),
		ConversationID: turn.ConversationID,
		UserID:         turn.UserID,
		Role:           RoleUser,
		Content:        turn.UserText,
		CreatedAt:      now,
	}
	assistantMsg := Message{
		ID:             uuid.NewString(),
		ConversationID: turn.ConversationID,
		UserID:         turn.UserID,
		Role:           RoleAssistant,
		Content:        turn.AssistantText,
		CreatedAt:      now,
	}
	s.messages[turn.ConversationID] = append(s.messages[turn.ConversationID], userMsg, assistantMsg)
	return userMsg, assistantMsg, nil
}

func (s *MemStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[conversationID]
	out := make([]Message, len(arr))
	copy(out, arr)
	return out, nil
}

func (s *MemStore) AddMemory(ctx context.Context, m Memory) (Memory, error) {
	if len(m.Embedding) != s.dim {
		return Memory{}, fmt.Errorf("memory embedding has %d dims, store expects %d: %w",
			len(m.Embedding), s.dim, ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	col, err := s.collectionForUser(m.UserID)
	if err != nil {
		return Memory{}, err
	}
	err = col.AddDocument(ctx, chromem.Document{
		ID:        m.ID,
		Content:   m.Text,
		Embedding: m.Embedding,
		Metadata: map[string]string{
			"user_id":         m.UserID,
			"embedding_model": m.EmbeddingModel,
		},
	})
	if err != nil {
		return Memory{}, fmt.Errorf("index memory: %w", err)
	}

	if s.memories[m.UserID] == nil {
		s.memories[m.UserID] = make(map[string]Memory)
	}
	s.memories[m.UserID][m.ID] = m
	return m, nil
}

func (s *MemStore) GetMemory(_ context.Context, userID, id string) (Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[userID][id]
	if !ok {
		return Memory{}, ErrNotFound
	}
	return m, nil
}

func (s *MemStore) ListMemories(_ context.Context, userID string, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Memory
	for _, m := range s.memories[userID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) SearchMemories(ctx context.Context, userID string, query []float32, model string, k int) ([]string, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("query embedding has %d dims, store expects %d: %w",
			len(query), s.dim, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	col, err := s.collectionForUser(userID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	where := map[string]string{"embedding_model": model}

	// chromem rejects nResults larger than the collection, so shrink until
	// the query fits. An empty collection yields no results, not an error.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, query, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query memory index: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *MemStore) Close() error { return nil }

// collectionForUser must be called with s.mu held.
func (s *MemStore) collectionForUser(userID string) (*chromem.Collection, error) {
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}
	col, err := s.vdb.CreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create memory collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
