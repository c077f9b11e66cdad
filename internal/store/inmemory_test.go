package store

import (
	"context"
	"errors"
	"testing"
)

func TestAppendTurnOrdersPair(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(4)

	u, err := s.UpsertUser(ctx, User{Identity: "tok-1", Name: "Ada"})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	c, err := s.CreateConversation(ctx, u.ID, "evening check-in")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	userMsg, assistantMsg, err := s.AppendTurn(ctx, Turn{
		ConversationID: c.ID,
		UserID:         u.ID,
		UserText:       "I feel anxious about tomorrow",
		AssistantText:  "That sounds heavy. Want to talk through it?",
	})
	if err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if assistantMsg.CreatedAt.Before(userMsg.CreatedAt) {
		t.Fatalf("assistant timestamp %v before user timestamp %v", assistantMsg.CreatedAt, userMsg.CreatedAt)
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Fatalf("roles = %q,%q, want user,assistant", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].Content != "I feel anxious about tomorrow" {
		t.Fatalf("user content round-trip = %q", msgs[0].Content)
	}
	if msgs[0].ConversationID != c.ID || msgs[1].ConversationID != c.ID {
		t.Fatalf("conversation association lost: %q, %q", msgs[0].ConversationID, msgs[1].ConversationID)
	}
	if msgs[0].UserID != u.ID || msgs[1].UserID != u.ID {
		t.Fatalf("user association lost: %q, %q", msgs[0].UserID, msgs[1].UserID)
	}
}

func TestAppendTurnUnknownConversation(t *testing.T) {
	s := NewMemStore(4)
	_, _, err := s.AppendTurn(context.Background(), Turn{ConversationID: "missing", UserID: "u"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("AppendTurn() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertUserKeepsIdentityStable(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(4)

	first, err := s.UpsertUser(ctx, User{Identity: "tok-1", Name: "Ada"})
	if err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	second, err := s.UpsertUser(ctx, User{Identity: "tok-1", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("UpsertUser() second error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("user id changed on upsert: %q -> %q", first.ID, second.ID)
	}
	if second.Name != "Ada" {
		t.Fatalf("Name = %q, want preserved %q", second.Name, "Ada")
	}
	if second.Email != "ada@example.com" {
		t.Fatalf("Email = %q, want updated", second.Email)
	}
}

func TestSearchMemoriesUnderK(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(4)

	if _, err := s.AddMemory(ctx, Memory{
		UserID:         "u1",
		Text:           "work deadlines have been stressful",
		Embedding:      []float32{1, 0, 0, 0},
		EmbeddingModel: "test-model",
	}); err != nil {
		t.Fatalf("AddMemory() error = %v", err)
	}

	ids, err := s.SearchMemories(ctx, "u1", []float32{1, 0, 0, 0}, "test-model", 3)
	if err != nil {
		t.Fatalf("SearchMemories() error = %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("len(ids) = %d, want 1 (fewer than k is not an error)", len(ids))
	}
}

func TestSearchMemoriesZeroMemories(t *testing.T) {
	s := NewMemStore(4)
	ids, err := s.SearchMemories(context.Background(), "nobody", []float32{0, 1, 0, 0}, "test-model", 3)
	if err != nil {
		t.Fatalf("SearchMemories() error = %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("len(ids) = %d, want 0", len(ids))
	}
}

func TestSearchMemoriesCrossTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(4)

	mine, err := s.AddMemory(ctx, Memory{
		UserID:         "u1",
		Text:           "my memory",
		Embedding:      []float32{1, 0, 0, 0},
		EmbeddingModel: "test-model",
	})
	if err != nil {
		t.Fatalf("AddMemory(u1) error = %v", err)
	}
	theirs, err := s.AddMemory(ctx, Memory{
		UserID:         "u2",
		Text:           "their memory",
		Embedding:      []float32{1, 0, 0, 0},
		EmbeddingModel: "test-model",
	})
	if err != nil {
		t.Fatalf("AddMemory(u2) error = %v", err)
	}

	ids, err := s.SearchMemories(ctx, "u1", []float32{1, 0, 0, 0}, "test-model", 3)
	if err != nil {
		t.Fatalf("SearchMemories() error = %v", err)
	}
	for _, id := range ids {
		if id == theirs.ID {
			t.Fatalf("search returned another user's memory %q", id)
		}
	}
	if len(ids) != 1 || ids[0] != mine.ID {
		t.Fatalf("ids = %v, want exactly [%s]", ids, mine.ID)
	}
}

func TestSearchMemoriesFiltersEmbeddingModel(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore(4)

	if _, err := s.AddMemory(ctx, Memory{
		UserID:         "u1",
		Text:           "old generation vector",
		Embedding:      []float32{0, 1, 0, 0},
		EmbeddingModel: "model-v1",
	}); err != nil {
		t.Fatalf("AddMemory() error = %v", err)
	}

	ids, err := s.SearchMemories(ctx, "u1", []float32{0, 1, 0, 0}, "model-v2", 3)
	if err != nil {
		t.Fatalf("SearchMemories() error = %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids = %v, want none for mismatched model tag", ids)
	}
}

func TestAddMemoryRejectsWrongDimension(t *testing.T) {
	s := NewMemStore(4)
	_, err := s.AddMemory(context.Background(), Memory{
		UserID:         "u1",
		Text:           "bad vector",
		Embedding:      []float32{1, 2},
		EmbeddingModel: "test-model",
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("AddMemory() error = %v, want ErrDimensionMismatch", err)
	}
}
