package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists companion data in PostgreSQL with pgvector
// similarity search over memories.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			identity TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			preferences JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id),
			title TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			seq BIGSERIAL,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			user_id TEXT NOT NULL,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d),
			embedding_model TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages (conversation_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations (user_id, started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories (user_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, identity, name, email, preferences, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb), $6, $6)
		 ON CONFLICT (identity) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
			email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE users.email END,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, identity, name, email, created_at, updated_at`,
		u.ID, u.Identity, u.Name, u.Email, u.Preferences, now,
	)
	var out User
	if err := row.Scan(&out.ID, &out.Identity, &out.Name, &out.Email, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, identity, name, email, created_at, updated_at FROM users WHERE id=$1`, id)
	var out User
	if err := row.Scan(&out.ID, &out.Identity, &out.Name, &out.Email, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, userID, title string) (Conversation, error) {
	c := Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, user_id, title, started_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.UserID, c.Title, c.StartedAt,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, title, started_at FROM conversations WHERE id=$1`, id)
	var c Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.StartedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, title, started_at FROM conversations WHERE user_id=$1 ORDER BY started_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.StartedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return out, nil
}

// AppendTurn writes both halves of a turn inside a single transaction, so a
// failure between the two inserts leaves no orphaned user message.
func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn) (Message, Message, error) {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("begin turn tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range []Message{userMsg, assistantMsg} {
		_, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, user_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.ConversationID, m.UserID, m.Role, m.Content, m.CreatedAt,
		)
		if err != nil {
			return Message{}, Message{}, fmt.Errorf("insert %s message: %w", m.Role, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, Message{}, fmt.Errorf("commit turn tx: %w", err)
	}
	return userMsg, assistantMsg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, role, content, created_at
		 FROM messages WHERE conversation_id=$1 ORDER BY seq`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddMemory(ctx context.Context, m Memory) (Memory, error) {
	if len(m.Embedding) != s.dim {
		return Memory{}, fmt.Errorf("memory embedding has %d dims, store expects %d: %w",
			len(m.Embedding), s.dim, ErrDimensionMismatch)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (id, user_id, text, embedding, embedding_model, created_at)
		 VALUES ($1, $2, $3, $4::vector, $5, $6)`,
		m.ID, m.UserID, m.Text, vectorLiteral(m.Embedding), m.EmbeddingModel, m.CreatedAt,
	)
	if err != nil {
		return Memory{}, fmt.Errorf("add memory: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) GetMemory(ctx context.Context, userID, id string) (Memory, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, text, embedding_model, created_at
		 FROM memories WHERE id=$1 AND user_id=$2`, id, userID)
	var m Memory
	if err := row.Scan(&m.ID, &m.UserID, &m.Text, &m.EmbeddingModel, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Memory{}, ErrNotFound
		}
		return Memory{}, fmt.Errorf("get memory: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMemories(ctx context.Context, userID string, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, text, embedding_model, created_at
		 FROM memories WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		var m Memory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Text, &m.EmbeddingModel, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SearchMemories(ctx context.Context, userID string, query []float32, model string, k int) ([]string, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("query embedding has %d dims, store expects %d: %w",
			len(query), s.dim, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil
	}

	// pgvector <=> is cosine distance; smallest distance first.
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM memories
		 WHERE user_id=$1 AND embedding_model=$2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $3::vector
		 LIMIT $4`,
		userID, model, vectorLiteral(query), k)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan memory id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// vectorLiteral renders an embedding in pgvector's input format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
