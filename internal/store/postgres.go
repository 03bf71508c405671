package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists users, messages and memories in PostgreSQL with
// pgvector. Similarity search goes through the match_memories function.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	if dim <= 0 {
		dim = 1536
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages (user_id, created_at);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL DEFAULT 'general',
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories (user_id, created_at DESC);`,
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION match_memories(
			query_embedding vector(%d),
			match_user_id TEXT,
			match_count INT
		)
		RETURNS TABLE (id TEXT, user_id TEXT, content TEXT, memory_type TEXT, created_at TIMESTAMPTZ, similarity FLOAT)
		LANGUAGE sql STABLE AS $$
			SELECT m.id, m.user_id, m.content, m.memory_type, m.created_at,
				1 - (m.embedding <=> query_embedding) AS similarity
			FROM memories m
			WHERE m.user_id = match_user_id AND m.embedding IS NOT NULL
			ORDER BY m.embedding <=> query_embedding
			LIMIT match_count;
		$$;`, dim),
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) GetOrCreateUser(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (username) DO NOTHING`,
		uuid.NewString(), username, time.Now().UTC(),
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	var u User
	err = s.pool.QueryRow(ctx,
		`SELECT id, username, created_at FROM users WHERE username=$1`,
		username,
	).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) SaveMessage(ctx context.Context, userID, role, content string) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, user_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM messages WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	// Oldest first for display and prompt order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) SaveMemory(ctx context.Context, record MemoryRecord) (MemoryRecord, error) {
	record = normalizeMemory(record)

	var embedding any
	if len(record.Embedding) > 0 {
		embedding = vectorLiteral(record.Embedding)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (id, user_id, content, memory_type, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5::text::vector, $6)`,
		record.ID,
		record.UserID,
		record.Content,
		record.MemoryType,
		embedding,
		record.CreatedAt,
	)
	if err != nil {
		return MemoryRecord{}, fmt.Errorf("save memory: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) SearchMemories(ctx context.Context, userID string, embedding []float32, limit int) ([]MemoryRecord, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, memory_type, created_at
		 FROM match_memories($1::text::vector, $2, $3)`,
		vectorLiteral(embedding),
		userID,
		limit,
	)
	if err != nil {
		s.logger.Warn("memory search failed", "user_id", userID, "err", err)
		return nil, nil
	}
	defer rows.Close()

	var items []MemoryRecord
	for rows.Next() {
		var r MemoryRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Content, &r.MemoryType, &r.CreatedAt); err != nil {
			s.logger.Warn("memory search scan failed", "user_id", userID, "err", err)
			return nil, nil
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("memory search iterate failed", "user_id", userID, "err", err)
		return nil, nil
	}
	return items, nil
}

func (s *PostgresStore) GetAllMemories(ctx context.Context, userID string, limit int) ([]MemoryRecord, error) {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, content, memory_type, created_at
		 FROM memories WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	items := make([]MemoryRecord, 0, limit)
	for rows.Next() {
		var r MemoryRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.Content, &r.MemoryType, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
