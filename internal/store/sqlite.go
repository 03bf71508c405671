package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-node durable store. Embeddings are kept as JSON
// and ranked with Go-side cosine similarity, which is fine for the few
// hundred facts a single user accumulates.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS memories (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		memory_type TEXT NOT NULL DEFAULT 'general',
		embedding TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at)`,
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteMigrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migration failed on %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Mode() string { return "sqlite" }

func (s *SQLiteStore) GetOrCreateUser(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, username, created_at) VALUES (?, ?, ?)`,
		uuid.NewString(), username, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	var (
		u  User
		ts int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &ts)
	if err != nil {
		return User{}, fmt.Errorf("select user: %w", err)
	}
	u.CreatedAt = time.Unix(0, ts).UTC()
	return u, nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, userID, role, content string) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Message{}, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at FROM (
			SELECT seq, id, user_id, role, content, created_at FROM messages
			WHERE user_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?
		) ORDER BY created_at ASC, seq ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var items []Message
	for rows.Next() {
		var (
			m  Message
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.CreatedAt = time.Unix(0, ts).UTC()
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) SaveMemory(ctx context.Context, record MemoryRecord) (MemoryRecord, error) {
	record = normalizeMemory(record)

	var embedding sql.NullString
	if len(record.Embedding) > 0 {
		raw, err := json.Marshal(record.Embedding)
		if err != nil {
			return MemoryRecord{}, fmt.Errorf("marshal embedding: %w", err)
		}
		embedding = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, content, memory_type, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.UserID, record.Content, record.MemoryType, embedding, record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return MemoryRecord{}, fmt.Errorf("save memory: %w", err)
	}
	return record, nil
}

func (s *SQLiteStore) SearchMemories(ctx context.Context, userID string, embedding []float32, limit int) ([]MemoryRecord, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	records, err := s.queryMemories(ctx,
		`SELECT id, user_id, content, memory_type, embedding, created_at FROM memories
		 WHERE user_id = ? AND embedding IS NOT NULL ORDER BY created_at DESC, seq DESC`,
		userID,
	)
	if err != nil {
		s.logger.Warn("memory search failed", "user_id", userID, "err", err)
		return nil, nil
	}
	return rankBySimilarity(records, embedding, limit), nil
}

func (s *SQLiteStore) GetAllMemories(ctx context.Context, userID string, limit int) ([]MemoryRecord, error) {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return s.queryMemories(ctx,
		`SELECT id, user_id, content, memory_type, embedding, created_at FROM memories
		 WHERE user_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		userID, limit,
	)
}

func (s *SQLiteStore) queryMemories(ctx context.Context, query string, args ...any) ([]MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var items []MemoryRecord
	for rows.Next() {
		var (
			r         MemoryRecord
			embedding sql.NullString
			ts        int64
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Content, &r.MemoryType, &embedding, &ts); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &r.Embedding); err != nil {
				s.logger.Warn("skip malformed memory embedding", "memory_id", r.ID, "err", err)
				r.Embedding = nil
			}
		}
		r.CreatedAt = time.Unix(0, ts).UTC()
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
