package store

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MemoryTypeGeneral  = "general"
	MemoryTypeUserInfo = "user_info"

	DefaultMessageLimit = 50
	DefaultMemoryLimit  = 10
	DefaultSearchLimit  = 5
)

// User is the durable identity behind a login username.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single persisted chat turn.
type Message struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryRecord is a long-term fact about a user. Records are append-only.
type MemoryRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Content    string    `json:"content"`
	MemoryType string    `json:"memory_type"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists users, chat messages and memory records.
//
// GetMessages keeps the newest limit messages and returns them oldest first.
//
// SearchMemories is best effort: a missing embedding or a backend failure
// yields an empty result and a nil error.
type Store interface {
	GetOrCreateUser(ctx context.Context, username string) (User, error)
	SaveMessage(ctx context.Context, userID, role, content string) (Message, error)
	GetMessages(ctx context.Context, userID string, limit int) ([]Message, error)
	SaveMemory(ctx context.Context, record MemoryRecord) (MemoryRecord, error)
	SearchMemories(ctx context.Context, userID string, embedding []float32, limit int) ([]MemoryRecord, error)
	GetAllMemories(ctx context.Context, userID string, limit int) ([]MemoryRecord, error)
	Mode() string
	Close() error
}
