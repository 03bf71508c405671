package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps records in process. It is the stub used when no
// database is configured: nothing survives a restart, and nothing fails.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]User
	messages map[string][]Message
	memories map[string][]MemoryRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]User),
		messages: make(map[string][]Message),
		memories: make(map[string][]MemoryRecord),
	}
}

func (s *InMemoryStore) Mode() string { return "in-memory" }

func (s *InMemoryStore) GetOrCreateUser(_ context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		return u, nil
	}
	u := User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	s.users[username] = u
	return u, nil
}

func (s *InMemoryStore) SaveMessage(_ context.Context, userID, role, content string) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[userID] = append(s.messages[userID], msg)
	return msg, nil
}

func (s *InMemoryStore) GetMessages(_ context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.messages[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Message, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) SaveMemory(_ context.Context, record MemoryRecord) (MemoryRecord, error) {
	record = normalizeMemory(record)
	record.Embedding = slices.Clone(record.Embedding)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[record.UserID] = append(s.memories[record.UserID], record)
	return record, nil
}

func (s *InMemoryStore) SearchMemories(_ context.Context, userID string, embedding []float32, limit int) ([]MemoryRecord, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRecords(rankBySimilarity(s.memories[userID], embedding, limit)), nil
}

func (s *InMemoryStore) GetAllMemories(_ context.Context, userID string, limit int) ([]MemoryRecord, error) {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.memories[userID]
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]MemoryRecord, 0, limit)
	for i := len(arr) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, arr[i])
	}
	return cloneRecords(out), nil
}

// cloneRecords detaches embeddings from the stored records.
func cloneRecords(records []MemoryRecord) []MemoryRecord {
	for i := range records {
		records[i].Embedding = slices.Clone(records[i].Embedding)
	}
	return records
}

func (s *InMemoryStore) Close() error { return nil }
