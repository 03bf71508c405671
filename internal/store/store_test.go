package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "joi.db"), nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"in-memory": NewInMemoryStore(),
		"sqlite":    sqlite,
	}
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := s.GetOrCreateUser(ctx, "alex")
			if err != nil {
				t.Fatalf("GetOrCreateUser() error = %v", err)
			}
			second, err := s.GetOrCreateUser(ctx, "alex")
			if err != nil {
				t.Fatalf("GetOrCreateUser() error = %v", err)
			}
			if first.ID == "" || first.ID != second.ID {
				t.Fatalf("ids = %q, %q, want equal non-empty", first.ID, second.ID)
			}
			other, err := s.GetOrCreateUser(ctx, "sam")
			if err != nil {
				t.Fatalf("GetOrCreateUser() error = %v", err)
			}
			if other.ID == first.ID {
				t.Fatalf("distinct usernames share id %q", other.ID)
			}
		})
	}
}

func TestGetMessagesReturnsMostRecentOldestFirst(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, err := s.GetOrCreateUser(ctx, "alex")
			if err != nil {
				t.Fatalf("GetOrCreateUser() error = %v", err)
			}
			for i := 0; i < 6; i++ {
				if _, err := s.SaveMessage(ctx, u.ID, RoleUser, fmt.Sprintf("m%d", i)); err != nil {
					t.Fatalf("SaveMessage() error = %v", err)
				}
			}

			got, err := s.GetMessages(ctx, u.ID, 4)
			if err != nil {
				t.Fatalf("GetMessages() error = %v", err)
			}
			if len(got) != 4 {
				t.Fatalf("len = %d, want 4", len(got))
			}
			for i, want := range []string{"m2", "m3", "m4", "m5"} {
				if got[i].Content != want {
					t.Fatalf("got[%d] = %q, want %q", i, got[i].Content, want)
				}
			}
		})
	}
}

func TestGetMessagesEmptyForUnknownUser(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.GetMessages(context.Background(), "nobody", 0)
			if err != nil {
				t.Fatalf("GetMessages() error = %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("len = %d, want 0", len(got))
			}
		})
	}
}

func TestGetAllMemoriesNewestFirst(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, _ := s.GetOrCreateUser(ctx, "alex")
			for _, c := range []string{"a", "b", "c"} {
				if _, err := s.SaveMemory(ctx, MemoryRecord{UserID: u.ID, Content: c}); err != nil {
					t.Fatalf("SaveMemory() error = %v", err)
				}
			}

			got, err := s.GetAllMemories(ctx, u.ID, 2)
			if err != nil {
				t.Fatalf("GetAllMemories() error = %v", err)
			}
			if len(got) != 2 || got[0].Content != "c" || got[1].Content != "b" {
				t.Fatalf("unexpected memories: %+v", got)
			}
			if got[0].MemoryType != MemoryTypeGeneral {
				t.Fatalf("MemoryType = %q, want %q", got[0].MemoryType, MemoryTypeGeneral)
			}
		})
	}
}

func TestSearchMemoriesRanksBySimilarity(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, _ := s.GetOrCreateUser(ctx, "alex")
			records := []MemoryRecord{
				{UserID: u.ID, Content: "likes tea", Embedding: []float32{1, 0}},
				{UserID: u.ID, Content: "lives in Rome", Embedding: []float32{0, 1}},
				{UserID: u.ID, Content: "no vector"},
			}
			for _, r := range records {
				if _, err := s.SaveMemory(ctx, r); err != nil {
					t.Fatalf("SaveMemory() error = %v", err)
				}
			}

			got, err := s.SearchMemories(ctx, u.ID, []float32{0.1, 0.9}, 5)
			if err != nil {
				t.Fatalf("SearchMemories() error = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("len = %d, want 2", len(got))
			}
			if got[0].Content != "lives in Rome" {
				t.Fatalf("top match = %q, want %q", got[0].Content, "lives in Rome")
			}
		})
	}
}

func TestStoredEmbeddingsAreDetachedFromCallers(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, _ := s.GetOrCreateUser(ctx, "alex")
			vec := []float32{1, 0}
			if _, err := s.SaveMemory(ctx, MemoryRecord{UserID: u.ID, Content: "likes tea", Embedding: vec}); err != nil {
				t.Fatalf("SaveMemory() error = %v", err)
			}
			vec[0] = 42

			all, err := s.GetAllMemories(ctx, u.ID, 10)
			if err != nil || len(all) != 1 {
				t.Fatalf("GetAllMemories() = %v, %v", all, err)
			}
			if all[0].Embedding[0] != 1 {
				t.Fatalf("stored embedding changed with caller slice: %v", all[0].Embedding)
			}
			all[0].Embedding[0] = 7

			found, err := s.SearchMemories(ctx, u.ID, []float32{1, 0}, 5)
			if err != nil || len(found) != 1 {
				t.Fatalf("SearchMemories() = %v, %v", found, err)
			}
			if found[0].Embedding[0] != 1 {
				t.Fatalf("stored embedding changed through a returned record: %v", found[0].Embedding)
			}
		})
	}
}

func TestSearchMemoriesWithoutEmbeddingIsEmpty(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.SearchMemories(context.Background(), "u", nil, 5)
			if err != nil || len(got) != 0 {
				t.Fatalf("SearchMemories() = %v, %v; want empty, nil", got, err)
			}
		})
	}
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	s, err := NewStore(context.Background(), Options{})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	if s.Mode() != "in-memory" {
		t.Fatalf("Mode() = %q, want in-memory", s.Mode())
	}
}

func TestVectorLiteral(t *testing.T) {
	if got := vectorLiteral([]float32{0.5, -1, 2}); got != "[0.5,-1,2]" {
		t.Fatalf("vectorLiteral() = %q", got)
	}
}
