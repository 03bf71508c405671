package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("u1", "alex", nil)
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "u1" || got.Username != "alex" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerTurnTracking(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("u1", "alex", nil)
	for i := 0; i < 2; i++ {
		if err := m.StartTurn(s.ID); err != nil {
			t.Fatalf("StartTurn() error = %v", err)
		}
	}
	got, _ := m.Get(s.ID)
	if !got.InTurn || got.TurnCount != 2 {
		t.Fatalf("unexpected turn state: %+v", got)
	}
	if err := m.EndTurn(s.ID); err != nil {
		t.Fatalf("EndTurn() error = %v", err)
	}
	got, _ = m.Get(s.ID)
	if got.InTurn {
		t.Fatalf("InTurn should be false after EndTurn")
	}
	if err := m.Touch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch() error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	var cancelled, hooked atomic.Int32
	s := m.Create("u1", "alex", func() { cancelled.Add(1) })
	m.SetExpireHook(func(got *Session) {
		if got.ID == s.ID && got.Status == StatusEnded {
			hooked.Add(1)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if cancelled.Load() != 1 || hooked.Load() != 1 {
		t.Fatalf("cancelled = %d, hooked = %d, want 1 and 1", cancelled.Load(), hooked.Load())
	}
}

func TestManagerJanitorSkipsSessionInTurn(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	s := m.Create("u1", "alex", nil)
	if err := m.StartTurn(s.ID); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	m.expireInactive()
	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("session in a turn should survive: %v", err)
	}
}

func TestManagerStats(t *testing.T) {
	m := NewManager(2 * time.Second)
	m.Create("u1", "alex", nil)
	m.Create("u2", "sam", nil)
	st := m.Stats()
	if st.Active != 2 || st.InactivityTTLMS != 2000 {
		t.Fatalf("Stats() = %+v", st)
	}
}
