package memory

import "sync"

// DefaultWindowSize is how many recent turns are kept as model context.
const DefaultWindowSize = 20

// Turn is the role/content projection of a message used as model context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Window is a bounded sliding window of recent turns. Append drops the
// oldest entries once capacity is exceeded. Replace installs a snapshot as-is
// so a loaded history may briefly exceed capacity until the next Append.
type Window struct {
	mu       sync.Mutex
	capacity int
	turns    []Turn
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{capacity: capacity}
}

func (w *Window) Append(t Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, t)
	if over := len(w.turns) - w.capacity; over > 0 {
		kept := make([]Turn, w.capacity)
		copy(kept, w.turns[over:])
		w.turns = kept
	}
}

func (w *Window) Replace(turns []Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append([]Turn(nil), turns...)
}

// Snapshot returns a copy of the window, oldest first.
func (w *Window) Snapshot() []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Turn(nil), w.turns...)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}

func (w *Window) Capacity() int { return w.capacity }
