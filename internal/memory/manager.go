package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antoniostano/joi/internal/store"
)

const (
	historyLoadLimit = 50

	// NoMemories is what Recall returns when nothing is stored for the user.
	NoMemories = "No memories yet."

	RecallSemantic = "semantic"
	RecallRecency  = "recency"
	RecallEmpty    = "empty"
)

// memoryTriggers are lowercase phrases that mark a message as a personal
// fact worth remembering.
var memoryTriggers = []string{
	"my name is", "i am", "i'm", "i work", "i like", "i love",
	"i hate", "my favorite", "i live", "my job", "i feel",
}

// Manager owns one user's conversation window and long-term memory for the
// duration of a session. The store is the source of truth; the window is
// only a model-context cache.
type Manager struct {
	store    store.Store
	embedder Embedder
	userID   string
	window   *Window
	logger   *slog.Logger
	redact   func(string) string
	onRecall func(source string)
}

type Option func(*Manager)

func WithEmbedder(e Embedder) Option {
	return func(m *Manager) {
		if e != nil {
			m.embedder = e
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithWindowSize(n int) Option {
	return func(m *Manager) { m.window = NewWindow(n) }
}

// WithFactRedactor rewrites extracted facts before they are stored.
func WithFactRedactor(fn func(string) string) Option {
	return func(m *Manager) { m.redact = fn }
}

// WithRecallObserver is told which path served each Recall.
func WithRecallObserver(fn func(source string)) Option {
	return func(m *Manager) { m.onRecall = fn }
}

func NewManager(st store.Store, userID string, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		embedder: NoopEmbedder{},
		userID:   userID,
		window:   NewWindow(DefaultWindowSize),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("user_id", userID)
	return m
}

func (m *Manager) UserID() string { return m.userID }

// LoadHistory replaces the window with the persisted history and returns the
// full records for display.
func (m *Manager) LoadHistory(ctx context.Context) ([]store.Message, error) {
	msgs, err := m.store.GetMessages(ctx, m.userID, historyLoadLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	turns := make([]Turn, 0, len(msgs))
	for _, msg := range msgs {
		turns = append(turns, Turn{Role: msg.Role, Content: msg.Content})
	}
	m.window.Replace(turns)
	return msgs, nil
}

// AddMessage appends to the window and persists the message.
func (m *Manager) AddMessage(ctx context.Context, role, content string) error {
	m.window.Append(Turn{Role: role, Content: content})
	if _, err := m.store.SaveMessage(ctx, m.userID, role, content); err != nil {
		return fmt.Errorf("save %s message: %w", role, err)
	}
	return nil
}

// AddMemory persists a fact. The embedding is best effort.
func (m *Manager) AddMemory(ctx context.Context, content, memoryType string) error {
	if strings.TrimSpace(memoryType) == "" {
		memoryType = store.MemoryTypeGeneral
	}
	embedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		m.logger.Warn("embed memory failed, storing without vector", "err", err)
		embedding = nil
	}
	_, err = m.store.SaveMemory(ctx, store.MemoryRecord{
		UserID:     m.userID,
		Content:    content,
		MemoryType: memoryType,
		Embedding:  embedding,
	})
	if err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	return nil
}

// ExtractAndSaveMemories stores the whole message as a user_info memory when
// it contains a trigger phrase. It reports whether a memory was stored.
func (m *Manager) ExtractAndSaveMemories(ctx context.Context, userMessage string) (bool, error) {
	if !ContainsTrigger(userMessage) {
		return false, nil
	}
	fact := userMessage
	if m.redact != nil {
		fact = m.redact(fact)
	}
	if err := m.AddMemory(ctx, fact, store.MemoryTypeUserInfo); err != nil {
		return false, err
	}
	return true, nil
}

// ContainsTrigger reports whether msg contains any memory trigger phrase.
func ContainsTrigger(msg string) bool {
	lower := strings.ToLower(msg)
	for _, trigger := range memoryTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// Recall returns up to n memories as "- " prefixed lines. Similarity search
// is used when the embedder yields a query vector; otherwise, or when it
// finds nothing, the n most recent memories are used. Recall never fails:
// store errors are logged and produce NoMemories.
func (m *Manager) Recall(ctx context.Context, query string, n int) string {
	if n <= 0 {
		n = store.DefaultSearchLimit
	}

	source := RecallRecency
	var records []store.MemoryRecord

	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Warn("embed recall query failed", "err", err)
	}
	if len(vec) > 0 {
		records, _ = m.store.SearchMemories(ctx, m.userID, vec, n)
		source = RecallSemantic
	}
	if len(records) == 0 {
		source = RecallRecency
		records, err = m.store.GetAllMemories(ctx, m.userID, n)
		if err != nil {
			m.logger.Warn("recall memories failed", "err", err)
			records = nil
		}
	}

	if len(records) == 0 {
		m.observe(RecallEmpty)
		return NoMemories
	}
	m.observe(source)

	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, "- "+r.Content)
	}
	return strings.Join(lines, "\n")
}

// ConversationHistory returns a copy of the window, oldest first.
func (m *Manager) ConversationHistory() []Turn {
	return m.window.Snapshot()
}

func (m *Manager) observe(source string) {
	if m.onRecall != nil {
		m.onRecall(source)
	}
}
