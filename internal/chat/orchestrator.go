package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/antoniostano/joi/internal/companion"
	"github.com/antoniostano/joi/internal/llm"
	"github.com/antoniostano/joi/internal/memory"
	"github.com/antoniostano/joi/internal/observability"
	"github.com/antoniostano/joi/internal/policy"
	"github.com/antoniostano/joi/internal/protocol"
	"github.com/antoniostano/joi/internal/session"
	"github.com/antoniostano/joi/internal/store"
)

// ErrLoginRequired ends a connection whose first frame is not a valid login.
var ErrLoginRequired = errors.New("login required")

const greetingPause = 1500 * time.Millisecond

// Orchestrator runs one conversation per websocket connection: login,
// history replay, greeting, then a strictly sequential reply loop.
type Orchestrator struct {
	store       store.Store
	generator   *companion.Generator
	typer       typer
	sessions    *session.Manager
	metrics     *observability.Metrics
	embedder    memory.Embedder
	logger      *slog.Logger
	redactFacts bool
	recallLimit int
}

// typer is the pacing surface the reply loop needs.
type typer interface {
	Read(ctx context.Context, message string) error
	Think(ctx context.Context) error
	Pause(ctx context.Context, d time.Duration) error
	TypeResponse(ctx context.Context, text string, emit func(string) error) error
}

type Option func(*Orchestrator)

func WithEmbedder(e memory.Embedder) Option {
	return func(o *Orchestrator) { o.embedder = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithFactRedaction masks emails, phone numbers and card numbers in facts
// before they are stored.
func WithFactRedaction(enabled bool) Option {
	return func(o *Orchestrator) { o.redactFacts = enabled }
}

func NewOrchestrator(
	st store.Store,
	generator *companion.Generator,
	t typer,
	sessions *session.Manager,
	metrics *observability.Metrics,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:       st,
		generator:   generator,
		typer:       t,
		sessions:    sessions,
		metrics:     metrics,
		embedder:    memory.NoopEmbedder{},
		logger:      slog.Default(),
		recallLimit: store.DefaultSearchLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunConnection drives a connection until inbound closes or ctx is done,
// which both return nil. A bad first frame returns ErrLoginRequired before
// any user or session state exists. outbound is never closed here.
func (o *Orchestrator) RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error {
	login, ok, err := o.awaitLogin(ctx, inbound)
	if err != nil || !ok {
		return err
	}

	user, err := o.store.GetOrCreateUser(ctx, login.UserID)
	if err != nil {
		return fmt.Errorf("resolve user %q: %w", login.UserID, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := o.sessions.Create(user.ID, user.Username, cancel)
	logger := o.logger.With("session_id", s.ID, "user_id", user.ID)
	o.metrics.ActiveSessions.Inc()
	o.metrics.SessionEvents.WithLabelValues("started").Inc()
	defer func() {
		_, _ = o.sessions.End(s.ID)
		o.metrics.ActiveSessions.Dec()
		o.metrics.SessionEvents.WithLabelValues("ended").Inc()
		logger.Info("session closed")
	}()
	logger.Info("session started", "username", user.Username)

	mem := o.newMemory(user.ID, logger)
	history, err := mem.LoadHistory(ctx)
	if err != nil {
		logger.Warn("load history failed, starting fresh", "err", err)
		history = nil
	}
	if err := o.send(ctx, outbound, protocol.NewChatHistory(historyEntries(history))); err != nil {
		return nil
	}

	greeting, err := o.generator.Persona().Greeting(user.Username, len(history) > 0)
	if err != nil {
		return fmt.Errorf("render greeting: %w", err)
	}
	if err := o.sendGreeting(ctx, outbound, greeting); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			_ = o.sessions.Touch(s.ID)
			o.metrics.WSMessages.WithLabelValues("in", string(protocol.TypeOf(msg))).Inc()

			switch m := msg.(type) {
			case protocol.ChatMessage:
				if m.Message == "" {
					continue
				}
				if err := o.reply(ctx, s.ID, mem, user.Username, m.Message, outbound, logger); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			case error:
				logger.Debug("rejecting client frame", "err", m)
				if err := o.send(ctx, outbound, protocol.NewError("invalid_message", m.Error())); err != nil {
					return nil
				}
			default:
				logger.Debug("ignoring client frame", "type", protocol.TypeOf(msg))
			}
		}
	}
}

// awaitLogin reports ok=false with a nil error when the peer left first.
func (o *Orchestrator) awaitLogin(ctx context.Context, inbound <-chan any) (protocol.Login, bool, error) {
	select {
	case <-ctx.Done():
		return protocol.Login{}, false, nil
	case msg, ok := <-inbound:
		if !ok {
			return protocol.Login{}, false, nil
		}
		o.metrics.WSMessages.WithLabelValues("in", string(protocol.TypeOf(msg))).Inc()
		login, isLogin := msg.(protocol.Login)
		if !isLogin || login.UserID == "" {
			o.metrics.SessionEvents.WithLabelValues("login_rejected").Inc()
			return protocol.Login{}, false, ErrLoginRequired
		}
		return login, true, nil
	}
}

func (o *Orchestrator) newMemory(userID string, logger *slog.Logger) *memory.Manager {
	opts := []memory.Option{
		memory.WithEmbedder(o.embedder),
		memory.WithLogger(logger),
		memory.WithRecallObserver(o.metrics.ObserveRecall),
	}
	if o.redactFacts {
		opts = append(opts, memory.WithFactRedactor(policy.RedactFact))
	}
	return memory.NewManager(o.store, userID, opts...)
}

func (o *Orchestrator) reply(
	ctx context.Context,
	sessionID string,
	mem *memory.Manager,
	username string,
	text string,
	outbound chan<- any,
	logger *slog.Logger,
) error {
	turnStart := time.Now()
	_ = o.sessions.StartTurn(sessionID)
	defer func() { _ = o.sessions.EndTurn(sessionID) }()

	// The window is captured before the user turn is stored, so the prompt
	// carries the new message once rather than repeating it after history.
	history := mem.ConversationHistory()
	if err := mem.AddMessage(ctx, store.RoleUser, text); err != nil {
		return err
	}

	saved, err := mem.ExtractAndSaveMemories(ctx, text)
	if err != nil {
		logger.Warn("save fact failed", "err", err)
	}
	if saved {
		o.metrics.FactsExtracted.Inc()
	}

	recallStart := time.Now()
	memories := mem.Recall(ctx, text, o.recallLimit)
	o.metrics.ObserveStage(observability.StageRecall, time.Since(recallStart))

	if err := o.typer.Read(ctx, text); err != nil {
		return err
	}
	if err := o.send(ctx, outbound, protocol.NewTyping(true)); err != nil {
		return err
	}
	if err := o.typer.Think(ctx); err != nil {
		return err
	}

	genStart := time.Now()
	answer, err := o.generator.GenerateResponse(ctx, text, history, memories, username)
	o.metrics.ObserveStage(observability.StageGenerate, time.Since(genStart))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("generate response failed, sending fallback", "provider", o.generator.Provider(), "err", err)
		o.metrics.ProviderErrors.WithLabelValues(o.generator.Provider(), providerErrorCode(err)).Inc()
		answer = o.generator.Persona().FallbackReply()
	} else if err := mem.AddMessage(ctx, store.RoleAssistant, answer); err != nil {
		return err
	}

	if err := o.send(ctx, outbound, protocol.NewTyping(false)); err != nil {
		return err
	}
	if err := o.stream(ctx, outbound, answer); err != nil {
		return err
	}
	o.metrics.ObserveStage(observability.StageTurnTotal, time.Since(turnStart))
	return nil
}

func (o *Orchestrator) sendGreeting(ctx context.Context, outbound chan<- any, greeting string) error {
	if err := o.send(ctx, outbound, protocol.NewTyping(true)); err != nil {
		return err
	}
	if err := o.typer.Pause(ctx, greetingPause); err != nil {
		return err
	}
	if err := o.send(ctx, outbound, protocol.NewTyping(false)); err != nil {
		return err
	}
	return o.stream(ctx, outbound, greeting)
}

// stream sends message_start, one char frame per character, message_end.
func (o *Orchestrator) stream(ctx context.Context, outbound chan<- any, text string) error {
	start := time.Now()
	if err := o.send(ctx, outbound, protocol.NewMessageStart()); err != nil {
		return err
	}
	err := o.typer.TypeResponse(ctx, text, func(ch string) error {
		return o.send(ctx, outbound, protocol.NewChar(ch))
	})
	if err != nil {
		return err
	}
	if err := o.send(ctx, outbound, protocol.NewMessageEnd()); err != nil {
		return err
	}
	o.metrics.ObserveStage(observability.StageTyping, time.Since(start))
	return nil
}

// send blocks until the writer takes msg; frames are never dropped.
func (o *Orchestrator) send(ctx context.Context, outbound chan<- any, msg any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case outbound <- msg:
		o.metrics.WSMessages.WithLabelValues("out", string(protocol.TypeOf(msg))).Inc()
		return nil
	}
}

func historyEntries(msgs []store.Message) []protocol.HistoryEntry {
	out := make([]protocol.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, protocol.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}

func providerErrorCode(err error) string {
	var se *llm.StatusError
	if errors.As(err, &se) && se.StatusCode > 0 {
		return strconv.Itoa(se.StatusCode)
	}
	return "request_failed"
}
