package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/antoniostano/joi/internal/chat"
	"github.com/antoniostano/joi/internal/companion"
	"github.com/antoniostano/joi/internal/config"
	"github.com/antoniostano/joi/internal/httpapi"
	"github.com/antoniostano/joi/internal/llm"
	"github.com/antoniostano/joi/internal/memory"
	"github.com/antoniostano/joi/internal/observability"
	"github.com/antoniostano/joi/internal/pacing"
	"github.com/antoniostano/joi/internal/persona"
	"github.com/antoniostano/joi/internal/session"
	"github.com/antoniostano/joi/internal/store"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *chat.Orchestrator
	Metrics      *observability.Metrics
	Store        store.Store
	Provider     string

	// Cleanup releases the store on shutdown.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.NewStore(ctx, store.Options{
		DatabaseURL:  cfg.DatabaseURL,
		SQLitePath:   cfg.SQLitePath,
		EmbeddingDim: cfg.MemoryEmbeddingDim,
		Logger:       logger.With("component", "store"),
	})
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	completer, err := llm.NewCompleter(llm.Config{
		Mode:            cfg.LLMProvider,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.OpenAIBaseURL,
		OpenAIModel:     cfg.OpenAIModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		MaxRetries:      cfg.LLMMaxRetries,
		Logger:          logger.With("component", "llm"),
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("completer init failed: %w", err)
	}

	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("persona init failed: %w", err)
	}

	embedder := memory.NewEmbedder(memory.OpenAIEmbedderConfig{
		APIKey:     cfg.EmbeddingsAPIKey,
		BaseURL:    cfg.EmbeddingsBaseURL,
		Model:      cfg.EmbeddingsModel,
		Dimensions: cfg.MemoryEmbeddingDim,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		logger.Info("session expired", "session_id", s.ID, "user_id", s.UserID)
	})

	orchestrator := chat.NewOrchestrator(
		st,
		companion.NewGenerator(completer, p),
		pacing.NewTyper(cfg.PacingScale),
		sessions,
		metrics,
		chat.WithEmbedder(embedder),
		chat.WithLogger(logger.With("component", "chat")),
		chat.WithFactRedaction(cfg.MemoryRedactPII),
	)

	api := httpapi.New(cfg, sessions, orchestrator, metrics, httpapi.Info{
		StoreMode: st.Mode(),
		Provider:  completer.Provider(),
	}, logger.With("component", "http"))

	logger.Info("joi backend assembled",
		"store", st.Mode(),
		"llm_provider", completer.Provider(),
		"persona", p.Name(),
		"pacing_scale", cfg.PacingScale,
	)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Store:        st,
		Provider:     completer.Provider(),
		Cleanup: func() error {
			if err := st.Close(); err != nil {
				return fmt.Errorf("close store: %w", err)
			}
			return nil
		},
	}, nil
}
