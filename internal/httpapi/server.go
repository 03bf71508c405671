package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/joi/internal/chat"
	"github.com/antoniostano/joi/internal/config"
	"github.com/antoniostano/joi/internal/observability"
	"github.com/antoniostano/joi/internal/protocol"
	"github.com/antoniostano/joi/internal/session"
)

// CloseLoginRequired is sent when the first frame is not a valid login.
const CloseLoginRequired = 4000

const (
	writeTimeout = 10 * time.Second
	pongWait     = 90 * time.Second
	pingPeriod   = 30 * time.Second
)

type Orchestrator interface {
	RunConnection(ctx context.Context, inbound <-chan any, outbound chan<- any) error
}

// Info describes the wired backends for the health endpoints.
type Info struct {
	StoreMode string
	Provider  string
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	orchestrator Orchestrator
	metrics      *observability.Metrics
	info         Info
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	static       http.Handler
}

func New(
	cfg config.Config,
	sessions *session.Manager,
	orchestrator Orchestrator,
	metrics *observability.Metrics,
	info Info,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		sessions:     sessions,
		orchestrator: orchestrator,
		metrics:      metrics,
		info:         info,
		logger:       logger,
		static:       newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.static.ServeHTTP)
	r.Handle("/static/*", http.StripPrefix("/static/", s.static))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/ws", s.handleWS)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"store_mode":      s.info.StoreMode,
		"llm_provider":    s.info.Provider,
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "orchestrator not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"store_mode":   s.info.StoreMode,
		"llm_provider": s.info.Provider,
		"sessions":     s.sessions.Stats(),
	})
}

// handleWS owns the socket: this goroutine reads, one writer goroutine
// writes, and the orchestrator talks to both through channels.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 256)
	runErr := make(chan error, 1)

	go func() {
		err := s.orchestrator.RunConnection(ctx, inbound, outbound)
		runErr <- err
		cancel()
		close(outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		s.writeLoop(conn, cancel, outbound)
		s.writeClose(conn, <-runErr)
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		var item any
		item, err = protocol.ParseClientMessage(data)
		if err != nil {
			item = err
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- item:
		}
	}

	cancel()
	close(inbound)
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// writeLoop drains outbound until the orchestrator closes it. After a write
// failure it keeps draining so the orchestrator never blocks on a dead peer.
func (s *Server) writeLoop(conn *websocket.Conn, cancel context.CancelFunc, outbound <-chan any) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	broken := false
	for {
		select {
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			if broken {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.SessionEvents.WithLabelValues("ws_write_error").Inc()
				broken = true
				cancel()
			}
		case <-ticker.C:
			if broken {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				broken = true
				cancel()
			}
		}
	}
}

func (s *Server) writeClose(conn *websocket.Conn, runErr error) {
	code, reason := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(runErr, chat.ErrLoginRequired):
		code, reason = CloseLoginRequired, "Login required"
	case runErr != nil:
		s.logger.Error("connection ended with error", "err", runErr)
		code, reason = websocket.CloseInternalServerErr, "internal error"
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
