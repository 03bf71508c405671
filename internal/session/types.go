package session

import "time"

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is the registry view of one live websocket conversation.
type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	Status         Status    `json:"status"`
	TurnCount      int       `json:"turn_count"`
	InTurn         bool      `json:"in_turn"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Stats summarises the registry for health endpoints.
type Stats struct {
	Active          int   `json:"active_sessions"`
	InactivityTTLMS int64 `json:"inactivity_ttl_ms"`
}
