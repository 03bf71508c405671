package llm

import (
	"context"
	"fmt"
	"strings"
)

// MockCompleter gives deterministic local replies when no provider key is set.
type MockCompleter struct{}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

func (c *MockCompleter) Provider() string { return "mock" }

func (c *MockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			last = strings.TrimSpace(req.Messages[i].Content)
			break
		}
	}
	if last == "" {
		return "I'm here... talk to me.", nil
	}
	return fmt.Sprintf("I heard you: %s", last), nil
}
