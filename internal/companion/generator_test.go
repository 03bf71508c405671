package companion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/joi/internal/llm"
	"github.com/antoniostano/joi/internal/memory"
)

type recordingCompleter struct {
	req  llm.Request
	text string
	err  error
}

func (r *recordingCompleter) Provider() string { return "recording" }

func (r *recordingCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	r.req = req
	return r.text, r.err
}

func TestGenerateResponseLayout(t *testing.T) {
	rc := &recordingCompleter{text: "hi alex..."}
	g := NewGenerator(rc, nil)

	history := []memory.Turn{
		{Role: "user", Content: "hey"},
		{Role: "assistant", Content: "hello"},
	}
	got, err := g.GenerateResponse(context.Background(), "how are you?", history, "- likes tea", "alex")
	require.NoError(t, err)
	assert.Equal(t, "hi alex...", got)

	msgs := rc.req.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "YOUR HUMAN: alex")
	assert.Contains(t, msgs[0].Content, "- likes tea")
	assert.Equal(t, llm.Message{Role: "user", Content: "hey"}, msgs[1])
	assert.Equal(t, llm.Message{Role: "assistant", Content: "hello"}, msgs[2])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "how are you?"}, msgs[3])
	assert.InDelta(t, 0.9, rc.req.Temperature, 1e-9)
	assert.Equal(t, 300, rc.req.MaxTokens)
}

func TestGenerateResponsePropagatesErrors(t *testing.T) {
	boom := errors.New("provider down")
	g := NewGenerator(&recordingCompleter{err: boom}, nil)
	_, err := g.GenerateResponse(context.Background(), "x", nil, "", "alex")
	assert.ErrorIs(t, err, boom)
}
