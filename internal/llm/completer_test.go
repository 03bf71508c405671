package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleterAutoFallsBackToMock(t *testing.T) {
	c, err := NewCompleter(Config{Mode: "auto"})
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Provider())

	text, err := c.Complete(context.Background(), Request{Messages: []Message{
		{Role: RoleSystem, Content: "persona"},
		{Role: RoleUser, Content: "hello"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "I heard you: hello", text)
}

func TestNewCompleterRejectsBadModes(t *testing.T) {
	_, err := NewCompleter(Config{Mode: "openai"})
	assert.Error(t, err)
	_, err = NewCompleter(Config{Mode: "anthropic"})
	assert.Error(t, err)
	_, err = NewCompleter(Config{Mode: "wat"})
	assert.Error(t, err)
}

func TestNewCompleterAutoPrefersOpenAI(t *testing.T) {
	c, err := NewCompleter(Config{Mode: "auto", OpenAIAPIKey: "k", AnthropicAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Provider())
}

type scriptedCompleter struct {
	errs  []error
	calls int
}

func (s *scriptedCompleter) Provider() string { return "scripted" }

func (s *scriptedCompleter) Complete(context.Context, Request) (string, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return "", s.errs[s.calls-1]
	}
	return "ok", nil
}

func newInstantRetry(inner Completer, maxRetries int) *RetryCompleter {
	r := NewRetryCompleter(inner, RetryConfig{MaxRetries: maxRetries})
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRetryCompleterRetriesTransientStatus(t *testing.T) {
	inner := &scriptedCompleter{errs: []error{
		&StatusError{Provider: "x", StatusCode: 503, Err: errors.New("busy")},
		&StatusError{Provider: "x", StatusCode: 429, Err: errors.New("slow down")},
	}}
	text, err := newInstantRetry(inner, 2).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryCompleterStopsOnClientError(t *testing.T) {
	inner := &scriptedCompleter{errs: []error{
		&StatusError{Provider: "x", StatusCode: 401, Err: errors.New("bad key")},
	}}
	_, err := newInstantRetry(inner, 3).Complete(context.Background(), Request{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 401, se.StatusCode)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryCompleterDoesNotRetryCancellation(t *testing.T) {
	inner := &scriptedCompleter{errs: []error{context.Canceled}}
	_, err := newInstantRetry(inner, 3).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryCompleterGivesUpAfterMaxRetries(t *testing.T) {
	boom := errors.New("connection reset")
	inner := &scriptedCompleter{errs: []error{boom, boom, boom}}
	_, err := newInstantRetry(inner, 1).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, inner.calls)
}

func TestOpenAICompleterSendsPromptAndParsesReply(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hey you..."}}]}`)
	}))
	defer ts.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: ts.URL, Model: "test-model"})
	text, err := c.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "persona"},
			{Role: RoleUser, Content: "hi"},
		},
		Temperature: 0.9,
		MaxTokens:   300,
	})
	require.NoError(t, err)
	assert.Equal(t, "hey you...", text)
	assert.Equal(t, "test-model", body["model"])
	assert.EqualValues(t, 300, body["max_tokens"])
	assert.InDelta(t, 0.9, body["temperature"], 1e-9)
	msgs, _ := body["messages"].([]any)
	assert.Len(t, msgs, 2)
}

func TestOpenAICompleterWrapsStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad","type":"invalid_request_error"}}`)
	}))
	defer ts.Close()

	c := NewOpenAICompleter(OpenAIConfig{APIKey: "k", BaseURL: ts.URL})
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestAnthropicCompleterLiftsSystemPrompt(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"hello "},{"type":"text","text":"there"}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":2}}`)
	}))
	defer ts.Close()

	c := NewAnthropicCompleter(AnthropicConfig{APIKey: "k", BaseURL: ts.URL})
	text, err := c.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "persona"},
			{Role: RoleUser, Content: "hi"},
		},
		MaxTokens: 300,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	msgs, _ := body["messages"].([]any)
	assert.Len(t, msgs, 1)
	system, _ := body["system"].([]any)
	require.Len(t, system, 1)
	assert.EqualValues(t, 300, body["max_tokens"])
}
