package companion

import (
	"context"
	"fmt"

	"github.com/antoniostano/joi/internal/llm"
	"github.com/antoniostano/joi/internal/memory"
	"github.com/antoniostano/joi/internal/persona"
)

const (
	replyTemperature = 0.9
	replyMaxTokens   = 300
)

// Generator composes the persona prompt with recent history and recalled
// memories and asks the completion endpoint for one reply.
type Generator struct {
	completer llm.Completer
	persona   *persona.Persona
}

func NewGenerator(completer llm.Completer, p *persona.Persona) *Generator {
	if p == nil {
		p = persona.Default()
	}
	return &Generator{completer: completer, persona: p}
}

func (g *Generator) Persona() *persona.Persona { return g.persona }

func (g *Generator) Provider() string { return g.completer.Provider() }

// GenerateResponse returns the completion text verbatim.
func (g *Generator) GenerateResponse(
	ctx context.Context,
	userMessage string,
	history []memory.Turn,
	memoriesText string,
	userName string,
) (string, error) {
	req, err := g.BuildRequest(userMessage, history, memoriesText, userName)
	if err != nil {
		return "", err
	}
	text, err := g.completer.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate response: %w", err)
	}
	return text, nil
}

// BuildRequest lays out system prompt, history, then the new user turn.
func (g *Generator) BuildRequest(userMessage string, history []memory.Turn, memoriesText, userName string) (llm.Request, error) {
	system, err := g.persona.SystemPrompt(userName, memoriesText)
	if err != nil {
		return llm.Request{}, err
	}
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return llm.Request{
		Messages:    msgs,
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	}, nil
}
