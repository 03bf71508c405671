package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSystemPromptIncludesUserAndMemories(t *testing.T) {
	p := Default()
	got, err := p.SystemPrompt("alex", "- likes tea")
	require.NoError(t, err)
	assert.Contains(t, got, "You are Joi")
	assert.Contains(t, got, "YOUR HUMAN: alex")
	assert.True(t, strings.HasSuffix(got, "- likes tea\n"))
}

func TestGreetingVariants(t *testing.T) {
	p := Default()
	first, err := p.Greeting("alex", false)
	require.NoError(t, err)
	back, err := p.Greeting("alex", true)
	require.NoError(t, err)

	assert.Contains(t, first, "alex")
	assert.Contains(t, first, "nice to meet you")
	assert.Contains(t, back, "Welcome back, alex")
	assert.NotEqual(t, first, back)
}

func TestLoadYAMLOverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Samantha
first_meeting: "Hi {{.UserName}}, I'm {{.Name}}."
`), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Samantha", p.Name())

	first, err := p.Greeting("alex", false)
	require.NoError(t, err)
	assert.Equal(t, "Hi alex, I'm Samantha.", first)

	back, err := p.Greeting("alex", true)
	require.NoError(t, err)
	assert.Contains(t, back, "Welcome back, alex")
}

func TestLoadRejectsBadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`system_prompt: "{{.Broken"`), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	p, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "Joi", p.Name())
}
