package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1-api-gateway/relaygw/internal/wireformat"
)

func TestRegistry_BuiltinsCoverAnthropicFamilyHeaderStyle(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"claude", "glm", "kimi", "minimax"} {
		p, ok := r.Get(id)
		require.True(t, ok, id)
		require.True(t, p.AnthropicFamily, id)
		require.Equal(t, HeaderXAPIKey, p.HeaderStyle, id)
	}
}

func TestRegistry_GeminiUsesGoogApiKeyHeader(t *testing.T) {
	r := NewRegistry()
	p, ok := r.Get("gemini")
	require.True(t, ok)
	require.Equal(t, HeaderGeminiAPIKey, p.HeaderStyle)
	require.Equal(t, wireformat.Gemini, p.PreferredFormat)
}

func TestRegistry_UnknownProviderNotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	require.False(t, ok)
}

func TestNewCompatibleNode_AnthropicCompatiblePicksXApiKey(t *testing.T) {
	p := NewCompatibleNode("my-node", "https://example.com/v1", true)
	require.Equal(t, HeaderXAPIKey, p.HeaderStyle)
	require.Equal(t, wireformat.Claude, p.PreferredFormat)
}

func TestNewCompatibleNode_OpenAICompatiblePicksBearer(t *testing.T) {
	p := NewCompatibleNode("my-node", "https://example.com/v1", false)
	require.Equal(t, HeaderBearer, p.HeaderStyle)
	require.Equal(t, wireformat.OpenAI, p.PreferredFormat)
}

func TestRegistry_RegisterOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	r.Register(Provider{Id: "openai", DisplayName: "custom"})
	p, ok := r.Get("openai")
	require.True(t, ok)
	require.Equal(t, "custom", p.DisplayName)
}
