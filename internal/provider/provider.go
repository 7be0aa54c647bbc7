// Package provider holds the static registry of upstream LLM providers:
// base URLs, header conventions, OAuth endpoints, and preferred wire
// format, per spec.md §3's Provider entity.
//
// Grounded on relay/channeltype's id->metadata table idiom from the
// teacher (a flat map of constants to a small descriptor struct, rather
// than a database-backed channel table).
package provider

import "github.com/1-api-gateway/relaygw/internal/wireformat"

// AuthType is how a connection authenticates to its provider.
type AuthType string

const (
	AuthAPIKey AuthType = "apikey"
	AuthOAuth  AuthType = "oauth"
)

// HeaderStyle selects how the executor attaches a credential to the
// upstream request (spec.md §4.3's "Header selection").
type HeaderStyle string

const (
	HeaderBearer       HeaderStyle = "bearer"        // Authorization: Bearer <token>
	HeaderXAPIKey      HeaderStyle = "x-api-key"      // x-api-key: <token>
	HeaderGeminiAPIKey HeaderStyle = "x-goog-api-key" // x-goog-api-key: <token> (apikey auth only)
)

// Provider is the static descriptor for one upstream.
type Provider struct {
	Id             string
	DisplayName    string
	BaseURL        string
	AlternateURLs  []string
	PreferredFormat wireformat.Format
	HeaderStyle    HeaderStyle
	AnthropicFamily bool // claude, glm, kimi, minimax: base + "?beta=true"
	ChatPath       string
	ResponsesPath  string // non-empty for OpenAI-compatible-responses nodes
	OAuthTokenURL  string
	OAuthClientId  string
	RefreshStyle   RefreshStyle
}

// RefreshStyle selects the token-refresh request shape (spec.md §4.3's
// "Refresh methods").
type RefreshStyle string

const (
	RefreshNone          RefreshStyle = ""
	RefreshJSON          RefreshStyle = "json"           // Anthropic OAuth
	RefreshFormEncoded   RefreshStyle = "form"            // Codex, Qwen, Google
	RefreshBasicAuth     RefreshStyle = "basic"            // iFlow
	RefreshKiroJSON      RefreshStyle = "kiro-json"         // {refreshToken}
	RefreshKiroSSOOIDC   RefreshStyle = "kiro-sso-oidc"     // social-auth variant
)

// Registry is the id->Provider lookup table plus, for generic
// OpenAI-/Anthropic-compatible user-added nodes, a factory for
// constructing one on the fly (spec.md §9 "Provider polymorphism").
type Registry struct {
	byId map[string]*Provider
}

// NewRegistry builds the built-in provider table.
func NewRegistry() *Registry {
	r := &Registry{byId: map[string]*Provider{}}
	for _, p := range builtins() {
		p := p
		r.byId[p.Id] = &p
	}
	return r
}

func (r *Registry) Get(id string) (*Provider, bool) {
	p, ok := r.byId[id]
	return p, ok
}

// Register adds or replaces a provider descriptor, used for user-defined
// OpenAI-/Anthropic-compatible nodes (spec.md §3's "generic compatible"
// concept — base URL + apiType supplied at connection-creation time).
func (r *Registry) Register(p Provider) {
	cp := p
	r.byId[p.Id] = &cp
}

// NewCompatibleNode builds an ad-hoc Provider for a user-supplied
// OpenAI-/Anthropic-compatible base URL, matching spec.md §9's default
// executor "parameterized with the node's base URL and apiType" note.
func NewCompatibleNode(id, baseURL string, anthropicCompatible bool) Provider {
	p := Provider{
		Id:          id,
		DisplayName: id,
		BaseURL:     baseURL,
		HeaderStyle: HeaderBearer,
		ChatPath:    "/chat/completions",
	}
	if anthropicCompatible {
		p.PreferredFormat = wireformat.Claude
		p.AnthropicFamily = true
		p.HeaderStyle = HeaderXAPIKey
	} else {
		p.PreferredFormat = wireformat.OpenAI
	}
	return p
}

func builtins() []Provider {
	return []Provider{
		{
			Id: "openai", DisplayName: "OpenAI", BaseURL: "https://api.openai.com/v1",
			PreferredFormat: wireformat.OpenAI, HeaderStyle: HeaderBearer, ChatPath: "/chat/completions",
			ResponsesPath: "/responses",
		},
		{
			Id: "codex", DisplayName: "OpenAI Codex (OAuth)", BaseURL: "https://chatgpt.com/backend-api/codex",
			PreferredFormat: wireformat.OpenAIResponses, HeaderStyle: HeaderBearer, ResponsesPath: "/responses",
			OAuthTokenURL: "https://auth.openai.com/oauth/token", RefreshStyle: RefreshFormEncoded,
		},
		{
			Id: "claude", DisplayName: "Anthropic Claude", BaseURL: "https://api.anthropic.com/v1",
			PreferredFormat: wireformat.Claude, HeaderStyle: HeaderXAPIKey, AnthropicFamily: true,
			ChatPath: "/messages", OAuthTokenURL: "https://console.anthropic.com/v1/oauth/token",
			RefreshStyle: RefreshJSON,
		},
		{
			Id: "gemini", DisplayName: "Google Gemini", BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			PreferredFormat: wireformat.Gemini, HeaderStyle: HeaderGeminiAPIKey,
			OAuthTokenURL: "https://oauth2.googleapis.com/token", RefreshStyle: RefreshFormEncoded,
		},
		{
			Id: "antigravity", DisplayName: "Antigravity (Gemini CLI)", BaseURL: "https://cloudcode-pa.googleapis.com/v1internal",
			PreferredFormat: wireformat.Antigravity, HeaderStyle: HeaderBearer,
			OAuthTokenURL: "https://oauth2.googleapis.com/token", RefreshStyle: RefreshFormEncoded,
		},
		{
			Id: "qwen", DisplayName: "Qwen (DashScope compatible)", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
			PreferredFormat: wireformat.Qwen, HeaderStyle: HeaderBearer, ChatPath: "/chat/completions",
			OAuthTokenURL: "https://chat.qwen.ai/api/v1/oauth2/token", RefreshStyle: RefreshFormEncoded,
		},
		{
			Id: "iflow", DisplayName: "iFlow", BaseURL: "https://apis.iflow.cn/v1",
			PreferredFormat: wireformat.IFlow, HeaderStyle: HeaderBearer, ChatPath: "/chat/completions",
			OAuthTokenURL: "https://iflow.cn/oauth/token", RefreshStyle: RefreshBasicAuth,
		},
		{
			Id: "glm", DisplayName: "Zhipu GLM", BaseURL: "https://open.bigmodel.cn/api/anthropic",
			PreferredFormat: wireformat.Claude, HeaderStyle: HeaderXAPIKey, AnthropicFamily: true, ChatPath: "/messages",
		},
		{
			Id: "kimi", DisplayName: "Moonshot Kimi", BaseURL: "https://api.moonshot.cn/anthropic",
			PreferredFormat: wireformat.Claude, HeaderStyle: HeaderXAPIKey, AnthropicFamily: true, ChatPath: "/messages",
		},
		{
			Id: "minimax", DisplayName: "MiniMax", BaseURL: "https://api.minimax.chat/anthropic",
			PreferredFormat: wireformat.Claude, HeaderStyle: HeaderXAPIKey, AnthropicFamily: true, ChatPath: "/messages",
		},
		{
			Id: "openrouter", DisplayName: "OpenRouter", BaseURL: "https://openrouter.ai/api/v1",
			PreferredFormat: wireformat.OpenAI, HeaderStyle: HeaderBearer, ChatPath: "/chat/completions",
		},
		{
			Id: "copilot", DisplayName: "GitHub Copilot", BaseURL: "https://api.githubcopilot.com",
			PreferredFormat: wireformat.Copilot, HeaderStyle: HeaderBearer, ChatPath: "/chat/completions",
		},
		{
			Id: "kiro", DisplayName: "AWS CodeWhisperer (Kiro)", BaseURL: "https://codewhisperer.us-east-1.amazonaws.com",
			PreferredFormat: wireformat.Kiro, HeaderStyle: HeaderBearer, ChatPath: "/generateAssistantResponse",
			OAuthTokenURL: "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken", RefreshStyle: RefreshKiroJSON,
		},
	}
}
