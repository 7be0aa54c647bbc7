// Package chat implements the top-level orchestration described in
// spec.md §4.7 (Chat Handler) and §4.8 (Chat Core): the per-request
// pipeline that resolves aliases/combos, loops accounts, translates,
// executes upstream, and streams or returns the response.
//
// Grounded on relay/controller/relay.go's Relay/relayHelper dispatch loop
// and relay/controller/helper.go's single-attempt request/response
// helper, adapted from a gin.Context-threaded, DB-channel-backed flow
// into one parameterized over this gateway's in-memory
// internal/provider/internal/credential/internal/executor types.
package chat

import (
	"github.com/1-api-gateway/relaygw/internal/credential"
	"github.com/1-api-gateway/relaygw/internal/executor"
	"github.com/1-api-gateway/relaygw/internal/executor/anthropicoauth"
	"github.com/1-api-gateway/relaygw/internal/executor/copilot"
	"github.com/1-api-gateway/relaygw/internal/executor/gemini"
	"github.com/1-api-gateway/relaygw/internal/executor/kiro"
	"github.com/1-api-gateway/relaygw/internal/provider"
)

// Dispatcher resolves the Executor strategy for a (provider, connection)
// pair, per spec.md §4.3's "specialized executors" list. It lives outside
// internal/executor so that package never has to import its own strategy
// subpackages (gemini/anthropicoauth/copilot/kiro already import
// internal/executor for the shared Request/Response/Executor types — the
// reverse import would be a cycle).
type Dispatcher struct {
	gemini         executor.Executor
	anthropicOAuth executor.Executor
	copilot        executor.Executor
	kiro           executor.Executor
	def            executor.Executor
}

// NewDispatcher builds the default dispatcher wiring every built-in
// specialized executor.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		gemini:         gemini.NewExecutor(),
		anthropicOAuth: anthropicoauth.NewExecutor(),
		copilot:        copilot.NewExecutor(),
		kiro:           kiro.NewExecutor(),
		def:            executor.NewDefaultExecutor(),
	}
}

// For picks the strategy for one upstream call. Kiro and Copilot are
// dedicated providers regardless of auth type; Gemini and Antigravity
// share the Google-style URL/header convention; any Anthropic-family
// provider (claude, glm, kimi, minimax) uses the OAuth strategy only when
// the connection itself authenticates via OAuth — api-key connections to
// the same providers use the default executor's x-api-key branch.
func (d *Dispatcher) For(p *provider.Provider, conn *credential.Connection) executor.Executor {
	switch {
	case p.Id == "kiro":
		return d.kiro
	case p.Id == "copilot":
		return d.copilot
	case p.Id == "gemini" || p.Id == "antigravity":
		return d.gemini
	case p.AnthropicFamily && conn.AuthType == provider.AuthOAuth:
		return d.anthropicOAuth
	default:
		return d.def
	}
}
