// Package wireformat enumerates the request/response wire shapes the
// gateway understands and classifies an incoming body into one of them.
//
// Grounded on relay/relaymode/helper.go's ordered, priority-based
// classification idiom from the teacher.
package wireformat

import "github.com/tidwall/gjson"

// Format is a wire format tag (spec.md §3 "Wire formats").
type Format string

const (
	OpenAI           Format = "OPENAI"
	Claude           Format = "CLAUDE"
	Gemini           Format = "GEMINI"
	OpenAIResponses  Format = "OPENAI_RESPONSES"
	Kiro             Format = "KIRO"
	Copilot          Format = "COPILOT"
	Antigravity      Format = "ANTIGRAVITY"
	Qwen             Format = "QWEN"
	IFlow            Format = "IFLOW"
)

// IsDialect reports whether f is a provider dialect format, one that a
// request body is never detected as (a translation target only).
func IsDialect(f Format) bool {
	switch f {
	case Kiro, Copilot, Antigravity, Qwen, IFlow:
		return true
	default:
		return false
	}
}

// Detect classifies a parsed JSON request body per spec.md §4.1. Detection
// is deterministic and side-effect-free: it only inspects the body and the
// optional anthropic-version header hint.
func Detect(body []byte, anthropicVersionHeaderSeen bool) Format {
	root := gjson.ParseBytes(body)

	hasInput := root.Get("input").IsArray()
	hasInstructionsOrPrevID := root.Get("instructions").Exists() || root.Get("previous_response_id").Exists()
	if hasInput && hasInstructionsOrPrevID {
		return OpenAIResponses
	}

	if hasGeminiContents(root) {
		return Gemini
	}

	hasMessages := root.Get("messages").IsArray()
	if hasMessages && looksLikeClaude(root, anthropicVersionHeaderSeen) {
		return Claude
	}

	if hasMessages {
		return OpenAI
	}

	// Ambiguous bodies default to OPENAI.
	return OpenAI
}

func hasGeminiContents(root gjson.Result) bool {
	if root.Get("contents").IsArray() {
		return true
	}
	// nested (e.g. {"request":{"contents":[...]}})
	found := false
	root.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() && v.Get("contents").IsArray() {
			found = true
			return false
		}
		return true
	})
	return found
}

func looksLikeClaude(root gjson.Result, anthropicVersionHeaderSeen bool) bool {
	if anthropicVersionHeaderSeen {
		return true
	}
	sys := root.Get("system")
	if sys.Exists() && (sys.Type == gjson.String || sys.IsArray()) {
		return true
	}
	usesToolBlocks := false
	root.Get("messages").ForEach(func(_, msg gjson.Result) bool {
		content := msg.Get("content")
		if !content.IsArray() {
			return true
		}
		content.ForEach(func(_, block gjson.Result) bool {
			t := block.Get("type").String()
			if t == "tool_use" || t == "tool_result" {
				usesToolBlocks = true
				return false
			}
			return true
		})
		return !usesToolBlocks
	})
	return usesToolBlocks
}
