package wiremodel

// ClaudeMessage is one entry in an Anthropic Messages request's Messages list.
type ClaudeMessage struct {
	Role    string      `json:"role"`
	Content any         `json:"content"` // string or []ClaudeContentBlock
}

// ClaudeContentBlock is one element of a ClaudeMessage's content array.
type ClaudeContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Id        string         `json:"id,omitempty"`        // tool_use
	Name      string         `json:"name,omitempty"`      // tool_use
	Input     map[string]any `json:"input,omitempty"`     // tool_use
	ToolUseId string         `json:"tool_use_id,omitempty"` // tool_result
	Content   any            `json:"content,omitempty"`  // tool_result: string or []ClaudeContentBlock
	IsError   bool           `json:"is_error,omitempty"`
	Source    *ClaudeImageSource `json:"source,omitempty"` // image
}

type ClaudeImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// ClaudeSystemBlock is one element of a list-form `system` field.
type ClaudeSystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ClaudeTool is a tool definition in the Anthropic Messages shape.
type ClaudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ClaudeRequest is the Anthropic Messages request shape.
type ClaudeRequest struct {
	Model     string          `json:"model"`
	Messages  []ClaudeMessage `json:"messages"`
	System    any             `json:"system,omitempty"` // string or []ClaudeSystemBlock
	Tools     []ClaudeTool    `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Stream    bool            `json:"stream,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	StopSequences []string    `json:"stop_sequences,omitempty"`
}

// ClaudeUsage is Anthropic's usage block, distinct field names from OpenAI's.
type ClaudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// ClaudeResponse is the (non-streaming) Anthropic Messages response shape.
type ClaudeResponse struct {
	Id           string               `json:"id"`
	Type         string               `json:"type"`
	Role         string               `json:"role"`
	Model        string               `json:"model"`
	Content      []ClaudeContentBlock `json:"content"`
	StopReason   string               `json:"stop_reason,omitempty"`
	Usage        ClaudeUsage          `json:"usage"`
}

// ClaudeStreamEvent is one SSE event in the Anthropic streaming shape. Only
// the fields relevant to translation and usage extraction are modeled.
type ClaudeStreamEvent struct {
	Type         string               `json:"type"`
	Index        *int                 `json:"index,omitempty"`
	Message      *ClaudeResponse      `json:"message,omitempty"`
	ContentBlock *ClaudeContentBlock  `json:"content_block,omitempty"`
	Delta        *ClaudeStreamDelta   `json:"delta,omitempty"`
	Usage        *ClaudeUsage         `json:"usage,omitempty"`
}

type ClaudeStreamDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

type ClaudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ClaudeErrorResponse struct {
	Type  string      `json:"type"`
	Error ClaudeError `json:"error"`
}
