package wiremodel

// ResponsesInputItem is one element of a Responses API request's Input array.
type ResponsesInputItem struct {
	Type    string `json:"type,omitempty"` // "message", "function_call", "function_call_output"
	Role    string `json:"role,omitempty"`
	Content any    `json:"content,omitempty"` // string or []ContentPart
	// function_call
	CallId    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	// function_call_output
	Output any `json:"output,omitempty"`
}

type ResponsesToolDefinition struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponsesRequest is the OpenAI Responses API request shape.
type ResponsesRequest struct {
	Model              string                    `json:"model"`
	Input              []ResponsesInputItem      `json:"input"`
	Instructions       string                    `json:"instructions,omitempty"`
	PreviousResponseId string                    `json:"previous_response_id,omitempty"`
	Tools              []ResponsesToolDefinition `json:"tools,omitempty"`
	Stream             bool                      `json:"stream,omitempty"`
}

type ResponsesOutputItem struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Content   any    `json:"content,omitempty"`
	CallId    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ResponsesResponse is the (non-streaming) Responses API response shape.
type ResponsesResponse struct {
	Id     string                `json:"id"`
	Object string                `json:"object"`
	Model  string                `json:"model"`
	Output []ResponsesOutputItem `json:"output"`
	Usage  *Usage                `json:"usage,omitempty"`
}

// ResponsesStreamEvent is one SSE event in the Responses streaming shape.
type ResponsesStreamEvent struct {
	Type     string               `json:"type"`
	Response *ResponsesResponse   `json:"response,omitempty"`
	Delta    string               `json:"delta,omitempty"`
	Item     *ResponsesOutputItem `json:"item,omitempty"`
}
