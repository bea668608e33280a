package portkeyclient

import "encoding/json"

// Request/response types for the Portkey gateway. The gateway exposes
// OpenAI-compatible completion endpoints; routing instructions travel in
// x-portkey-* headers rather than the request body.

// GatewayConfig is the routing document serialized into the
// x-portkey-config header. The strategy selects how the gateway picks
// among targets; each target describes one upstream provider.
type GatewayConfig struct {
	Strategy Strategy `json:"strategy"`
	Targets  []Target `json:"targets,omitempty"`
}

// Strategy selects the gateway routing mode.
type Strategy struct {
	Mode string `json:"mode"`
}

// Target describes one upstream provider entry in the gateway config.
type Target struct {
	Provider       string          `json:"provider,omitempty"`
	VirtualKey     string          `json:"virtual_key,omitempty"`
	APIKey         string          `json:"api_key,omitempty"`
	Weight         float64         `json:"weight,omitempty"`
	Retry          *RetryConfig    `json:"retry,omitempty"`
	Cache          *CacheConfig    `json:"cache,omitempty"`
	OverrideParams *OverrideParams `json:"override_params,omitempty"`
}

// RetryConfig controls gateway-side retries for a target.
type RetryConfig struct {
	Attempts      int   `json:"attempts"`
	OnStatusCodes []int `json:"on_status_codes,omitempty"`
}

// CacheConfig controls gateway-side response caching for a target.
// Mode is "simple" or "semantic".
type CacheConfig struct {
	Mode   string `json:"mode"`
	MaxAge int    `json:"max_age,omitempty"`
}

// OverrideParams are model parameters the gateway applies to a target,
// taking precedence over the corresponding request body fields.
type OverrideParams struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Routing bundles the per-request gateway headers: the config document,
// the trace ID, and the metadata object. It is carried on request
// structs but never serialized into the JSON body.
type Routing struct {
	Config   *GatewayConfig
	TraceID  string
	Metadata map[string]any
}

// ChatCompletionRequest is the request body for /v1/chat/completions.
type ChatCompletionRequest struct {
	Model            string             `json:"model,omitempty"`
	Messages         []ChatMessage      `json:"messages"`
	Tools            []Tool             `json:"tools,omitempty"`
	ToolChoice       any                `json:"tool_choice,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TopP             *float64           `json:"top_p,omitempty"`
	MaxTokens        int                `json:"max_tokens,omitempty"`
	N                int                `json:"n,omitempty"`
	Stop             []string           `json:"stop,omitempty"`
	Seed             int                `json:"seed,omitempty"`
	FrequencyPenalty *float64           `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64           `json:"presence_penalty,omitempty"`
	ResponseFormat   *ResponseFormat    `json:"response_format,omitempty"`
	Stream           bool               `json:"stream"`
	StreamOptions    *ChatStreamOptions `json:"stream_options,omitempty"`

	// Routing travels in x-portkey-* headers, not the body.
	Routing *Routing `json:"-"`
}

// ChatStreamOptions controls streaming behavior.
type ChatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ResponseFormat selects the response encoding (e.g. JSON mode).
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatMessage represents a message in the Chat Completions format.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

// ChatContentPart is one element of a multimodal content array.
type ChatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *ChatImageURL `json:"image_url,omitempty"`
}

// ChatImageURL references an image by URL with an optional detail hint.
type ChatImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ChatToolCall represents a tool call in an assistant message.
type ChatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ChatFunctionCall `json:"function"`
}

// ChatFunctionCall holds function name and arguments.
type ChatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool represents a tool definition.
type Tool struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef is a function definition for a tool.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatCompletionResponse is the non-streaming response from /v1/chat/completions.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// ChatChoice represents one completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage holds token usage reported by the gateway.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is a single SSE chunk in a streaming chat response.
type ChatCompletionChunk struct {
	ID      string            `json:"id"`
	Object  string            `json:"object"`
	Model   string            `json:"model"`
	Choices []ChatChunkChoice `json:"choices"`
	Usage   *Usage            `json:"usage,omitempty"`
}

// ChatChunkChoice represents a streaming choice delta.
type ChatChunkChoice struct {
	Index        int            `json:"index"`
	Delta        ChatChunkDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

// ChatChunkDelta holds incremental content in a streaming chunk.
type ChatChunkDelta struct {
	Role      string              `json:"role,omitempty"`
	Content   *string             `json:"content,omitempty"`
	ToolCalls []ChatChunkToolCall `json:"tool_calls,omitempty"`
}

// ChatChunkToolCall represents an incremental tool call in a streaming chunk.
type ChatChunkToolCall struct {
	Index    int                   `json:"index"`
	ID       string                `json:"id,omitempty"`
	Type     string                `json:"type,omitempty"`
	Function ChatChunkFunctionCall `json:"function"`
}

// ChatChunkFunctionCall holds incremental function call data.
type ChatChunkFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// CompletionRequest is the request body for the legacy /v1/completions
// endpoint (prompt in, text out).
type CompletionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	N           int      `json:"n,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream"`

	// Routing travels in x-portkey-* headers, not the body.
	Routing *Routing `json:"-"`
}

// CompletionResponse is the non-streaming response from /v1/completions.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// CompletionChoice represents one text completion choice.
type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// CompletionChunk is a single SSE chunk in a streaming completion response.
// The legacy endpoint streams full choice objects whose Text field carries
// the incremental token.
type CompletionChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// ErrorResponse is the error format returned by the gateway.
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// ModelsResponse is the response from /v1/models.
type ModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// Model represents a model in the /v1/models response.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}
