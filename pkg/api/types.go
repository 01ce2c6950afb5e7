package api

import "encoding/json"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageParam is a chat message accepted by the request builder. It is a
// closed sum type: either a typed ChatMessage or a RawMessage mapping.
type MessageParam interface {
	isMessageParam()
}

// RawMessage is a loosely structured chat message. It must carry at least
// "role" and "content" keys; any other keys are forwarded as-is.
type RawMessage map[string]any

func (RawMessage) isMessageParam() {}

// ChatMessage is a single message in a chat conversation.
// ToolCallID is only meaningful when Role is RoleTool.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`

	// ReasoningContent is only populated on responses from reasoning models.
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

func (ChatMessage) isMessageParam() {}

// ToMap returns the transport-ready mapping. Optional fields are omitted
// when unset, never emitted as null.
func (m ChatMessage) ToMap() map[string]any {
	out := map[string]any{
		"role":    string(m.Role),
		"content": m.Content,
	}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.ToolCalls != nil {
		calls := make([]any, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, tc.ToMap())
		}
		out["tool_calls"] = calls
	}
	if m.ToolCallID != "" {
		out["tool_call_id"] = m.ToolCallID
	}
	if m.ReasoningContent != "" {
		out["reasoning_content"] = m.ReasoningContent
	}
	return out
}

// WithName returns a copy of m carrying the participant name.
func (m ChatMessage) WithName(name string) ChatMessage {
	m.Name = name
	return m
}

// FunctionCall is the function invocation requested by the model.
// Arguments is the raw JSON-encoded argument string; it is never parsed here.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ToMap returns the transport-ready mapping.
func (tc ToolCall) ToMap() map[string]any {
	return map[string]any{
		"id":   tc.ID,
		"type": tc.Type,
		"function": map[string]any{
			"name":      tc.Function.Name,
			"arguments": tc.Function.Arguments,
		},
	}
}

// Function describes a caller-defined function the model may call.
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToMap returns the transport-ready mapping.
func (f Function) ToMap() map[string]any {
	out := map[string]any{"name": f.Name}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.Parameters != nil {
		out["parameters"] = f.Parameters
	}
	return out
}

// ToolTypeFunction is the only tool kind currently defined.
const ToolTypeFunction = "function"

// Tool wraps a tool definition. Type discriminates the variant.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// ToMap returns the transport-ready mapping.
func (t Tool) ToMap() map[string]any {
	return map[string]any{
		"type":     t.Type,
		"function": t.Function.ToMap(),
	}
}

// ToolChoice controls whether and which tool the model calls. Either Mode
// ("auto", "none", "required") or Function is set.
type ToolChoice struct {
	Mode     string
	Function string
}

var (
	ToolChoiceAuto     = ToolChoice{Mode: "auto"}
	ToolChoiceNone     = ToolChoice{Mode: "none"}
	ToolChoiceRequired = ToolChoice{Mode: "required"}
)

// ToolChoiceFunction forces a call to the named function.
func ToolChoiceFunction(name string) ToolChoice {
	return ToolChoice{Function: name}
}

// Value returns the wire form: a bare string for modes, an object for a
// forced function.
func (tc ToolChoice) Value() any {
	if tc.Function != "" {
		return map[string]any{
			"type":     ToolTypeFunction,
			"function": map[string]any{"name": tc.Function},
		}
	}
	return tc.Mode
}

// MarshalJSON implements json.Marshaler.
func (tc ToolChoice) MarshalJSON() ([]byte, error) {
	return json.Marshal(tc.Value())
}

// ReasoningType toggles extended reasoning.
type ReasoningType string

const (
	ReasoningEnabled  ReasoningType = "enabled"
	ReasoningDisabled ReasoningType = "disabled"
)

// ReasoningConfig configures reasoning for models that support it.
type ReasoningConfig struct {
	Type      ReasoningType `json:"type"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
	Budget    *int          `json:"budget,omitempty"`
}

// ToMap returns the transport-ready mapping.
func (r ReasoningConfig) ToMap() map[string]any {
	typ := r.Type
	if typ == "" {
		typ = ReasoningEnabled
	}
	out := map[string]any{"type": string(typ)}
	if r.MaxTokens != nil {
		out["max_tokens"] = *r.MaxTokens
	}
	if r.Budget != nil {
		out["budget"] = *r.Budget
	}
	return out
}

// StreamOptions controls streaming behavior.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ToMap returns the transport-ready mapping.
func (o StreamOptions) ToMap() map[string]any {
	return map[string]any{"include_usage": o.IncludeUsage}
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	ReasoningTokens  *int `json:"reasoning_tokens,omitempty"`
}

// ChatCompletionResponse is the non-streaming response from /chat/completions.
type ChatCompletionResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object,omitempty"`
	Created           int64    `json:"created,omitempty"`
	Model             string   `json:"model,omitempty"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`

	raw json.RawMessage
}

// RawJSON returns the response body exactly as received.
func (r *ChatCompletionResponse) RawJSON() json.RawMessage {
	return r.raw
}

// UnmarshalJSON decodes the response and retains the raw body.
func (r *ChatCompletionResponse) UnmarshalJSON(data []byte) error {
	type plain ChatCompletionResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ChatCompletionResponse(p)
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Choice is one completion alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ChatMessage     `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
}

// ChatCompletionChunk is one event of a streamed completion. Choices carry
// a Delta instead of a full message.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object,omitempty"`
	Created           int64         `json:"created,omitempty"`
	Model             string        `json:"model,omitempty"`
	Choices           []ChunkChoice `json:"choices"`
	Usage             *Usage        `json:"usage,omitempty"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`

	raw json.RawMessage
}

// RawJSON returns the event payload exactly as received.
func (c *ChatCompletionChunk) RawJSON() json.RawMessage {
	return c.raw
}

// UnmarshalJSON decodes the chunk and retains the raw payload.
func (c *ChatCompletionChunk) UnmarshalJSON(data []byte) error {
	type plain ChatCompletionChunk
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = ChatCompletionChunk(p)
	c.raw = append(json.RawMessage(nil), data...)
	return nil
}

// ChunkChoice is a streaming choice delta. FinishReason is nil until the
// final chunk for the choice.
type ChunkChoice struct {
	Index        int             `json:"index"`
	Delta        Delta           `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
	Logprobs     json.RawMessage `json:"logprobs,omitempty"`
}

// Delta is the incremental part of an assistant message.
type Delta struct {
	Role             Role            `json:"role,omitempty"`
	Content          *string         `json:"content,omitempty"`
	ReasoningContent *string         `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is a fragment of a tool call. Fragments with the same Index
// belong to the same call; ID and Name usually arrive only on the first.
type ToolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function FunctionCallDelta `json:"function"`
}

// FunctionCallDelta holds incremental function call data.
type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ErrorDetail is the body of a server error envelope.
type ErrorDetail struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param,omitempty"`
	Code    any     `json:"code,omitempty"`
}

// ErrorResponse is the server error envelope {"error": {...}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ModelPermission describes access rights on a model.
type ModelPermission struct {
	ID                 string  `json:"id,omitempty"`
	Object             string  `json:"object,omitempty"`
	Created            int64   `json:"created,omitempty"`
	AllowCreateEngine  bool    `json:"allow_create_engine,omitempty"`
	AllowSampling      bool    `json:"allow_sampling,omitempty"`
	AllowLogprobs      bool    `json:"allow_logprobs,omitempty"`
	AllowSearchIndices bool    `json:"allow_search_indices,omitempty"`
	AllowView          bool    `json:"allow_view,omitempty"`
	AllowFineTuning    bool    `json:"allow_fine_tuning,omitempty"`
	Organization       string  `json:"organization,omitempty"`
	Group              *string `json:"group,omitempty"`
	IsBlocking         bool    `json:"is_blocking,omitempty"`
}

// Model is the metadata of a single model.
type Model struct {
	ID         string            `json:"id"`
	Object     string            `json:"object"`
	Created    int64             `json:"created"`
	OwnedBy    string            `json:"owned_by"`
	Permission []ModelPermission `json:"permission,omitempty"`
	Root       string            `json:"root,omitempty"`
	Parent     *string           `json:"parent,omitempty"`
}

// ModelList is the response of GET /models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
