// Package request validates chat completion inputs and assembles the
// outbound JSON payload for /chat/completions.
package request

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/routeway/pkg/api"
)

// Payload is the request body. Only keys explicitly supplied by the caller
// are present; omission (not null) signals the server-side default.
type Payload map[string]any

// Stream reports whether the payload asks for a streamed response.
func (p Payload) Stream() bool {
	v, _ := p["stream"].(bool)
	return v
}

// Model returns the target model name.
func (p Payload) Model() string {
	v, _ := p["model"].(string)
	return v
}

// JSON encodes the payload.
func (p Payload) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(p))
}

// Build validates model and messages and merges the optional parameters.
// It fails with a Validation error before any network call is made.
func Build(model string, messages []api.MessageParam, opts ...Option) (Payload, error) {
	return BuildWith(model, messages, Apply(opts...))
}

// BuildWith is Build with an already folded Options value.
func BuildWith(model string, messages []api.MessageParam, o Options) (Payload, error) {
	if strings.TrimSpace(model) == "" {
		return nil, api.NewValidationError("model", "Model must be non-empty string")
	}

	normalized, err := NormalizeMessages(messages)
	if err != nil {
		return nil, err
	}

	for i, tool := range o.Tools {
		if strings.TrimSpace(tool.Function.Name) == "" {
			return nil, api.NewValidationError(fmt.Sprintf("tools[%d].function.name", i), "Function name must be non-empty")
		}
	}

	p := make(Payload, len(o.Extra)+4)

	// Pass-through keys first so named parameters overwrite collisions.
	for k, v := range o.Extra {
		p[k] = v
	}
	delete(p, "stream")

	p["model"] = model
	p["messages"] = normalized

	if o.Stream {
		p["stream"] = true
	}
	if o.Temperature != nil {
		p["temperature"] = *o.Temperature
	}
	if o.MaxTokens != nil {
		p["max_tokens"] = *o.MaxTokens
	}
	if o.TopP != nil {
		p["top_p"] = *o.TopP
	}
	if o.FrequencyPenalty != nil {
		p["frequency_penalty"] = *o.FrequencyPenalty
	}
	if o.PresencePenalty != nil {
		p["presence_penalty"] = *o.PresencePenalty
	}
	if o.Stop != nil {
		p["stop"] = o.Stop
	}
	if o.Tools != nil {
		tools := make([]any, 0, len(o.Tools))
		for _, t := range o.Tools {
			if t.Type == "" {
				t.Type = api.ToolTypeFunction
			}
			tools = append(tools, t.ToMap())
		}
		p["tools"] = tools
	}
	if o.ToolChoice != nil {
		p["tool_choice"] = o.ToolChoice.Value()
	}
	if o.Reasoning != nil {
		p["reasoning"] = o.Reasoning.ToMap()
	}
	if o.StreamOptions != nil {
		p["stream_options"] = o.StreamOptions.ToMap()
	}

	return p, nil
}

// NormalizeMessages converts typed and raw messages into the same mapping
// form. Every message must carry a role and a content field.
func NormalizeMessages(messages []api.MessageParam) ([]map[string]any, error) {
	if len(messages) == 0 {
		return nil, api.NewValidationError("messages", "Messages must be non-empty list")
	}

	out := make([]map[string]any, 0, len(messages))
	for i, msg := range messages {
		param := fmt.Sprintf("messages[%d]", i)
		switch m := msg.(type) {
		case api.ChatMessage:
			if m.Role == "" {
				return nil, api.NewValidationError(param, "Message needs 'role' and 'content' keys")
			}
			out = append(out, m.ToMap())
		case *api.ChatMessage:
			if m == nil || m.Role == "" {
				return nil, api.NewValidationError(param, "Message needs 'role' and 'content' keys")
			}
			out = append(out, m.ToMap())
		case api.RawMessage:
			_, hasRole := m["role"]
			_, hasContent := m["content"]
			if !hasRole || !hasContent {
				return nil, api.NewValidationError(param, "Message needs 'role' and 'content' keys")
			}
			cp := make(map[string]any, len(m))
			for k, v := range m {
				cp[k] = v
			}
			out = append(out, cp)
		default:
			return nil, api.NewValidationError(param, "Message must be RawMessage or ChatMessage")
		}
	}
	return out, nil
}
