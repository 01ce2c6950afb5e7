package stream

import (
	"sort"
	"strings"

	"github.com/rhuss/routeway/pkg/api"
)

// toolCallBuffer tracks incremental tool call assembly across chunks for a
// single tool call index.
type toolCallBuffer struct {
	ID   string
	Type string
	Name string
	Args strings.Builder
}

// Accumulator merges the deltas of the first choice into a complete
// assistant message. It is a consumer-side helper; the decoder itself never
// accretes state across chunks.
type Accumulator struct {
	id      string
	model   string
	created int64

	role         api.Role
	content      strings.Builder
	reasoning    strings.Builder
	toolCalls    map[int]*toolCallBuffer
	finishReason string
	usage        *api.Usage
}

// Add folds chunk into the accumulated message. Choices other than index 0
// are ignored.
func (a *Accumulator) Add(chunk *api.ChatCompletionChunk) {
	if chunk == nil {
		return
	}
	if a.id == "" {
		a.id = chunk.ID
	}
	if a.model == "" {
		a.model = chunk.Model
	}
	if a.created == 0 {
		a.created = chunk.Created
	}
	if chunk.Usage != nil {
		u := *chunk.Usage
		a.usage = &u
	}

	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		d := choice.Delta
		if d.Role != "" {
			a.role = d.Role
		}
		if d.Content != nil {
			a.content.WriteString(*d.Content)
		}
		if d.ReasoningContent != nil {
			a.reasoning.WriteString(*d.ReasoningContent)
		}
		for _, tc := range d.ToolCalls {
			a.addToolCall(tc)
		}
		if choice.FinishReason != nil {
			a.finishReason = *choice.FinishReason
		}
	}
}

func (a *Accumulator) addToolCall(tc api.ToolCallDelta) {
	if a.toolCalls == nil {
		a.toolCalls = make(map[int]*toolCallBuffer)
	}
	buf, ok := a.toolCalls[tc.Index]
	if !ok {
		buf = &toolCallBuffer{}
		a.toolCalls[tc.Index] = buf
	}
	if tc.ID != "" {
		buf.ID = tc.ID
	}
	if tc.Type != "" {
		buf.Type = tc.Type
	}
	if tc.Function.Name != "" {
		buf.Name = tc.Function.Name
	}
	buf.Args.WriteString(tc.Function.Arguments)
}

// Message returns the message assembled so far. Tool calls are ordered by
// their stream index.
func (a *Accumulator) Message() api.ChatMessage {
	role := a.role
	if role == "" {
		role = api.RoleAssistant
	}
	msg := api.ChatMessage{
		Role:             role,
		Content:          a.content.String(),
		ReasoningContent: a.reasoning.String(),
	}

	if len(a.toolCalls) > 0 {
		indices := make([]int, 0, len(a.toolCalls))
		for idx := range a.toolCalls {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			buf := a.toolCalls[idx]
			typ := buf.Type
			if typ == "" {
				typ = api.ToolTypeFunction
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				ID:   buf.ID,
				Type: typ,
				Function: api.FunctionCall{
					Name:      buf.Name,
					Arguments: buf.Args.String(),
				},
			})
		}
	}
	return msg
}

// FinishReason returns the last finish reason seen, or "".
func (a *Accumulator) FinishReason() string {
	return a.finishReason
}

// Usage returns the usage block if the stream carried one.
func (a *Accumulator) Usage() *api.Usage {
	return a.usage
}

// Response synthesizes a non-streaming response from the accumulated state.
func (a *Accumulator) Response() *api.ChatCompletionResponse {
	return &api.ChatCompletionResponse{
		ID:      a.id,
		Object:  "chat.completion",
		Created: a.created,
		Model:   a.model,
		Choices: []api.Choice{{
			Index:        0,
			Message:      a.Message(),
			FinishReason: a.finishReason,
		}},
		Usage: a.usage,
	}
}

// Accumulate drains s through a new Accumulator.
func Accumulate(s *Stream) (*Accumulator, error) {
	acc := &Accumulator{}
	for chunk, err := range s.All() {
		if err != nil {
			return acc, err
		}
		acc.Add(chunk)
	}
	return acc, nil
}
