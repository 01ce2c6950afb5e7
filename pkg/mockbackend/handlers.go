package mockbackend

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/rhuss/routeway/pkg/api"
)

const (
	defaultModel   = "mock-model"
	malformedModel = "mock-malformed"
	maxBodySize    = 10 << 20
)

// chatRequest is the part of a chat completion request the mock looks at.
type chatRequest struct {
	Model        string
	Stream       bool
	IncludeUsage bool
	HasTools     bool
	HasSystem    bool
	LastUser     string

	// ToolResult is the content of the final message when it is a tool
	// result.
	ToolResult *string
}

func parseChatRequest(body []byte) chatRequest {
	doc := gjson.ParseBytes(body)
	req := chatRequest{
		Model:        doc.Get("model").String(),
		Stream:       doc.Get("stream").Bool(),
		IncludeUsage: doc.Get("stream_options.include_usage").Bool(),
		HasTools:     doc.Get("tools.#").Int() > 0,
	}
	if req.Model == "" {
		req.Model = defaultModel
	}
	msgs := doc.Get("messages").Array()
	for _, msg := range msgs {
		switch msg.Get("role").String() {
		case "system":
			req.HasSystem = true
		case "user":
			req.LastUser = messageText(msg.Get("content"))
		}
	}
	if n := len(msgs); n > 0 && msgs[n-1].Get("role").String() == "tool" {
		text := messageText(msgs[n-1].Get("content"))
		req.ToolResult = &text
	}
	return req
}

// messageText returns plain string content, or the first text part of a
// multimodal content array.
func messageText(content gjson.Result) string {
	if content.IsArray() {
		for _, part := range content.Array() {
			if part.Get("type").String() == "text" {
				return part.Get("text").String()
			}
		}
		return ""
	}
	return content.String()
}

// statusOverride reports the status requested through a "status-NNN" model.
func statusOverride(model string) (int, bool) {
	code, ok := strings.CutPrefix(model, "status-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 400 || n > 599 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "", "We could not parse the JSON body of your request.")
		return
	}
	if !gjson.GetBytes(body, "messages").IsArray() {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "", "'messages' is a required property")
		return
	}

	req := parseChatRequest(body)
	if code, ok := statusOverride(req.Model); ok {
		if code == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		writeError(w, code, errorType(code), "", "mock failure for model "+req.Model)
		return
	}

	if req.Stream {
		s.streamCompletion(w, r, req)
		return
	}
	writeJSON(w, http.StatusOK, completion(req))
}

func errorType(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return "authentication_error"
	case code == http.StatusTooManyRequests:
		return "rate_limit_error"
	case code >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

func completion(req chatRequest) map[string]any {
	resp := map[string]any{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
	}

	if req.HasTools && req.ToolResult == nil {
		resp["choices"] = []any{map[string]any{
			"index": 0,
			"message": map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []any{api.ToolCall{
					ID:   "call_mock_1",
					Type: api.ToolTypeFunction,
					Function: api.FunctionCall{
						Name:      "get_weather",
						Arguments: `{"location":"San Francisco","unit":"celsius"}`,
					},
				}.ToMap()},
			},
			"finish_reason": "tool_calls",
		}}
		resp["usage"] = api.Usage{PromptTokens: 20, CompletionTokens: 15, TotalTokens: 35}
		return resp
	}

	text := strings.Join(replyTokens(req), "")
	resp["choices"] = []any{map[string]any{
		"index":         0,
		"message":       api.ChatMessage{Role: api.RoleAssistant, Content: text}.ToMap(),
		"finish_reason": "stop",
	}}
	resp["usage"] = api.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	return resp
}

// replyTokens returns the reply text split the way it is streamed.
func replyTokens(req chatRequest) []string {
	switch {
	case req.ToolResult != nil:
		return []string{"Tool", " result", ": ", *req.ToolResult}
	case req.HasSystem:
		return []string{"Ahoy", " there", ",", " matey", "!", " Welcome", " aboard", "!"}
	case strings.Contains(strings.ToLower(req.LastUser), "count from 1 to 5"):
		return []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	default:
		return []string{"Hello", ", ", "nice", " ", "day", "!"}
	}
}

func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req chatRequest) {
	sw := newSSEWriter(w)
	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()

	chunk := func(delta map[string]any, finish any) map[string]any {
		return map[string]any{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   req.Model,
			"choices": []any{map[string]any{
				"index":         0,
				"delta":         delta,
				"finish_reason": finish,
			}},
		}
	}

	send := func(v any) bool {
		if err := sw.WriteChunk(v); err != nil {
			s.logger.Debug("stream write failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
			return false
		}
		return true
	}

	if !send(chunk(map[string]any{"role": "assistant", "content": ""}, nil)) {
		return
	}

	finish := "stop"
	tokens := replyTokens(req)
	if req.HasTools && req.ToolResult == nil {
		finish = "tool_calls"
		tokens = nil
		args := []string{`{"location":`, `"San Francisco",`, `"unit":"celsius"}`}
		for i, a := range args {
			fn := map[string]any{"arguments": a}
			call := map[string]any{"index": 0, "function": fn}
			if i == 0 {
				call["id"] = "call_mock_1"
				call["type"] = api.ToolTypeFunction
				fn["name"] = "get_weather"
			}
			if !send(chunk(map[string]any{"tool_calls": []any{call}}, nil)) {
				return
			}
		}
	}

	for i, tok := range tokens {
		if req.Model == malformedModel && i == 1 {
			if err := sw.WriteData("{not json"); err != nil {
				return
			}
		}
		if !send(chunk(map[string]any{"content": tok}, nil)) {
			return
		}
	}

	if !send(chunk(map[string]any{}, finish)) {
		return
	}

	if req.IncludeUsage {
		n := len(tokens)
		usage := chunk(nil, nil)
		usage["choices"] = []any{}
		usage["usage"] = api.Usage{PromptTokens: 10, CompletionTokens: n, TotalTokens: 10 + n}
		if !send(usage) {
			return
		}
	}

	_ = sw.Done()
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, api.ModelList{Object: "list", Data: s.cfg.Models})
}

func (s *Server) handleRetrieveModel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, m := range s.cfg.Models {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeError(w, http.StatusNotFound, "invalid_request_error", "model_not_found", "The model '"+id+"' does not exist")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an OpenAI error envelope.
func writeError(w http.ResponseWriter, status int, typ, code, message string) {
	detail := api.ErrorDetail{Message: message, Type: typ}
	if code != "" {
		detail.Code = code
	}
	writeJSON(w, status, api.ErrorResponse{Error: detail})
}
