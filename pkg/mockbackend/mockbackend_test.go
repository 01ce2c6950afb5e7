package mockbackend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/auth/jwt"
	"github.com/rhuss/routeway/pkg/client"
	"github.com/rhuss/routeway/pkg/mockbackend"
	"github.com/rhuss/routeway/pkg/request"
	"github.com/rhuss/routeway/pkg/stream"
	"github.com/rhuss/routeway/pkg/tools/mcp"
)

func newBackend(t *testing.T, cfg mockbackend.Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mockbackend.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{
		client.WithAPIKey("k"),
		client.WithBaseURL(srv.URL + "/v1"),
		client.WithMaxRetries(0),
	}, opts...)
	c, err := client.New(opts...)
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func user(text string) []api.MessageParam {
	return []api.MessageParam{api.UserMessage(text)}
}

func TestChatCompletion(t *testing.T) {
	c := newClient(t, newBackend(t, mockbackend.Config{}))

	tests := []struct {
		name     string
		messages []api.MessageParam
		want     string
	}{
		{"default", user("hi"), "Hello, nice day!"},
		{"count", user("Please count from 1 to 5"), "1, 2, 3, 4, 5"},
		{"system", []api.MessageParam{
			api.ChatMessage{Role: api.RoleSystem, Content: "talk like a pirate"},
			api.UserMessage("hi"),
		}, "Ahoy there, matey! Welcome aboard!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.ChatCompletion(context.Background(), "mock-model", tt.messages)
			if err != nil {
				t.Fatalf("ChatCompletion() error: %v", err)
			}
			if got := resp.Choices[0].Message.Content; got != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
			if resp.Model != "mock-model" || !strings.HasPrefix(resp.ID, "chatcmpl-") {
				t.Errorf("response header = %s/%s", resp.ID, resp.Model)
			}
			if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
				t.Errorf("usage = %+v", resp.Usage)
			}
		})
	}
}

func TestChatCompletion_ToolCall(t *testing.T) {
	c := newClient(t, newBackend(t, mockbackend.Config{}))
	tool := api.NewTool(api.NewFunction("get_weather", "Weather lookup", map[string]any{"type": "object"}))

	resp, err := c.ChatCompletion(context.Background(), "mock-model", user("weather?"), request.WithTools(tool))
	if err != nil {
		t.Fatalf("ChatCompletion() error: %v", err)
	}
	choice := resp.Choices[0]
	if choice.FinishReason != "tool_calls" || len(choice.Message.ToolCalls) != 1 {
		t.Fatalf("choice = %+v", choice)
	}
	if call := choice.Message.ToolCalls[0]; call.Function.Name != "get_weather" || call.ID != "call_mock_1" {
		t.Errorf("tool call = %+v", call)
	}
}

func TestChatCompletionStream(t *testing.T) {
	c := newClient(t, newBackend(t, mockbackend.Config{}))

	s, err := c.ChatCompletionStream(context.Background(), "mock-model", user("hi"),
		request.WithStreamOptions(api.StreamOptions{IncludeUsage: true}))
	if err != nil {
		t.Fatalf("ChatCompletionStream() error: %v", err)
	}
	acc, err := stream.Accumulate(s)
	if err != nil {
		t.Fatalf("Accumulate() error: %v", err)
	}
	if got := acc.Message().Content; got != "Hello, nice day!" {
		t.Errorf("content = %q", got)
	}
	if acc.FinishReason() != "stop" {
		t.Errorf("finish reason = %q", acc.FinishReason())
	}
	if u := acc.Usage(); u == nil || u.CompletionTokens != 6 {
		t.Errorf("usage = %+v", u)
	}
	if s.Skipped() != 0 {
		t.Errorf("skipped = %d", s.Skipped())
	}
}

func TestChatCompletionStream_ToolCallFragments(t *testing.T) {
	c := newClient(t, newBackend(t, mockbackend.Config{}))
	tool := api.NewTool(api.NewFunction("get_weather", "", nil))

	s, err := c.ChatCompletionStream(context.Background(), "mock-model", user("weather?"), request.WithTools(tool))
	if err != nil {
		t.Fatalf("ChatCompletionStream() error: %v", err)
	}
	acc, err := stream.Accumulate(s)
	if err != nil {
		t.Fatalf("Accumulate() error: %v", err)
	}
	calls := acc.Message().ToolCalls
	if len(calls) != 1 || calls[0].Function.Arguments != `{"location":"San Francisco","unit":"celsius"}` {
		t.Errorf("tool calls = %+v", calls)
	}
	if acc.Usage() != nil {
		t.Errorf("usage without include_usage = %+v", acc.Usage())
	}
}

func TestChatCompletionStream_MalformedChunkSkipped(t *testing.T) {
	c := newClient(t, newBackend(t, mockbackend.Config{}))

	s, err := c.ChatCompletionStream(context.Background(), "mock-malformed", user("hi"))
	if err != nil {
		t.Fatalf("ChatCompletionStream() error: %v", err)
	}
	acc, err := stream.Accumulate(s)
	if err != nil {
		t.Fatalf("Accumulate() error: %v", err)
	}
	if got := acc.Message().Content; got != "Hello, nice day!" {
		t.Errorf("content = %q", got)
	}
	if s.Skipped() != 1 {
		t.Errorf("skipped = %d, want 1", s.Skipped())
	}
}

func TestStatusOverride(t *testing.T) {
	c := newClient(t, newBackend(t, mockbackend.Config{}))

	tests := []struct {
		model string
		kind  api.ErrorKind
	}{
		{"status-401", api.KindAuth},
		{"status-429", api.KindRateLimit},
		{"status-503", api.KindServer},
		{"status-422", api.KindHTTP},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			_, err := c.ChatCompletion(context.Background(), tt.model, user("hi"))
			if !api.IsKind(err, tt.kind) {
				t.Fatalf("error = %v, want kind %s", err, tt.kind)
			}
			if !strings.Contains(err.Error(), "mock failure") {
				t.Errorf("error message = %q, want server envelope message", err.Error())
			}
		})
	}
}

func TestModels(t *testing.T) {
	c := newClient(t, newBackend(t, mockbackend.Config{}))
	ctx := context.Background()

	list, err := c.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 2 {
		t.Errorf("models = %+v", list)
	}

	m, err := c.RetrieveModel(ctx, "mock-reasoner")
	if err != nil {
		t.Fatalf("RetrieveModel() error: %v", err)
	}
	if m.ID != "mock-reasoner" || m.OwnedBy != "routeway-mock" {
		t.Errorf("model = %+v", m)
	}

	_, err = c.RetrieveModel(ctx, "missing")
	if !api.IsKind(err, api.KindHTTP) {
		t.Errorf("missing model error = %v, want HTTP kind", err)
	}
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("missing model status = %+v", apiErr)
	}
}

func TestBearerRequired(t *testing.T) {
	srv := newBackend(t, mockbackend.Config{})

	resp, err := http.Get(srv.URL + "/v1/models")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var envelope api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "missing_api_key" || envelope.Error.Message == "" {
		t.Errorf("envelope = %+v", envelope)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestAPIKeysAndJWT(t *testing.T) {
	secret := []byte("test-secret")
	srv := newBackend(t, mockbackend.Config{APIKeys: []string{"good"}, JWTSecret: secret})

	if _, err := newClient(t, srv, client.WithAPIKey("good")).ListModels(context.Background()); err != nil {
		t.Errorf("configured key rejected: %v", err)
	}

	_, err := newClient(t, srv, client.WithAPIKey("bad")).ListModels(context.Background())
	if !api.IsKind(err, api.KindAuth) {
		t.Errorf("bad key error = %v, want Auth", err)
	}

	src, err := jwt.New(jwt.Config{Secret: secret, Issuer: "test", Subject: "svc", TTL: time.Minute})
	if err != nil {
		t.Fatalf("jwt.New() error: %v", err)
	}
	if _, err := newClient(t, srv, client.WithCredential(src)).ListModels(context.Background()); err != nil {
		t.Errorf("signed token rejected: %v", err)
	}
}

func TestInvalidRequests(t *testing.T) {
	srv := newBackend(t, mockbackend.Config{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"bad json", http.MethodPost, "/v1/chat/completions", "{", http.StatusBadRequest},
		{"missing messages", http.MethodPost, "/v1/chat/completions", `{"model":"m"}`, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/v1/nope", "", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/v1/chat/completions", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer k")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestServeShutdown(t *testing.T) {
	s := mockbackend.New(mockbackend.Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServe() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestToolRoundTrip(t *testing.T) {
	srv := newBackend(t, mockbackend.Config{})
	c := newClient(t, srv)
	ctx := context.Background()

	bridge := mcp.NewBridge(mcp.ServerConfig{Name: "mock", Transport: "streamable-http", URL: srv.URL + "/mcp"})
	if err := bridge.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer bridge.Close()

	tools, err := bridge.Tools(ctx)
	if err != nil {
		t.Fatalf("Tools() error: %v", err)
	}
	if len(tools) != 3 {
		t.Fatalf("tools = %d, want 3", len(tools))
	}

	messages := user("What's the weather in San Francisco?")
	resp, err := c.ChatCompletion(ctx, "mock-model", messages, request.WithTools(tools...))
	if err != nil {
		t.Fatalf("ChatCompletion() error: %v", err)
	}
	assistant := resp.Choices[0].Message
	if len(assistant.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", assistant.ToolCalls)
	}

	result, err := bridge.Call(ctx, assistant.ToolCalls[0])
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if result.Content != "San Francisco: sunny, 18 degrees celsius" {
		t.Errorf("tool result = %q", result.Content)
	}

	messages = append(messages, assistant, result)
	resp, err = c.ChatCompletion(ctx, "mock-model", messages, request.WithTools(tools...))
	if err != nil {
		t.Fatalf("ChatCompletion() error: %v", err)
	}
	if got := resp.Choices[0].Message.Content; got != "Tool result: San Francisco: sunny, 18 degrees celsius" {
		t.Errorf("final reply = %q", got)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish reason = %q", resp.Choices[0].FinishReason)
	}
}

func TestToolServer_GetTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server := mockbackend.NewToolServer(func() time.Time { return fixed })

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = server.Run(ctx, serverTransport) }()

	bridge := mcp.NewBridge(mcp.ServerConfig{Name: "tools"})
	if err := bridge.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport() error: %v", err)
	}
	defer bridge.Close()

	msg, err := bridge.Call(ctx, api.ToolCall{ID: "c1", Type: api.ToolTypeFunction, Function: api.FunctionCall{Name: "get_time", Arguments: "{}"}})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if msg.Content != "Current time: 2026-03-01T12:00:00Z" {
		t.Errorf("get_time = %q", msg.Content)
	}

	msg, _ = bridge.Call(ctx, api.ToolCall{ID: "c2", Type: api.ToolTypeFunction, Function: api.FunctionCall{Name: "echo", Arguments: `{"message":"hi"}`}})
	if msg.Content != "Echo: hi" {
		t.Errorf("echo = %q", msg.Content)
	}
}
