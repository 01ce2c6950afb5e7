package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/routeway/pkg/api"
)

func TestRouter_MultiServer(t *testing.T) {
	a := setupTestServer(t, "server-a", map[string]mcp.ToolHandler{
		"tool_a": textResult("from server A"),
		"shared": textResult("shared from A"),
	})
	b := setupTestServer(t, "server-b", map[string]mcp.ToolHandler{
		"tool_b": textResult("from server B"),
		"shared": textResult("shared from B"),
	})

	r := NewRouter(map[string]*Bridge{"server-a": a, "server-b": b})
	defer r.Close()
	ctx := context.Background()

	tools := r.Tools(ctx)
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Function.Name)
	}
	if got := strings.Join(names, ","); got != "shared,tool_a,tool_b" {
		t.Errorf("tools = %s, want sorted and deduplicated", got)
	}

	tests := []struct {
		tool string
		want string
	}{
		{"tool_a", "from server A"},
		{"tool_b", "from server B"},
		{"shared", "shared from A"},
	}
	for _, tt := range tests {
		msg, err := r.Execute(ctx, toolCall("call_"+tt.tool, tt.tool, ""))
		if err != nil {
			t.Fatalf("Execute(%s) error: %v", tt.tool, err)
		}
		if msg.Content != tt.want {
			t.Errorf("Execute(%s) = %q, want %q", tt.tool, msg.Content, tt.want)
		}
	}
}

func TestRouter_UnknownTool(t *testing.T) {
	a := setupTestServer(t, "server-a", map[string]mcp.ToolHandler{
		"known_tool": textResult("ok"),
	})
	r := NewRouter(map[string]*Bridge{"server-a": a})
	defer r.Close()

	msg, err := r.Execute(context.Background(), toolCall("call_unknown", "nonexistent_tool", ""))
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if msg.ToolCallID != "call_unknown" || !strings.Contains(msg.Content, "no MCP server provides tool") {
		t.Errorf("message = %+v", msg)
	}
}

func TestRouter_ExecuteAllPreservesOrder(t *testing.T) {
	a := setupTestServer(t, "server-a", map[string]mcp.ToolHandler{
		"one": textResult("1"),
		"two": textResult("2"),
	})
	r := NewRouter(map[string]*Bridge{"server-a": a})
	defer r.Close()

	calls := []api.ToolCall{
		toolCall("c1", "two", ""),
		toolCall("c2", "one", ""),
		toolCall("c3", "two", ""),
	}
	msgs, err := r.ExecuteAll(context.Background(), calls)
	if err != nil {
		t.Fatalf("ExecuteAll() error: %v", err)
	}
	want := []string{"2", "1", "2"}
	for i, m := range msgs {
		if m.Content != want[i] || m.ToolCallID != calls[i].ID {
			t.Errorf("msgs[%d] = %+v", i, m)
		}
	}
}

func TestFilter(t *testing.T) {
	calls := []api.ToolCall{
		toolCall("c1", "search", "{}"),
		toolCall("c2", "delete_everything", "{}"),
	}

	ok, rejected := Filter(calls, nil)
	if len(ok) != 2 || rejected != nil {
		t.Errorf("no filter: ok=%d rejected=%d", len(ok), len(rejected))
	}

	ok, rejected = Filter(calls, []string{"search"})
	if len(ok) != 1 || ok[0].ID != "c1" {
		t.Errorf("allowed = %+v", ok)
	}
	if len(rejected) != 1 || rejected[0].ToolCallID != "c2" || rejected[0].Role != api.RoleTool {
		t.Errorf("rejected = %+v", rejected)
	}
}

func TestDial_ConnectFailure(t *testing.T) {
	_, err := Dial(context.Background(), []ServerConfig{
		{Name: "x", Transport: "stdio"},
	})
	if err == nil {
		t.Fatal("expected error for unsupported transport")
	}
}
