package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/routeway/pkg/api"
	"github.com/rhuss/routeway/pkg/auth"
	"github.com/rhuss/routeway/pkg/debug"
)

// ErrNotConnected is returned when a Bridge is used before Connect.
var ErrNotConnected = errors.New("mcp: not connected")

// Bridge wraps an MCP SDK client session for a single server. It lists
// the server's tools as api.Tool values and executes api.ToolCall values.
type Bridge struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu          sync.Mutex
	cachedTools []api.Tool
	toolNames   map[string]bool
	resolved    bool
}

// NewBridge creates a Bridge for the given server. Call Connect to
// establish the connection.
func NewBridge(cfg ServerConfig) *Bridge {
	return &Bridge{cfg: cfg}
}

// Name returns the configured server name.
func (b *Bridge) Name() string {
	return b.cfg.Name
}

// Connect establishes the MCP connection and performs the protocol
// handshake.
func (b *Bridge) Connect(ctx context.Context) error {
	return b.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport establishes the MCP connection using the given
// transport. If transport is nil, one is created from the server
// configuration.
func (b *Bridge) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	b.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "routeway",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := b.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", b.cfg.Name, err)
		}
		transport = t
	}

	session, err := b.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", b.cfg.Name, err)
	}
	b.session = session
	debug.Log("mcp", "connected", "server", b.cfg.Name, "transport", b.cfg.Transport)
	return nil
}

// createTransport creates an MCP transport based on the server configuration.
func (b *Bridge) createTransport() (mcp.Transport, error) {
	httpClient := b.buildHTTPClient()

	switch b.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{
			Endpoint: b.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{
			Endpoint: b.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", b.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client that adds the configured headers
// and credential. Returns nil if neither is configured.
func (b *Bridge) buildHTTPClient() *http.Client {
	if len(b.cfg.Headers) == 0 && b.cfg.Credential == nil {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{
			base:    http.DefaultTransport,
			headers: b.cfg.Headers,
			cred:    b.cfg.Credential,
		},
	}
}

// headerTransport is an http.RoundTripper that adds static headers and a
// bearer token to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
	cred    auth.Credential
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.cred != nil {
		token, err := t.cred.Token(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting MCP credential: %w", err)
		}
		req.Header.Set("Authorization", auth.BearerHeader(token))
	}
	return t.base.RoundTrip(req)
}

// Tools queries the server for its tools and converts them to api.Tool
// definitions. The result is cached; Refresh discards the cache.
func (b *Bridge) Tools(ctx context.Context) ([]api.Tool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.resolved {
		return b.cachedTools, nil
	}
	if b.session == nil {
		return nil, fmt.Errorf("MCP server %q: %w", b.cfg.Name, ErrNotConnected)
	}

	var defs []api.Tool
	names := make(map[string]bool)
	for tool, err := range b.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", b.cfg.Name, err)
		}
		def, err := convertTool(tool)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, b.cfg.Name, err)
		}
		defs = append(defs, def)
		names[tool.Name] = true
	}

	b.cachedTools = defs
	b.toolNames = names
	b.resolved = true
	debug.Log("mcp", "tools listed", "server", b.cfg.Name, "count", len(defs))
	return defs, nil
}

// Refresh discards the cached tool list.
func (b *Bridge) Refresh() {
	b.mu.Lock()
	b.resolved = false
	b.cachedTools = nil
	b.toolNames = nil
	b.mu.Unlock()
}

// Provides reports whether the server offers the named tool. It lists the
// tools on first use.
func (b *Bridge) Provides(ctx context.Context, name string) bool {
	if _, err := b.Tools(ctx); err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.toolNames[name]
}

// Call executes a tool call on the server and returns the role=tool message
// answering it. Failures of the tool itself, including malformed arguments,
// are reported in the message content so the model can react; only a
// missing connection is returned as an error.
func (b *Bridge) Call(ctx context.Context, call api.ToolCall) (api.ChatMessage, error) {
	if b.session == nil {
		return api.ChatMessage{}, fmt.Errorf("MCP server %q: %w", b.cfg.Name, ErrNotConnected)
	}

	var args map[string]any
	if strings.TrimSpace(call.Function.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return toolError(call.ID, fmt.Sprintf("invalid arguments JSON: %v", err)), nil
		}
	}

	result, err := b.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Function.Name,
		Arguments: args,
	})
	if err != nil {
		return toolError(call.ID, fmt.Sprintf("MCP tool call error: %v", err)), nil
	}

	text := resultText(result)
	if result.IsError {
		debug.Log("mcp", "tool reported error", "server", b.cfg.Name, "tool", call.Function.Name)
		return toolError(call.ID, text), nil
	}
	return api.ToolMessage(text, call.ID), nil
}

// Close closes the MCP session.
func (b *Bridge) Close() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

// convertTool converts an MCP tool to an api.Tool.
func convertTool(t *mcp.Tool) (api.Tool, error) {
	var params map[string]any
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return api.Tool{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		if err := json.Unmarshal(data, &params); err != nil {
			return api.Tool{}, fmt.Errorf("input schema is not an object: %w", err)
		}
	}
	return api.NewTool(api.NewFunction(t.Name, t.Description, params)), nil
}

// resultText joins the text content of a tool result.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func toolError(callID, msg string) api.ChatMessage {
	return api.ToolMessage("Error: "+msg, callID)
}
