package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rhuss/routeway/pkg/api"
)

// Router routes tool calls across several MCP servers by tool name.
type Router struct {
	mu sync.RWMutex

	bridges map[string]*Bridge

	// toolToServer maps tool name to the server name that provides it.
	toolToServer map[string]string
	tools        []api.Tool
	discovered   bool
}

// NewRouter creates a Router over connected bridges keyed by server name.
func NewRouter(bridges map[string]*Bridge) *Router {
	return &Router{
		bridges:      bridges,
		toolToServer: make(map[string]string),
	}
}

// Dial connects to every server and returns a Router over them. If any
// connection fails, the ones already made are closed.
func Dial(ctx context.Context, servers []ServerConfig) (*Router, error) {
	bridges := make(map[string]*Bridge, len(servers))
	for _, cfg := range servers {
		if _, dup := bridges[cfg.Name]; dup {
			closeAll(bridges)
			return nil, fmt.Errorf("duplicate MCP server name %q", cfg.Name)
		}
		b := NewBridge(cfg)
		if err := b.Connect(ctx); err != nil {
			closeAll(bridges)
			return nil, err
		}
		bridges[cfg.Name] = b
	}
	return NewRouter(bridges), nil
}

func closeAll(bridges map[string]*Bridge) {
	for _, b := range bridges {
		b.Close()
	}
}

// Tools returns the tools of all servers, sorted by name. When two servers
// offer the same tool name, the server whose name sorts first wins.
func (r *Router) Tools(ctx context.Context) []api.Tool {
	r.ensureDiscovered(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools
}

// Execute routes the call to the server providing the tool. Unknown tools
// produce an error message for the model rather than a Go error.
func (r *Router) Execute(ctx context.Context, call api.ToolCall) (api.ChatMessage, error) {
	r.ensureDiscovered(ctx)

	r.mu.RLock()
	server, ok := r.toolToServer[call.Function.Name]
	b := r.bridges[server]
	r.mu.RUnlock()

	if !ok {
		return toolError(call.ID, fmt.Sprintf("no MCP server provides tool %q", call.Function.Name)), nil
	}
	return b.Call(ctx, call)
}

// ExecuteAll runs calls concurrently and returns the tool messages in the
// order of calls, ready to append to the conversation.
func (r *Router) ExecuteAll(ctx context.Context, calls []api.ToolCall) ([]api.ChatMessage, error) {
	out := make([]api.ChatMessage, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			msg, err := r.Execute(gctx, call)
			if err != nil {
				return err
			}
			out[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes all bridges.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, b := range r.bridges {
		if err := b.Close(); err != nil {
			slog.Warn("failed to close MCP bridge", "server", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ensureDiscovered lists tools from every bridge on first use.
func (r *Router) ensureDiscovered(ctx context.Context) {
	r.mu.RLock()
	if r.discovered {
		r.mu.RUnlock()
		return
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.discovered {
		return
	}

	names := make([]string, 0, len(r.bridges))
	for name := range r.bridges {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		defs, err := r.bridges[name].Tools(ctx)
		if err != nil {
			slog.Error("failed to list tools from MCP server",
				"server", name,
				"error", err,
			)
			continue
		}

		for _, def := range defs {
			if _, exists := r.toolToServer[def.Function.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first provider",
					"tool", def.Function.Name,
					"server", name,
				)
				continue
			}
			r.toolToServer[def.Function.Name] = name
			r.tools = append(r.tools, def)
		}
	}

	sort.Slice(r.tools, func(i, j int) bool {
		return r.tools[i].Function.Name < r.tools[j].Function.Name
	})
	r.discovered = true
}

// Filter splits calls into those whose tool is in allowed and error
// messages answering the rest. An empty allowed list permits every call.
func Filter(calls []api.ToolCall, allowed []string) ([]api.ToolCall, []api.ChatMessage) {
	if len(allowed) == 0 {
		return calls, nil
	}

	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}

	var ok []api.ToolCall
	var rejected []api.ChatMessage
	for _, call := range calls {
		if set[call.Function.Name] {
			ok = append(ok, call)
			continue
		}
		rejected = append(rejected, toolError(call.ID, "tool "+call.Function.Name+" is not in the allowed tools list"))
	}
	return ok, rejected
}
