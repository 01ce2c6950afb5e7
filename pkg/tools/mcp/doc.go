// Package mcp bridges MCP (Model Context Protocol) servers into chat
// completions. A Bridge connects to one server, exposes its tools as
// api.Tool definitions for a request, and executes the api.ToolCall values
// a model returns, producing the role=tool messages for the next turn.
// A Router fans calls out across several bridges by tool name.
//
// The package wraps the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk). Servers are reached over
// streamable HTTP or SSE; tests inject in-memory transports.
package mcp
