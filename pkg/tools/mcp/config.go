package mcp

import (
	"github.com/rhuss/routeway/pkg/auth"
	"github.com/rhuss/routeway/pkg/config"
)

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the logical name for this server, used for logging and
	// identification when routing tool calls.
	Name string `json:"name"`

	// Transport is the transport type to use: "sse" or "streamable-http".
	// If empty, defaults to "streamable-http".
	Transport string `json:"transport"`

	// URL is the MCP server endpoint URL.
	URL string `json:"url"`

	// Headers contains additional HTTP headers to send with requests.
	Headers map[string]string `json:"headers,omitempty"`

	// Credential, if set, supplies an Authorization bearer token for every
	// request and overrides an Authorization entry in Headers.
	Credential auth.Credential `json:"-"`
}

// ServersFromConfig converts loaded configuration entries.
func ServersFromConfig(servers []config.MCPServerConfig) []ServerConfig {
	out := make([]ServerConfig, 0, len(servers))
	for _, s := range servers {
		out = append(out, ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			URL:       s.URL,
			Headers:   s.Headers,
		})
	}
	return out
}
