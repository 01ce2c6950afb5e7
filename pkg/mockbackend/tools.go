package mockbackend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// WeatherInput is the argument object of the get_weather tool.
type WeatherInput struct {
	Location string `json:"location" jsonschema:"City name"`
	Unit     string `json:"unit,omitempty" jsonschema:"celsius or fahrenheit"`
}

// EchoInput is the argument object of the echo tool.
type EchoInput struct {
	Message string `json:"message" jsonschema:"The message to echo back"`
}

// NewToolServer returns an MCP server with the get_weather, get_time and
// echo tools. get_weather matches the tool call the chat endpoint emits, so
// a client can run a complete tool round trip against the mock.
func NewToolServer(now func() time.Time) *mcp.Server {
	if now == nil {
		now = time.Now
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "routeway-mock-tools", Version: "v1.0.0"},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_weather",
		Description: "Returns the current weather for a location",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in WeatherInput) (*mcp.CallToolResult, any, error) {
		unit := in.Unit
		if unit == "" {
			unit = "celsius"
		}
		temp := "18 degrees " + unit
		if unit == "fahrenheit" {
			temp = "64 degrees " + unit
		}
		return textToolResult(fmt.Sprintf("%s: sunny, %s", in.Location, temp)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_time",
		Description: "Returns the current UTC time",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		return textToolResult("Current time: " + now().UTC().Format(time.RFC3339)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echoes the provided message back",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in EchoInput) (*mcp.CallToolResult, any, error) {
		return textToolResult("Echo: " + in.Message), nil, nil
	})

	return server
}

func textToolResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// toolHandler serves server over streamable HTTP.
func toolHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}
