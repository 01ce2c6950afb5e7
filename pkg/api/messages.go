package api

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// AssistantMessage creates an assistant message, optionally replaying the
// tool calls the assistant made.
func AssistantMessage(content string, toolCalls ...ToolCall) ChatMessage {
	m := ChatMessage{Role: RoleAssistant, Content: content}
	if len(toolCalls) > 0 {
		m.ToolCalls = toolCalls
	}
	return m
}

// ToolMessage creates the result message for the tool call toolCallID.
func ToolMessage(content, toolCallID string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// NewFunction creates a function definition. parameters is a JSON Schema
// object and may be nil.
func NewFunction(name, description string, parameters map[string]any) Function {
	return Function{Name: name, Description: description, Parameters: parameters}
}

// NewTool wraps a function definition as a tool.
func NewTool(fn Function) Tool {
	return Tool{Type: ToolTypeFunction, Function: fn}
}
