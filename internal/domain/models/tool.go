package models

import "github.com/clara-assistant/clara/internal/domain"

// ToolVia tells which path served a tool call.
type ToolVia string

const (
	ViaMCP   ToolVia = "mcp"
	ViaLocal ToolVia = "local"
	ViaMock  ToolVia = "mock"
)

// ToolResult is the uniform envelope returned by the tool execution
// facade regardless of transport.
type ToolResult struct {
	Success       bool        `json:"success"`
	Result        any         `json:"result,omitempty"`
	FormattedText string      `json:"formatted_text,omitempty"`
	ErrorKind     domain.Kind `json:"error_kind,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	ToolName      string      `json:"tool_name"`
	DurationMs    int64       `json:"duration_ms"`
	Via           ToolVia     `json:"via"`
}

// ToolDescriptor is the LLM-facing description of a registered tool.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"parameters"`
}
