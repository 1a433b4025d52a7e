package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the model's function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents a model's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
}

// Tool is the interface every locally hosted tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolSource is a per-request tool surface, bound to the caller's identity
// for downstream authorization.
type ToolSource interface {
	Schemas() []ToolSchema
	Call(ctx context.Context, call ToolCall) (*ToolResult, error)
	Close() error
}

// Attachment is a binary document passed alongside a user turn.
type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// ModelRequest is a transcript plus tool surface handed to the model. When
// Attachment is set, it travels with the latest text-bearing request turn.
type ModelRequest struct {
	System     string
	Messages   []Message
	Tools      []ToolSchema
	Attachment *Attachment
}

// StreamDelta is one increment of a streaming model response. The first delta
// of a tool call carries its ID and Name; subsequent deltas append argument
// fragments at the same index. A delta with a non-nil Err terminates the
// stream: everything accumulated so far is incomplete and must be discarded.
type StreamDelta struct {
	Text      string
	ToolCalls []ToolCall
	Done      bool
	Err       error
}

// ModelProvider streams completions for a transcript.
type ModelProvider interface {
	Name() string
	ChatStream(ctx context.Context, req ModelRequest) (<-chan StreamDelta, error)
}

// DocumentConverter renders markdown into a binary document.
type DocumentConverter interface {
	Convert(ctx context.Context, markdown string) ([]byte, error)
}
