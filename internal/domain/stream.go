package domain

import "encoding/json"

// StreamEventType discriminates the internal run event union.
type StreamEventType int

const (
	// EventTextDelta carries one chunk of model-produced text.
	EventTextDelta StreamEventType = iota
	// EventToolCall announces a tool invocation requested by the model.
	EventToolCall
	// EventToolResult carries the content a tool returned.
	EventToolResult
	// EventRunFailed terminates a run with an error message.
	EventRunFailed
)

// StreamEvent is one internal event produced during a single run. Produced
// and consumed within one response stream; never persisted.
type StreamEvent struct {
	Type     StreamEventType
	Text     string          // EventTextDelta
	ToolName string          // EventToolCall, EventToolResult
	Args     json.RawMessage // EventToolCall
	Content  string          // EventToolResult
	Message  string          // EventRunFailed
}

// Wire event kinds delivered to the presentation layer.
const (
	WireToken        = "token"
	WireToolCall     = "tool_call"
	WirePDFGenerated = "pdf_generated"
	WirePrepList     = "prep_list"
	WireError        = "error"
)

// WireEvent is a typed, JSON-payload server-sent event.
type WireEvent struct {
	Kind string
	Data any
}

// TokenPayload is the payload of a token event.
type TokenPayload struct {
	Text string `json:"text"`
}

// ToolCallPayload is the payload of a tool_call event. Args is the serialized
// string form of the call arguments.
type ToolCallPayload struct {
	Name string `json:"name"`
	Args string `json:"args"`
}

// PDFGeneratedPayload is the payload of a pdf_generated event.
type PDFGeneratedPayload struct {
	URL string `json:"url"`
}

// PrepListPayload is the payload of a prep_list event. Preps carries the tool
// result verbatim: raw JSON when the content parses as JSON, the plain string
// otherwise.
type PrepListPayload struct {
	Preps any `json:"preps"`
}

// ErrorPayload is the payload of a terminal error event.
type ErrorPayload struct {
	Message string `json:"message"`
}
