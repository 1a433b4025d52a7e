package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message kinds. A transcript alternates between caller requests and model
// responses; the first message of a non-empty transcript is always a request.
const (
	KindRequest  = "request"
	KindResponse = "response"
)

// Part kinds.
const (
	PartText       = "text"
	PartToolCall   = "tool_call"
	PartToolReturn = "tool_return"
)

// Part is one ordered element of a message. Requests carry text and
// tool_return parts; responses carry text and tool_call parts. A tool_return
// references the tool_call of the immediately preceding response by call id.
type Part struct {
	Kind       string          `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Content    string          `json:"content,omitempty"`
}

// Message is a single turn in a conversation.
type Message struct {
	Kind  string `json:"kind"`
	Parts []Part `json:"parts"`
}

// NewUserMessage builds a request carrying a single text part.
func NewUserMessage(text string) Message {
	return Message{
		Kind:  KindRequest,
		Parts: []Part{{Kind: PartText, Text: text}},
	}
}

// NewToolReturnMessage builds a request carrying tool results for the calls
// of the preceding response, in call order.
func NewToolReturnMessage(returns []Part) Message {
	return Message{Kind: KindRequest, Parts: returns}
}

// ToolReturnPart builds a tool_return part answering the given call.
func ToolReturnPart(callID, toolName, content string) Part {
	return Part{
		Kind:       PartToolReturn,
		ToolCallID: callID,
		ToolName:   toolName,
		Content:    content,
	}
}

// IsRequest reports whether the message is a caller turn.
func (m Message) IsRequest() bool { return m.Kind == KindRequest }

// IsResponse reports whether the message is a model turn.
func (m Message) IsResponse() bool { return m.Kind == KindResponse }

// HasToolReturns reports whether any part of the message is a tool result.
func (m Message) HasToolReturns() bool {
	for _, p := range m.Parts {
		if p.Kind == PartToolReturn {
			return true
		}
	}
	return false
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Kind == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool_call parts of a response as ToolCall values.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.Kind == PartToolCall {
			calls = append(calls, ToolCall{
				ID:        p.ToolCallID,
				Name:      p.ToolName,
				Arguments: p.Args,
			})
		}
	}
	return calls
}

// ParseTranscript decodes a caller-supplied history. An empty or "null"
// payload yields an empty transcript.
func ParseTranscript(data []byte) ([]Message, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return msgs, nil
}
