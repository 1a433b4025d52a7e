// Package a2a implements the agent-to-agent delegation protocol used
// between the tool server and the research subagent: JSON-RPC over HTTP
// with message submission and task polling.
package a2a

import (
	"encoding/json"

	"prepmate/internal/domain"
)

// JSON-RPC method names.
const (
	methodSendMessage = "message/send"
	methodGetTask     = "tasks/get"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes used by the task server.
const (
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeTaskNotFound   = -32001
)

// MessagePart is one content part of a message or artifact.
type MessagePart struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// Message is a user-to-agent message.
type Message struct {
	Role      string        `json:"role"`
	Parts     []MessagePart `json:"parts"`
	Kind      string        `json:"kind"`
	MessageID string        `json:"message_id"`
}

// sendMessageParams are the params of a message/send call.
type sendMessageParams struct {
	Message Message `json:"message"`
}

// getTaskParams are the params of a tasks/get call.
type getTaskParams struct {
	TaskID string `json:"task_id"`
}

// TaskStatus reports a task's current lifecycle state.
type TaskStatus struct {
	State domain.TaskState `json:"state"`
}

// Artifact is one output produced by a completed task.
type Artifact struct {
	Parts []MessagePart `json:"parts"`
}

// Task is the wire representation of a delegated task.
type Task struct {
	ID        string     `json:"id"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}
