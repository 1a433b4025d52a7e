package a2a

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"prepmate/internal/domain"
)

// taskDeadline bounds one background research run.
const taskDeadline = 10 * time.Minute

// Runner executes one research query to completion.
type Runner interface {
	Run(ctx context.Context, query string) (string, error)
}

// AgentCard describes the research subagent to discovering clients.
type AgentCard struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Server is the research subagent's task server: it accepts message/send
// submissions, runs them in the background, and answers tasks/get polls.
type Server struct {
	runner Runner
	card   AgentCard
	logger *slog.Logger

	tasks sync.Map // task ID -> *taskRecord
}

// NewServer creates a task server around a runner.
func NewServer(runner Runner, logger *slog.Logger) *Server {
	return &Server{
		runner: runner,
		card: AgentCard{
			Name:        "Interview Prep Researcher",
			Description: "Researches a role and produces a strategic interview preparation document.",
			Version:     "1.0.0",
		},
		logger: logger,
	}
}

// taskRecord holds one task's mutable state.
type taskRecord struct {
	mu   sync.Mutex
	task Task
}

func (r *taskRecord) setState(state domain.TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task.Status.State.Terminal() {
		return
	}
	r.task.Status.State = state
}

func (r *taskRecord) complete(markdown string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task.Status.State.Terminal() {
		return
	}
	r.task.Status.State = domain.TaskCompleted
	r.task.Artifacts = []Artifact{{Parts: []MessagePart{{Kind: "text", Text: markdown}}}}
}

func (r *taskRecord) snapshot() Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.task
}

// Handler returns the HTTP handler for the task server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/agent.json", s.handleAgentCard)
	mux.HandleFunc("POST /", s.handleRPC)
	return mux
}

func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.card)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, "", codeInvalidRequest, "invalid JSON-RPC request")
		return
	}

	switch req.Method {
	case methodSendMessage:
		s.handleSendMessage(w, req)
	case methodGetTask:
		s.handleGetTask(w, req)
	default:
		writeRPCError(w, req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, req rpcRequest) {
	var params sendMessageParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, codeInvalidParams, "invalid message/send params")
		return
	}

	query := ""
	for _, part := range params.Message.Parts {
		if part.Kind == "text" {
			query += part.Text
		}
	}
	if query == "" {
		writeRPCError(w, req.ID, codeInvalidParams, "message has no text parts")
		return
	}

	record := &taskRecord{task: Task{
		ID:     uuid.NewString(),
		Status: TaskStatus{State: domain.TaskSubmitted},
	}}
	s.tasks.Store(record.task.ID, record)
	s.logger.Info("accepted research task", "task_id", record.task.ID, "message_id", params.Message.MessageID)

	// Run detached from the request so polling clients that give up do not
	// cancel the work.
	go s.runTask(record, query)

	writeRPCResult(w, req.ID, record.snapshot())
}

func (s *Server) runTask(record *taskRecord, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), taskDeadline)
	defer cancel()

	record.setState(domain.TaskRunning)

	markdown, err := s.runner.Run(ctx, query)
	if err != nil {
		s.logger.Error("research task failed", "task_id", record.task.ID, "error", err)
		record.setState(domain.TaskFailed)
		return
	}

	record.complete(markdown)
	s.logger.Info("research task completed", "task_id", record.task.ID, "bytes", len(markdown))
}

func (s *Server) handleGetTask(w http.ResponseWriter, req rpcRequest) {
	var params getTaskParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeRPCError(w, req.ID, codeInvalidParams, "invalid tasks/get params")
		return
	}

	value, ok := s.tasks.Load(params.TaskID)
	if !ok {
		writeRPCError(w, req.ID, codeTaskNotFound, "unknown task: "+params.TaskID)
		return
	}
	writeRPCResult(w, req.ID, value.(*taskRecord).snapshot())
}

func writeRPCResult(w http.ResponseWriter, id string, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		writeRPCError(w, id, codeInvalidRequest, "marshal result: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: id, Result: data})
}

func writeRPCError(w http.ResponseWriter, id string, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	})
}
