package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"prepmate/internal/domain"
	"prepmate/internal/usecase"
)

// chatRequest is the POST /chat payload. chat_history_json arrives either as
// a JSON-encoded string or as inline JSON; both carry the prior transcript.
type chatRequest struct {
	UserEmail       string          `json:"user_email"`
	Message         string          `json:"message"`
	ResumeBytesB64  string          `json:"resume_bytes_b64,omitempty"`
	ChatHistoryJSON json.RawMessage `json:"chat_history_json"`
}

// ChatHandler streams chat runs to clients as server-sent events.
type ChatHandler struct {
	orch   *usecase.Orchestrator
	logger *slog.Logger
}

// NewChatHandler creates the /chat handler.
func NewChatHandler(orch *usecase.Orchestrator, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, logger: logger}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserEmail == "" {
		http.Error(w, "user_email is required", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	var resume []byte
	if req.ResumeBytesB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ResumeBytesB64)
		if err != nil {
			http.Error(w, "invalid resume_bytes_b64: "+err.Error(), http.StatusBadRequest)
			return
		}
		resume = decoded
	}

	history, err := parseHistory(req.ChatHistoryJSON)
	if err != nil {
		http.Error(w, "invalid chat_history_json: "+err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h.logger.Info("chat request", "user", req.UserEmail, "history_len", len(history), "has_resume", resume != nil)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.orch.Run(r.Context(), usecase.ChatInput{
		UserEmail: req.UserEmail,
		Message:   req.Message,
		Resume:    resume,
		History:   history,
	})
	for ev := range events {
		if err := writeSSE(w, ev); err != nil {
			h.logger.Debug("client disconnected", "user", req.UserEmail, "error", err)
			return
		}
		flusher.Flush()
	}
}

// parseHistory accepts the transcript either inline or double-encoded as a
// JSON string.
func parseHistory(raw json.RawMessage) ([]domain.Message, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		return domain.ParseTranscript([]byte(inner))
	}
	return domain.ParseTranscript(raw)
}

// writeSSE emits one wire event in SSE framing.
func writeSSE(w http.ResponseWriter, ev domain.WireEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
