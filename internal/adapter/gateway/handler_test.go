package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prepmate/internal/domain"
	"prepmate/internal/usecase"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoModel answers every request with one canned text turn and records the
// requests it saw.
type echoModel struct {
	text     string
	requests []domain.ModelRequest
}

func (m *echoModel) Name() string { return "echo" }

func (m *echoModel) ChatStream(_ context.Context, req domain.ModelRequest) (<-chan domain.StreamDelta, error) {
	m.requests = append(m.requests, req)
	out := make(chan domain.StreamDelta, 2)
	out <- domain.StreamDelta{Text: m.text}
	out <- domain.StreamDelta{Done: true}
	close(out)
	return out, nil
}

type noopToolSource struct{}

func (noopToolSource) Schemas() []domain.ToolSchema { return nil }
func (noopToolSource) Call(context.Context, domain.ToolCall) (*domain.ToolResult, error) {
	return nil, nil
}
func (noopToolSource) Close() error { return nil }

func newTestHandler(model domain.ModelProvider) *ChatHandler {
	factory := func(context.Context, string) (domain.ToolSource, error) {
		return noopToolSource{}, nil
	}
	orch := usecase.NewOrchestrator(model, factory, nil, usecase.OrchestratorConfig{}, testLogger())
	return NewChatHandler(orch, testLogger())
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatValidation(t *testing.T) {
	h := newTestHandler(&echoModel{text: "hi"})

	tests := []struct {
		name string
		body string
	}{
		{"bad json", "{nope"},
		{"missing email", `{"message": "hi"}`},
		{"missing message", `{"user_email": "user@example.com"}`},
		{"bad base64", `{"user_email": "u", "message": "m", "resume_bytes_b64": "!!!"}`},
		{"bad history", `{"user_email": "u", "message": "m", "chat_history_json": "{broken"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postChat(t, h, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestChatStreamsTokens(t *testing.T) {
	model := &echoModel{text: "hello there"}
	h := newTestHandler(model)

	rec := postChat(t, h, `{"user_email": "user@example.com", "message": "hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: token\n") {
		t.Errorf("body = %q, want a token event", body)
	}
	if !strings.Contains(body, `"hello there"`) {
		t.Errorf("body = %q, want the model text", body)
	}
}

func TestChatHistoryForwarded(t *testing.T) {
	model := &echoModel{text: "ok"}
	h := newTestHandler(model)

	history := `[{"kind":"request","parts":[{"kind":"text","text":"earlier question"}]},` +
		`{"kind":"response","parts":[{"kind":"text","text":"earlier answer"}]}]`

	tests := []struct {
		name string
		body string
	}{
		{
			"inline history",
			`{"user_email": "u", "message": "again", "chat_history_json": ` + history + `}`,
		},
		{
			"double-encoded history",
			func() string {
				quoted, _ := json.Marshal(history)
				return `{"user_email": "u", "message": "again", "chat_history_json": ` + string(quoted) + `}`
			}(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model.requests = nil
			rec := postChat(t, h, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			if len(model.requests) != 1 {
				t.Fatalf("requests = %d", len(model.requests))
			}
			// Two history turns plus the new user turn.
			if got := len(model.requests[0].Messages); got != 3 {
				t.Errorf("messages = %d, want 3", got)
			}
		})
	}
}

func TestChatResumeAttachment(t *testing.T) {
	model := &echoModel{text: "got it"}
	h := newTestHandler(model)

	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
	rec := postChat(t, h, `{"user_email": "u", "message": "here is my resume", "resume_bytes_b64": "`+pdf+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(model.requests) != 1 || model.requests[0].Attachment == nil {
		t.Fatal("expected the attachment to reach the model")
	}
	if string(model.requests[0].Attachment.Data) != "%PDF-1.4 fake" {
		t.Errorf("attachment data = %q", model.requests[0].Attachment.Data)
	}
}

func TestChatModelFailureStreamsError(t *testing.T) {
	factory := func(context.Context, string) (domain.ToolSource, error) {
		return noopToolSource{}, nil
	}
	orch := usecase.NewOrchestrator(failingModel{}, factory, nil, usecase.OrchestratorConfig{}, testLogger())
	h := NewChatHandler(orch, testLogger())

	rec := postChat(t, h, `{"user_email": "u", "message": "hi"}`)
	// Headers are already sent when the run fails; the failure arrives as an
	// SSE error event.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "event: error\n") {
		t.Errorf("body = %q, want an error event", rec.Body.String())
	}
}

type failingModel struct{}

func (failingModel) Name() string { return "failing" }
func (failingModel) ChatStream(context.Context, domain.ModelRequest) (<-chan domain.StreamDelta, error) {
	return nil, domain.ErrProviderError
}

func TestParseHistory(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"null", "null", 0, false},
		{"inline array", `[{"kind":"request","parts":[{"kind":"text","text":"q"}]}]`, 1, false},
		{"quoted array", `"[{\"kind\":\"request\",\"parts\":[{\"kind\":\"text\",\"text\":\"q\"}]}]"`, 1, false},
		{"quoted empty", `""`, 0, false},
		{"broken string", `"{`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHistory(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}
