package usecase

import (
	"encoding/json"
	"testing"

	"prepmate/internal/domain"
)

func TestTranslateTextDelta(t *testing.T) {
	wire, ok := Translate(domain.StreamEvent{Type: domain.EventTextDelta, Text: "hello"})
	if !ok {
		t.Fatal("expected an event")
	}
	if wire.Kind != domain.WireToken {
		t.Errorf("kind = %q, want token", wire.Kind)
	}
	if got := wire.Data.(domain.TokenPayload).Text; got != "hello" {
		t.Errorf("text = %q, want hello", got)
	}
}

func TestTranslateEmptyTextDelta(t *testing.T) {
	// Even empty chunks map to token events; the translator never filters.
	wire, ok := Translate(domain.StreamEvent{Type: domain.EventTextDelta})
	if !ok || wire.Kind != domain.WireToken {
		t.Errorf("got (%v, %v), want token event", wire, ok)
	}
}

func TestTranslateToolCall(t *testing.T) {
	wire, ok := Translate(domain.StreamEvent{
		Type:     domain.EventToolCall,
		ToolName: "generate_prep",
		Args:     json.RawMessage(`{"job_description":"x"}`),
	})
	if !ok {
		t.Fatal("expected an event")
	}
	if wire.Kind != domain.WireToolCall {
		t.Errorf("kind = %q, want tool_call", wire.Kind)
	}
	payload := wire.Data.(domain.ToolCallPayload)
	if payload.Name != "generate_prep" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.Args != `{"job_description":"x"}` {
		t.Errorf("args = %q", payload.Args)
	}
}

func TestTranslateGeneratePrepResult(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantOK  bool
	}{
		{"presigned url", "https://bucket.s3.us-east-1.amazonaws.com/u/preps/x.pdf?sig=abc", true},
		{"guidance message", "No resume found. Please ask the user to upload their PDF resume so you can process it.", false},
		{"http url", "http://bucket.s3.amazonaws.com/x.pdf", false},
		{"https but not storage", "https://example.com/x.pdf", false},
		{"failure message", "Research subagent timed out.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, ok := Translate(domain.StreamEvent{
				Type:     domain.EventToolResult,
				ToolName: "generate_prep",
				Content:  tt.content,
			})
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if wire.Kind != domain.WirePDFGenerated {
				t.Errorf("kind = %q, want pdf_generated", wire.Kind)
			}
			if got := wire.Data.(domain.PDFGeneratedPayload).URL; got != tt.content {
				t.Errorf("url = %q, want content unmodified", got)
			}
		})
	}
}

func TestTranslateListPrepsResult(t *testing.T) {
	// Structured JSON rides through as raw JSON.
	content := `[{"name":"acme","created_at":"2026-01-01T00:00:00Z","url":"https://x"}]`
	wire, ok := Translate(domain.StreamEvent{
		Type:     domain.EventToolResult,
		ToolName: "list_preps",
		Content:  content,
	})
	if !ok || wire.Kind != domain.WirePrepList {
		t.Fatalf("got (%v, %v), want prep_list event", wire, ok)
	}
	raw, isRaw := wire.Data.(domain.PrepListPayload).Preps.(json.RawMessage)
	if !isRaw {
		t.Fatalf("preps type = %T, want json.RawMessage", wire.Data.(domain.PrepListPayload).Preps)
	}
	if string(raw) != content {
		t.Errorf("preps = %s, want unmodified content", raw)
	}

	// Non-JSON content rides through as a plain string.
	wire, ok = Translate(domain.StreamEvent{
		Type:     domain.EventToolResult,
		ToolName: "list_preps",
		Content:  "no preps yet",
	})
	if !ok {
		t.Fatal("expected an event")
	}
	if got := wire.Data.(domain.PrepListPayload).Preps; got != "no preps yet" {
		t.Errorf("preps = %v, want plain string", got)
	}
}

func TestTranslateSuppressedResults(t *testing.T) {
	for _, tool := range []string{"get_resume", "upload_resume", "web_search"} {
		_, ok := Translate(domain.StreamEvent{
			Type:     domain.EventToolResult,
			ToolName: tool,
			Content:  "anything",
		})
		if ok {
			t.Errorf("tool %q: result should be suppressed", tool)
		}
	}
}

func TestTranslateRunFailed(t *testing.T) {
	wire, ok := Translate(domain.StreamEvent{Type: domain.EventRunFailed, Message: "boom"})
	if !ok || wire.Kind != domain.WireError {
		t.Fatalf("got (%v, %v), want error event", wire, ok)
	}
	if got := wire.Data.(domain.ErrorPayload).Message; got != "boom" {
		t.Errorf("message = %q", got)
	}
}
