package usecase

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"prepmate/internal/domain"
)

// wordCounter counts whitespace-separated words.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func TestWindowGuardUnderBudget(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	guard := NewWindowGuard(wordCounter{}, 100, log)

	total := guard.Check([]domain.Message{
		domain.NewUserMessage("one two three"),
	})
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if strings.Contains(buf.String(), "exceeds") {
		t.Error("no warning expected under budget")
	}
}

func TestWindowGuardOverBudget(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	guard := NewWindowGuard(wordCounter{}, 2, log)

	msgs := []domain.Message{
		domain.NewUserMessage("one two"),
		{
			Kind: domain.KindRequest,
			Parts: []domain.Part{
				domain.ToolReturnPart("c1", "web_search", "four five six"),
			},
		},
	}
	total := guard.Check(msgs)
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if !strings.Contains(buf.String(), "exceeds token budget") {
		t.Errorf("expected warning, got %q", buf.String())
	}
}
