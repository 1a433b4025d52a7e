package usecase

import (
	"log/slog"

	"prepmate/internal/domain"
)

// TokenCounter estimates token usage of transcript text.
type TokenCounter interface {
	Count(text string) int
}

// WindowGuard watches the token footprint of trimmed windows. Trimming is
// message-count based, so an unusually heavy window (long tool results,
// pasted job descriptions) can still crowd the model's context; the guard
// surfaces that in the logs before the run starts.
type WindowGuard struct {
	counter   TokenCounter
	maxTokens int
	logger    *slog.Logger
}

// NewWindowGuard creates a guard. maxTokens <= 0 selects a default budget.
func NewWindowGuard(counter TokenCounter, maxTokens int, logger *slog.Logger) *WindowGuard {
	if maxTokens <= 0 {
		maxTokens = 100_000
	}
	return &WindowGuard{counter: counter, maxTokens: maxTokens, logger: logger}
}

// Check estimates the window's token count and logs a warning above budget.
// Advisory only; it never blocks a run.
func (g *WindowGuard) Check(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		for _, p := range m.Parts {
			total += g.counter.Count(p.Text)
			total += g.counter.Count(p.Content)
			total += g.counter.Count(string(p.Args))
		}
	}

	if total > g.maxTokens {
		g.logger.Warn("trimmed window exceeds token budget",
			"tokens", total,
			"budget", g.maxTokens,
			"messages", len(msgs),
		)
	}
	return total
}
