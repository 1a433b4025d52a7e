package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"prepmate/internal/domain"
	"prepmate/internal/infra/tracer"
)

// researchSystemPrompt drives the research run. The output contract matters:
// the title heading feeds the stored document's filename.
const researchSystemPrompt = `You are a research analyst preparing a candidate for a job interview.
You receive the candidate's resume and the target job description.

Use the web search tool to research the company, the role, typical interview
formats, and recent news. Then write a strategic interview preparation
document in Markdown.

The document MUST begin with a top-level heading of the form:

# Interview Prep: <Company> - <Position>

Cover: company overview, why this role exists, likely interview topics,
questions the candidate should expect, questions to ask back, and how the
candidate's experience maps to the role's requirements.`

// Researcher runs one research task to completion: a bounded model/tool loop
// over the search tools, producing a markdown prep document.
type Researcher struct {
	model   domain.ModelProvider
	tools   []domain.Tool
	system  string
	maxIter int
	logger  *slog.Logger
}

// NewResearcher creates a researcher. systemPrompt may be empty to use the
// built-in one.
func NewResearcher(model domain.ModelProvider, tools []domain.Tool, systemPrompt string, maxIter int, logger *slog.Logger) *Researcher {
	if systemPrompt == "" {
		systemPrompt = researchSystemPrompt
	}
	if maxIter <= 0 {
		maxIter = 8
	}
	return &Researcher{
		model:   model,
		tools:   tools,
		system:  systemPrompt,
		maxIter: maxIter,
		logger:  logger,
	}
}

// Run executes the research loop for one query and returns the document,
// stripped of any preamble before the first markdown heading. A response
// with no heading at all yields an empty document.
func (r *Researcher) Run(ctx context.Context, query string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "research.run")
	defer span.End()

	schemas := make([]domain.ToolSchema, 0, len(r.tools))
	byName := make(map[string]domain.Tool, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Schema())
		byName[t.Name()] = t
	}

	transcript := []domain.Message{domain.NewUserMessage(query)}

	for i := 0; i < r.maxIter; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		span.AddEvent("research.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		deltaCh, err := r.model.ChatStream(ctx, domain.ModelRequest{
			System:   r.system,
			Messages: transcript,
			Tools:    schemas,
		})
		if err != nil {
			tracer.RecordError(span, err)
			return "", err
		}

		acc := newRunAccumulator()
		var streamErr error
		for delta := range deltaCh {
			if delta.Err != nil {
				streamErr = delta.Err
				continue
			}
			acc.add(delta)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// A truncated response must never be stored as a prep document.
		if streamErr != nil {
			tracer.RecordError(span, streamErr)
			return "", domain.WrapOp("model stream", streamErr)
		}

		response := acc.message()
		transcript = append(transcript, response)

		calls := response.ToolCalls()
		if len(calls) == 0 {
			tracer.SetOK(span)
			return stripPreamble(response.Text()), nil
		}

		returns := make([]domain.Part, 0, len(calls))
		for _, call := range calls {
			content := r.execTool(ctx, byName, call)
			returns = append(returns, domain.ToolReturnPart(call.ID, call.Name, content))
		}
		transcript = append(transcript, domain.NewToolReturnMessage(returns))
	}

	tracer.RecordError(span, domain.ErrMaxIterations)
	return "", domain.ErrMaxIterations
}

func (r *Researcher) execTool(ctx context.Context, byName map[string]domain.Tool, call domain.ToolCall) string {
	tool, ok := byName[call.Name]
	if !ok {
		r.logger.Warn("model requested unknown tool", "tool", call.Name)
		return "unknown tool: " + call.Name
	}

	args := call.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		r.logger.Warn("research tool failed", "tool", call.Name, "error", err)
		return err.Error()
	}
	return result.Content
}

// stripPreamble drops any conversational lead-in before the first markdown
// heading so stored documents start at the title.
func stripPreamble(output string) string {
	_, after, found := strings.Cut(output, "#")
	if !found {
		return ""
	}
	return "#" + after
}
