package usecase

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"prepmate/internal/domain"
	"prepmate/internal/infra/tracer"
)

// attachNote is appended to the user turn when a PDF resume rides along.
const attachNote = "\n\nThe user has attached a PDF resume. Call the `upload_resume` tool."

// defaultSystemPrompt steers the assistant when no instructions file is
// configured.
const defaultSystemPrompt = `You are an interview preparation assistant. You help candidates get ready
for job interviews: reviewing their resume, researching companies and roles,
and generating tailored preparation documents.

Use the available tools to read or store the user's resume, list previously
generated prep documents, and generate new ones from a job description.
When a tool returns a guidance message instead of a result, relay it to the
user in your own words. Keep answers focused and practical.`

// ChatInput is one chat request handed to the orchestrator.
type ChatInput struct {
	UserEmail string
	Message   string
	Resume    []byte // optional PDF attachment
	History   []domain.Message
}

// ToolSourceFactory opens a tool surface bound to the caller's identity for
// the duration of one request.
type ToolSourceFactory func(ctx context.Context, userEmail string) (domain.ToolSource, error)

// OrchestratorConfig controls the chat run loop.
type OrchestratorConfig struct {
	SystemPrompt  string
	MaxIterations int
}

// Orchestrator drives one chat request: it trims the prior transcript, runs
// the model/tool loop, and streams translated wire events. It owns the
// transcript only for the duration of the request; persistence between
// requests is the caller's concern.
type Orchestrator struct {
	model   domain.ModelProvider
	tools   ToolSourceFactory
	guard   *WindowGuard // optional
	system  string
	maxIter int
	logger  *slog.Logger
}

// NewOrchestrator creates a chat orchestrator.
func NewOrchestrator(model domain.ModelProvider, tools ToolSourceFactory, guard *WindowGuard, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	system := cfg.SystemPrompt
	if system == "" {
		system = defaultSystemPrompt
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	return &Orchestrator{
		model:   model,
		tools:   tools,
		guard:   guard,
		system:  system,
		maxIter: maxIter,
		logger:  logger,
	}
}

// Run executes one chat request and streams wire events until the run ends.
// The returned channel closes when the run completes. Any run-level failure
// is delivered as a single terminal error event; it never propagates past
// this boundary.
func (o *Orchestrator) Run(ctx context.Context, in ChatInput) <-chan domain.WireEvent {
	out := make(chan domain.WireEvent, 16)
	go func() {
		defer close(out)
		if err := o.run(ctx, in, out); err != nil {
			o.logger.Error("chat run failed", "user", in.UserEmail, "error", err)
			o.emit(ctx, out, domain.StreamEvent{
				Type:    domain.EventRunFailed,
				Message: err.Error(),
			})
		}
	}()
	return out
}

func (o *Orchestrator) run(ctx context.Context, in ChatInput, out chan<- domain.WireEvent) error {
	ctx, span := tracer.StartSpan(ctx, "chat.run",
		trace.WithAttributes(tracer.StringAttr("chat.user", in.UserEmail)),
	)
	defer span.End()

	history := TrimTranscript(in.History)
	if o.guard != nil {
		o.guard.Check(history)
	}

	userText := in.Message
	var attachment *domain.Attachment
	if len(in.Resume) > 0 {
		userText += attachNote
		attachment = &domain.Attachment{
			Name:      "resume.pdf",
			MediaType: "application/pdf",
			Data:      in.Resume,
		}
	}
	transcript := append(slices.Clone(history), domain.NewUserMessage(userText))

	toolsrc, err := o.tools(ctx, in.UserEmail)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("open tool source", err)
	}
	defer toolsrc.Close()

	schemas := toolsrc.Schemas()

	for i := 0; i < o.maxIter; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.AddEvent("chat.iteration", trace.WithAttributes(tracer.IntAttr("iteration", i)))

		deltaCh, err := o.model.ChatStream(ctx, domain.ModelRequest{
			System:     o.system,
			Messages:   transcript,
			Tools:      schemas,
			Attachment: attachment,
		})
		if err != nil {
			tracer.RecordError(span, err)
			return err
		}

		acc := newRunAccumulator()
		var streamErr error
		for delta := range deltaCh {
			if delta.Err != nil {
				streamErr = delta.Err
				continue
			}
			if delta.Text != "" {
				o.emit(ctx, out, domain.StreamEvent{
					Type: domain.EventTextDelta,
					Text: delta.Text,
				})
			}
			acc.add(delta)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A stream that broke mid-response left the accumulator with a
		// truncated message; the run fails rather than acting on it.
		if streamErr != nil {
			tracer.RecordError(span, streamErr)
			return domain.WrapOp("model stream", streamErr)
		}

		response := acc.message()
		transcript = append(transcript, response)

		calls := response.ToolCalls()
		if len(calls) == 0 {
			tracer.SetOK(span)
			return nil
		}

		// Tool calls run in announcement order so wire events stay FIFO.
		returns := make([]domain.Part, 0, len(calls))
		for _, call := range calls {
			o.emit(ctx, out, domain.StreamEvent{
				Type:     domain.EventToolCall,
				ToolName: call.Name,
				Args:     call.Arguments,
			})
			result := o.callTool(ctx, toolsrc, call)
			o.emit(ctx, out, domain.StreamEvent{
				Type:     domain.EventToolResult,
				ToolName: call.Name,
				Content:  result.Content,
			})
			returns = append(returns, domain.ToolReturnPart(call.ID, call.Name, result.Content))
		}
		transcript = append(transcript, domain.NewToolReturnMessage(returns))
	}

	tracer.RecordError(span, domain.ErrMaxIterations)
	return domain.ErrMaxIterations
}

// callTool executes one tool call. Tool failures become result content for
// the model to relay; they never abort the run.
func (o *Orchestrator) callTool(ctx context.Context, toolsrc domain.ToolSource, call domain.ToolCall) *domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "chat.tool_call",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	start := time.Now()
	result, err := toolsrc.Call(ctx, call)
	if err != nil {
		tracer.RecordError(span, err)
		o.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return &domain.ToolResult{Content: err.Error(), IsError: true}
	}

	tracer.SetOK(span)
	o.logger.Debug("tool call completed",
		"tool", call.Name,
		"is_error", result.IsError,
		"elapsed", time.Since(start),
	)
	return result
}

// emit translates and forwards one internal event, honoring cancellation.
func (o *Orchestrator) emit(ctx context.Context, out chan<- domain.WireEvent, ev domain.StreamEvent) {
	wire, ok := Translate(ev)
	if !ok {
		return
	}
	select {
	case out <- wire:
	case <-ctx.Done():
	}
}

// runAccumulator collects streaming deltas into one response message.
type runAccumulator struct {
	text      strings.Builder
	toolCalls []domain.ToolCall
}

func newRunAccumulator() *runAccumulator {
	return &runAccumulator{}
}

// maxToolCallsPerDelta bounds the tool call slots the accumulator
// allocates. Indices past the bound are dropped.
const maxToolCallsPerDelta = 50

// add merges one delta. Tool calls are tracked by index: the first delta for
// an index provides ID and Name, later deltas append argument fragments.
func (acc *runAccumulator) add(delta domain.StreamDelta) {
	acc.text.WriteString(delta.Text)

	for idx, tc := range delta.ToolCalls {
		if idx >= maxToolCallsPerDelta {
			break
		}
		for len(acc.toolCalls) <= idx {
			acc.toolCalls = append(acc.toolCalls, domain.ToolCall{})
		}
		existing := &acc.toolCalls[idx]
		if tc.ID != "" {
			existing.ID = tc.ID
		}
		if tc.Name != "" {
			existing.Name = tc.Name
		}
		if len(tc.Arguments) > 0 {
			existing.Arguments = append(existing.Arguments, tc.Arguments...)
		}
	}
}

// message returns the accumulated response.
func (acc *runAccumulator) message() domain.Message {
	msg := domain.Message{Kind: domain.KindResponse}
	if acc.text.Len() > 0 {
		msg.Parts = append(msg.Parts, domain.Part{Kind: domain.PartText, Text: acc.text.String()})
	}
	for _, tc := range acc.toolCalls {
		args := tc.Arguments
		if len(args) == 0 {
			args = []byte("{}")
		}
		msg.Parts = append(msg.Parts, domain.Part{
			Kind:       domain.PartToolCall,
			ToolCallID: tc.ID,
			ToolName:   tc.Name,
			Args:       args,
		})
	}
	return msg
}
