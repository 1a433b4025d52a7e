package tracer

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"prepmate/internal/infra/config"
)

// recordingProvider installs an in-memory span recorder for the duration of
// the test and restores the previous global provider afterwards.
func recordingProvider(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestSetupDisabledInstallsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("provider = %T, want noop", otel.GetTracerProvider())
	}
}

func TestSetupExporters(t *testing.T) {
	tests := []struct {
		exporter string
		wantErr  bool
	}{
		{"noop", false},
		{"", false},
		{"stdout", false},
		{"jaeger", true},
	}
	for _, tt := range tests {
		shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: tt.exporter})
		if tt.wantErr {
			if err == nil {
				t.Errorf("exporter %q: expected error", tt.exporter)
			}
			continue
		}
		if err != nil {
			t.Errorf("exporter %q: %v", tt.exporter, err)
			continue
		}
		shutdown(context.Background())
	}
}

func TestStartSpanRecordsNameAndAttributes(t *testing.T) {
	recorder := recordingProvider(t)

	_, span := StartSpan(context.Background(), "chat.run",
		trace.WithAttributes(StringAttr("chat.user", "user@example.com")),
	)
	SetOK(span)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	got := spans[0]
	if got.Name() != "chat.run" {
		t.Errorf("span name = %q", got.Name())
	}
	if got.Status().Code != otelcodes.Ok {
		t.Errorf("status = %v, want Ok", got.Status().Code)
	}

	found := false
	for _, attr := range got.Attributes() {
		if string(attr.Key) == "chat.user" && attr.Value.AsString() == "user@example.com" {
			found = true
		}
	}
	if !found {
		t.Error("chat.user attribute not recorded")
	}
}

func TestRecordErrorSetsErrorStatus(t *testing.T) {
	recorder := recordingProvider(t)

	_, span := StartSpan(context.Background(), "research.run")
	RecordError(span, errors.New("searxng unreachable"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	status := spans[0].Status()
	if status.Code != otelcodes.Error {
		t.Errorf("status = %v, want Error", status.Code)
	}
	if status.Description != "searxng unreachable" {
		t.Errorf("description = %q", status.Description)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("error event not recorded")
	}
}

func TestSpanNesting(t *testing.T) {
	recorder := recordingProvider(t)

	ctx, parent := StartSpan(context.Background(), "chat.run")
	_, child := StartSpan(ctx, "chat.tool_call",
		trace.WithAttributes(StringAttr("tool.name", "generate_prep")),
	)
	child.End()
	parent.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded spans = %d, want 2", len(spans))
	}
	// Ended order: child first.
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("tool_call span not parented to chat.run")
	}
}

func TestAttrHelpers(t *testing.T) {
	s := StringAttr("tool.name", "list_preps")
	if string(s.Key) != "tool.name" || s.Value.AsString() != "list_preps" {
		t.Errorf("StringAttr = %+v", s)
	}

	i := IntAttr("iteration", 3)
	if string(i.Key) != "iteration" || i.Value.AsInt64() != 3 {
		t.Errorf("IntAttr = %+v", i)
	}
}
