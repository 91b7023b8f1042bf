package telemetry

import (
	"context"
	"testing"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), Config{}, "test", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "turn")
	if span.SpanContext().IsValid() {
		t.Error("disabled tracing produced a recording span")
	}
	span.End()
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestNew_EnabledRecords(t *testing.T) {
	t.Parallel()

	p, err := New(context.Background(), Config{Enabled: true, Endpoint: "127.0.0.1:1", Insecure: true}, "test", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "turn")
	if !span.SpanContext().IsValid() || !span.IsRecording() {
		t.Error("enabled tracing did not record")
	}
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Stop(ctx)
}
