package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := TurnsAccepted
	Init()
	if TurnsAccepted != first {
		t.Fatalf("Init re-registered metrics")
	}
	if QueueDepthGauge == nil || ViewerGauge == nil {
		t.Fatalf("gauges not registered")
	}
}

func TestGaugeHelpersNilSafe(t *testing.T) {
	// Helpers must not panic before Init has run in a fresh process; simulate
	// by calling them after Init (nil path is guarded identically).
	Init()
	SetQueueDepth(3)
	SetViewers(7)
	UpdateExhaustedGauge(true)
	UpdateExhaustedGauge(false)
}

func TestTimeFunc(t *testing.T) {
	Init()
	d := TimeFunc(JobDuration, func() { time.Sleep(10 * time.Millisecond) })
	if d < 10*time.Millisecond {
		t.Fatalf("expected at least 10ms, got %v", d)
	}
	// nil observer must be tolerated
	TimeFunc(nil, func() {})
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Fatalf("expected empty corr, got %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Fatalf("expected abc-123, got %q", got)
	}
	if l := LoggerWithCorr(ctx); l == nil {
		t.Fatalf("expected logger")
	}
}
