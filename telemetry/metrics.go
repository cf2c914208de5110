// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TurnsAccepted   prometheus.Counter
	TurnsSuppressed prometheus.Counter
	JobsProcessed   prometheus.Counter
	JobsFailed      prometheus.Counter
	AIFailures      prometheus.Counter
	TTSFailures     prometheus.Counter
	Failovers       prometheus.Counter
	BroadcastsSent  prometheus.Counter

	// Histograms (seconds)
	AIDuration  prometheus.Observer
	TTSDuration prometheus.Observer
	JobDuration prometheus.Observer

	// Gauges
	QueueDepthGauge          prometheus.Gauge
	ViewerGauge              prometheus.Gauge
	ForwardersExhaustedGauge prometheus.Gauge // 1=all usage-limited, 0=at least one available
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TurnsAccepted = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_turns_accepted_total", Help: "Chat turns accepted by the filter gate"})
		TurnsSuppressed = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_turns_suppressed_total", Help: "Chat turns suppressed by the filter gate"})
		JobsProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_jobs_processed_total", Help: "Pipeline jobs run to completion"})
		JobsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_jobs_failed_total", Help: "Pipeline jobs that panicked or errored"})
		AIFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_ai_failures_total", Help: "AI relay calls that failed or returned malformed bodies"})
		TTSFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_tts_failures_total", Help: "Speech synthesis failures"})
		Failovers = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_forwarder_failovers_total", Help: "Forwarder failover events"})
		BroadcastsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "mintcast_broadcasts_total", Help: "Results broadcast to viewers"})
		AIDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mintcast_ai_duration_seconds", Help: "AI relay call duration seconds", Buckets: prometheus.DefBuckets})
		TTSDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mintcast_tts_duration_seconds", Help: "Speech synthesis duration seconds", Buckets: prometheus.DefBuckets})
		JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "mintcast_job_duration_seconds", Help: "Total per-job pipeline duration seconds", Buckets: prometheus.DefBuckets})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "mintcast_queue_depth", Help: "Current number of queued turns awaiting processing"})
		ViewerGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "mintcast_viewers", Help: "Currently connected viewer sessions"})
		ForwardersExhaustedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "mintcast_forwarders_exhausted", Help: "All forwarders usage-limited=1 otherwise 0"})
	})
}

// SetQueueDepth records the current queued turn count.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// SetViewers records the current viewer session count.
func SetViewers(n int) {
	if ViewerGauge != nil {
		ViewerGauge.Set(float64(n))
	}
}

// UpdateExhaustedGauge sets gauge to 1 if every forwarder is usage-limited.
func UpdateExhaustedGauge(exhausted bool) {
	if ForwardersExhaustedGauge != nil {
		if exhausted {
			ForwardersExhaustedGauge.Set(1)
		} else {
			ForwardersExhaustedGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
