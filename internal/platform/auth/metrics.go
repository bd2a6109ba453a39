package auth

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records verification outcomes for observability.
type MetricsRecorder interface {
	RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration)
}

// MetricsRecorderFunc adapts a function to MetricsRecorder.
type MetricsRecorderFunc func(context.Context, string, bool, string, time.Duration)

// RecordVerification implements MetricsRecorder.
func (f MetricsRecorderFunc) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if f != nil {
		f(ctx, kind, success, reason, duration)
	}
}

type meterRecorder struct {
	attempts metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewMeterRecorder reports verifications as auth.verifications and auth.verification.duration.
func NewMeterRecorder(meter metric.Meter) (MetricsRecorder, error) {
	attempts, err := meter.Int64Counter("auth.verifications",
		metric.WithDescription("Token verification attempts by outcome."))
	if err != nil {
		return nil, fmt.Errorf("auth: create verification counter: %w", err)
	}
	latency, err := meter.Float64Histogram("auth.verification.duration",
		metric.WithDescription("Token verification latency."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("auth: create verification histogram: %w", err)
	}
	return &meterRecorder{attempts: attempts, latency: latency}, nil
}

func (m *meterRecorder) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}
