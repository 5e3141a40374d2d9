package interpreter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	slogctx "github.com/veqryn/slog-context"
)

type metrics struct {
	runs     metric.Int64Counter
	steps    metric.Int64Histogram
	duration metric.Int64Histogram
}

func newMetrics(ctx context.Context) metrics {
	meter := otel.Meter("bot-flow/interpreter", metric.WithInstrumentationVersion(otel.Version()))

	var m metrics
	var err error

	m.runs, err = meter.Int64Counter(
		"interpreter.runs",
		metric.WithDescription("Flow runs by stop reason"),
		metric.WithUnit("run"),
	)
	if err != nil {
		slogctx.Warn(ctx, "Could not create runs meter", "error", err)
		m.runs = noop.Int64Counter{}
	}

	m.steps, err = meter.Int64Histogram(
		"interpreter.steps",
		metric.WithDescription("Executed steps per run"),
		metric.WithUnit("step"),
	)
	if err != nil {
		slogctx.Warn(ctx, "Could not create steps meter", "error", err)
		m.steps = noop.Int64Histogram{}
	}

	m.duration, err = meter.Int64Histogram(
		"interpreter.duration",
		metric.WithDescription("Run duration including persistence"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		slogctx.Warn(ctx, "Could not create duration meter", "error", err)
		m.duration = noop.Int64Histogram{}
	}

	return m
}

func (m metrics) record(ctx context.Context, botID string, outcome string, steps int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("bot_id", botID),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.steps.Record(ctx, int64(steps), attrs)
	m.duration.Record(ctx, elapsed.Milliseconds(), attrs)
}
