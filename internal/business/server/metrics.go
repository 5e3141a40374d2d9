package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/config"
)

var (
	counter metric.Int64Counter
	hist    metric.Int64Histogram
)

func initMeters(ctx context.Context, cfg *config.Config) error {
	meter := otel.Meter(
		"bot-flow/"+cfg.Application.Name,
		metric.WithInstrumentationVersion(otel.Version()),
		metric.WithInstrumentationAttributes(otlp.CreateAttributesFrom(cfg.Application)...),
	)

	var err error

	counter, err = meter.Int64Counter(
		"http.request_count",
		metric.WithDescription("Incoming request count"),
		metric.WithUnit("request"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating request_count meter")
	}

	hist, err = meter.Int64Histogram(
		"http.duration",
		metric.WithDescription("Incoming end to end duration"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "creating duration meter")
	}

	return nil
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// newTraceMiddleware wraps a handler with a request id, a span and the
// request metrics. initMeters must have been called before.
func newTraceMiddleware(cfg *config.Config, operationID string, next http.HandlerFunc) http.HandlerFunc {
	traceAttrs := otlp.CreateAttributesFrom(cfg.Application, attribute.String(commoncfg.AttrOperation, operationID))
	tracer := otel.Tracer(operationID, trace.WithInstrumentationAttributes(traceAttrs...))

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := slogctx.With(r.Context(),
			commoncfg.AttrRequestID, uuid.NewString(),
			commoncfg.AttrOperation, operationID,
		)

		parentCtx := otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

		ctx, span := tracer.Start(parentCtx, operationID+"-span", trace.WithAttributes(traceAttrs...))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		requestStartTime := time.Now()

		defer func() {
			elapsedTime := time.Since(requestStartTime)

			span.SetAttributes(attribute.Int("http.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}

			attrs := metric.WithAttributes(
				otlp.CreateAttributesFrom(cfg.Application,
					attribute.String("userAgent", r.UserAgent()),
					attribute.String(commoncfg.AttrOperation, operationID),
					attribute.Int("status", rec.status),
				)...,
			)

			counter.Add(ctx, 1, attrs)
			hist.Record(ctx, elapsedTime.Milliseconds(), attrs)
		}()

		slogctx.Info(ctx, fmt.Sprintf("Processing %s request", operationID))
		next(rec, r.WithContext(ctx))
		slogctx.Info(ctx, fmt.Sprintf("Finished %s request", operationID), "status", rec.status)
	}
}
