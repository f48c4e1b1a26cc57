// Package observability installs OpenTelemetry providers and times
// pipeline stages.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/markdave123-py/Docketgraph/internal/logging"
)

const scopeName = "github.com/markdave123-py/Docketgraph"

// Outcomes recorded on the documents counter and stage histogram.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Instruments holds the tracer and meters used by the pipeline.
type Instruments struct {
	Tracer trace.Tracer

	StageDuration metric.Float64Histogram
	Documents     metric.Int64Counter
}

// Init installs OTLP HTTP trace and metric providers when enabled. Exporter
// endpoints come from the standard OTEL_EXPORTER_OTLP_* variables. When
// disabled, the returned instruments are no-ops.
func Init(ctx context.Context, enabled bool, serviceName string) (*Instruments, func(context.Context) error, error) {
	noShutdown := func(context.Context) error { return nil }
	if !enabled {
		inst, err := NewInstruments(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
		return inst, noShutdown, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "build otel resource")
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "create trace exporter")
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, goerr.Wrap(err, "create metric exporter")
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := NewInstruments(tp, mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return inst, shutdown, nil
}

func NewInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(scopeName)

	stageDuration, err := meter.Float64Histogram("docketgraph.stage.duration",
		metric.WithDescription("Pipeline stage duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, goerr.Wrap(err, "create stage histogram")
	}

	documents, err := meter.Int64Counter("docketgraph.documents",
		metric.WithDescription("Documents processed"),
		metric.WithUnit("{document}"))
	if err != nil {
		return nil, goerr.Wrap(err, "create documents counter")
	}

	return &Instruments{
		Tracer:        tp.Tracer(scopeName),
		StageDuration: stageDuration,
		Documents:     documents,
	}, nil
}

var noop = func() *Instruments {
	inst, _ := NewInstruments(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return inst
}()

func (in *Instruments) orNoop() *Instruments {
	if in == nil {
		return noop
	}
	return in
}

// StageTimer measures one pipeline stage for one document.
type StageTimer struct {
	inst       *Instruments
	ctx        context.Context
	span       trace.Span
	stage      string
	documentID string
	start      time.Time
}

// Stage starts a span named after the stage. The returned context carries
// the span; End must be called once.
func (in *Instruments) Stage(ctx context.Context, stage, documentID string) (context.Context, *StageTimer) {
	in = in.orNoop()
	ctx, span := in.Tracer.Start(ctx, "docketgraph."+stage, trace.WithAttributes(
		attribute.String("docketgraph.stage", stage),
		attribute.String("docketgraph.document_id", documentID),
	))
	return ctx, &StageTimer{inst: in, ctx: ctx, span: span, stage: stage, documentID: documentID, start: time.Now()}
}

// End records the stage duration and outcome and returns the elapsed time.
func (t *StageTimer) End(err error) time.Duration {
	elapsed := time.Since(t.start)
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	}
	t.span.End()

	t.inst.StageDuration.Record(t.ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.String("stage", t.stage),
		attribute.String("outcome", outcome),
	))
	logging.From(t.ctx).Debug("stage finished",
		"stage", t.stage,
		"document_id", t.documentID,
		"outcome", outcome,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return elapsed
}

// DocumentDone counts one finished document by kind and outcome.
func (in *Instruments) DocumentDone(ctx context.Context, kind string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	in.orNoop().Documents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}
