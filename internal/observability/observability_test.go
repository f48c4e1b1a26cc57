package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func testInstruments(t *testing.T) (*Instruments, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst, err := NewInstruments(tp, mp)
	require.NoError(t, err)
	return inst, rec, reader
}

func metricNamed(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestStageTimerRecordsSpanAndHistogram(t *testing.T) {
	inst, rec, reader := testInstruments(t)

	_, good := inst.Stage(context.Background(), "convert", "doc-1")
	good.End(nil)
	_, bad := inst.Stage(context.Background(), "embed", "doc-1")
	bad.End(errors.New("quota"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "docketgraph.convert", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "docketgraph.embed", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)

	m := metricNamed(t, reader, "docketgraph.stage.duration")
	require.NotNil(t, m)
	hist, isHist := m.Data.(metricdata.Histogram[float64])
	require.True(t, isHist)
	assert.Len(t, hist.DataPoints, 2)
}

func TestDocumentDoneCountsByOutcome(t *testing.T) {
	inst, _, reader := testInstruments(t)
	ctx := context.Background()
	inst.DocumentDone(ctx, "ingest", nil)
	inst.DocumentDone(ctx, "ingest", nil)
	inst.DocumentDone(ctx, "ingest", errors.New("x"))

	m := metricNamed(t, reader, "docketgraph.documents")
	require.NotNil(t, m)
	sum, isSum := m.Data.(metricdata.Sum[int64])
	require.True(t, isSum)

	total := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("outcome")
		total[v.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{OutcomeOK: 2, OutcomeError: 1}, total)
}

func TestNilInstrumentsAreNoop(t *testing.T) {
	var inst *Instruments
	_, timer := inst.Stage(context.Background(), "chunk", "doc")
	assert.NotPanics(t, func() { timer.End(nil) })
	assert.NotPanics(t, func() { inst.DocumentDone(context.Background(), "ingest", nil) })
}

func TestInitDisabled(t *testing.T) {
	inst, shutdown, err := Init(context.Background(), false, "docketgraph")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.NoError(t, shutdown(context.Background()))
}
