package telemetry

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans, metrics and log records in memory.
type TestTelemetry struct {
	*Telemetry

	Spans  *tracetest.SpanRecorder
	Reader *sdkmetric.ManualReader
	Logs   *LogRecorder
}

// NewTestTelemetry returns an enabled Telemetry with in-memory exporters.
// The providers are not installed globally.
func NewTestTelemetry() *TestTelemetry {
	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	logs := &LogRecorder{}
	return &TestTelemetry{
		Telemetry: &Telemetry{
			enabled: true,
			tp:      sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
			mp:      sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			lp:      sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(logs))),
		},
		Spans:  spans,
		Reader: reader,
		Logs:   logs,
	}
}

// LogRecord is the part of an exported log record tests look at.
type LogRecord struct {
	Body     string
	Severity string
	Attrs    map[string]string
}

// LogRecorder is an sdklog.Exporter that keeps every record.
type LogRecorder struct {
	mu      sync.Mutex
	records []LogRecord
}

// Export implements sdklog.Exporter.
func (r *LogRecorder) Export(_ context.Context, records []sdklog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		lr := LogRecord{
			Body:     rec.Body().AsString(),
			Severity: rec.SeverityText(),
			Attrs:    map[string]string{},
		}
		rec.WalkAttributes(func(kv log.KeyValue) bool {
			lr.Attrs[kv.Key] = kv.Value.String()
			return true
		})
		r.records = append(r.records, lr)
	}
	return nil
}

// Shutdown implements sdklog.Exporter.
func (r *LogRecorder) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdklog.Exporter.
func (r *LogRecorder) ForceFlush(context.Context) error { return nil }

// Records returns a copy of the recorded log records.
func (r *LogRecorder) Records() []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogRecord(nil), r.records...)
}

// SpanByName returns the first ended span called name, or nil.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Spans.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// AssertSpanAttribute fails tb unless span name carries key=want.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	span := t.SpanByName(name)
	if span == nil {
		tb.Fatalf("span %q not recorded", name)
	}
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			if got := kv.Value.AsInterface(); got != want {
				tb.Errorf("span %q attribute %q = %v, want %v", name, key, got, want)
			}
			return
		}
	}
	tb.Errorf("span %q has no attribute %q", name, key)
}

// CounterValue sums the data points of an int64 counter whose attributes
// include every attrs pair.
func (t *TestTelemetry) CounterValue(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.Reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				tb.Fatalf("metric %q is %T, not an int64 sum", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, attrs) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}
