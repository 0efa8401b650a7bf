package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fyrsmithlabs/opsagent/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), config.TelemetryConfig{}, "1.0.0")
	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.Nil(t, tel.LoggerProvider())
	require.NoError(t, tel.Shutdown(context.Background()))

	var nilTel *Telemetry
	assert.False(t, nilTel.Enabled())
	assert.Nil(t, nilTel.LoggerProvider())
	require.NoError(t, nilTel.Shutdown(context.Background()))
}

func TestNew_Enabled(t *testing.T) {
	for _, proto := range []string{"grpc", "http/protobuf"} {
		t.Run(proto, func(t *testing.T) {
			tel, err := New(context.Background(), config.TelemetryConfig{
				Enabled:    true,
				Endpoint:   "localhost:4317",
				Protocol:   proto,
				Insecure:   true,
				SampleRate: 1,
			}, "1.0.0")
			require.NoError(t, err)
			assert.True(t, tel.Enabled())
			require.NotNil(t, tel.tp)
			require.NotNil(t, tel.mp)
			require.NotNil(t, tel.lp)
			assert.NotNil(t, tel.LoggerProvider())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = tel.Shutdown(ctx)
		})
	}
}

func TestNew_BadProtocol(t *testing.T) {
	_, err := New(context.Background(), config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4317", Protocol: "carrier-pigeon"}, "")
	require.Error(t, err)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, sdktrace.ParentBased(sdktrace.AlwaysSample()).Description()},
		{0, sdktrace.ParentBased(sdktrace.NeverSample()).Description()},
		{0.25, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.25)).Description()},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, sampler(tt.rate).Description())
		})
	}
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel.example.com:4318", stripScheme("https://otel.example.com:4318"))
	assert.Equal(t, "localhost:4318", stripScheme("http://localhost:4318"))
	assert.Equal(t, "localhost:4318", stripScheme("localhost:4318"))
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "router.process")
	span.SetAttributes(attribute.String("kind", "ok"))
	span.End()
	tt.AssertSpanAttribute(t, "router.process", "kind", "ok")

	counter, err := tt.Meter("test").Int64Counter("opsagent.router.requests")
	require.NoError(t, err)
	counter.Add(ctx, 2, metricAttrs("ok"))
	counter.Add(ctx, 1, metricAttrs("blocked"))

	assert.Equal(t, int64(3), tt.CounterValue(t, "opsagent.router.requests"))
	assert.Equal(t, int64(1), tt.CounterValue(t, "opsagent.router.requests", attribute.String("kind", "blocked")))
}

func metricAttrs(kind string) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}
