package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/opsagent/internal/config"
	"github.com/fyrsmithlabs/opsagent/internal/telemetry"
)

func TestNewLogger(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		logger, err := NewLogger(NewDefaultConfig(), nil)
		require.NoError(t, err)
		assert.NotNil(t, logger.Underlying())
	})

	t.Run("rejects bad format", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Format = "xml"
		_, err := NewLogger(cfg, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "format")
	})

	t.Run("otel only without provider fails", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Output = OutputConfig{OTEL: true}
		_, err := NewLogger(cfg, nil)
		require.Error(t, err)
	})
}

func TestNewLogger_OTELBridge(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	cfg := NewDefaultConfig()
	cfg.Output = OutputConfig{OTEL: true}
	cfg.Sampling.Enabled = false

	logger, err := NewLogger(cfg, tel.LoggerProvider())
	require.NoError(t, err)

	ctx := WithWorkflow(context.Background(), "scale")
	logger.Info(ctx, "workflow completed", zap.String("intent", "SCALE"))
	logger.Debug(ctx, "below level")

	records := tel.Logs.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "workflow completed", records[0].Body)
	assert.Equal(t, "SCALE", records[0].Attrs["intent"])
	assert.Equal(t, "scale", records[0].Attrs["workflow"])
	assert.Equal(t, "opsagent", records[0].Attrs["service"])
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings("trace", "console")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromSettings("loud", "")
	require.Error(t, err)
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithSessionID(context.Background(), "3f2a9c1e-1111-4a4a-9b9b-222222222222")
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithWorkflow(ctx, "deploy")

	tl.Info(ctx, "dispatching", zap.String("intent", "DEPLOY"))

	tl.AssertLogged(t, zapcore.InfoLevel, "dispatching")
	tl.AssertField(t, "dispatching", "session.id", "3f2a9c1e-1111-4a4a-9b9b-222222222222")
	tl.AssertField(t, "dispatching", "request.id", "req-42")
	tl.AssertField(t, "dispatching", "workflow", "deploy")
	tl.AssertField(t, "dispatching", "intent", "DEPLOY")
}

func TestContextFields_Trace(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", fields[0].String)
}

func TestWithSessionID_DropsMalformed(t *testing.T) {
	tests := []string{"", "has space", "semi;colon", string(make([]byte, 200))}
	for _, id := range tests {
		ctx := WithSessionID(context.Background(), id)
		assert.Empty(t, SessionIDFromContext(ctx))
	}
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestRedactingEncoder(t *testing.T) {
	newLogger := func(t *testing.T) (*zap.Logger, *bytes.Buffer) {
		t.Helper()
		enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
		require.NoError(t, err)
		buf := &bytes.Buffer{}
		return zap.New(zapcore.NewCore(enc, zapcore.AddSync(buf), zapcore.DebugLevel)), buf
	}

	t.Run("sensitive key on call", func(t *testing.T) {
		z, buf := newLogger(t)
		z.Info("calling github", zap.String("token", "ghp_plaintext"))
		assert.NotContains(t, buf.String(), "ghp_plaintext")
		assert.Contains(t, buf.String(), `"token":"[REDACTED]"`)
	})

	t.Run("sensitive key via With", func(t *testing.T) {
		z, buf := newLogger(t)
		z.With(zap.String("api_key", "sk-123")).Info("llm ready")
		assert.NotContains(t, buf.String(), "sk-123")
	})

	t.Run("pattern in value", func(t *testing.T) {
		z, buf := newLogger(t)
		z.Info("request", zap.String("header", "Bearer abc.def.ghi"))
		assert.NotContains(t, buf.String(), "abc.def.ghi")
		assert.Contains(t, buf.String(), "[REDACTED:pattern]")
	})

	t.Run("plain values untouched", func(t *testing.T) {
		z, buf := newLogger(t)
		z.Info("plan", zap.String("app", "nginx"))
		assert.Contains(t, buf.String(), `"app":"nginx"`)
	})
}

func TestSecretField(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "configured", Secret("github_token", config.Secret("ghp_abc")))

	entries := tl.All()
	require.Len(t, entries, 1)
	obj, ok := entries[0].Context[0].Interface.(zapcore.ObjectMarshaler)
	require.True(t, ok)
	enc := zapcore.NewMapObjectEncoder()
	require.NoError(t, obj.MarshalLogObject(enc))
	assert.Equal(t, "[REDACTED:7]", enc.Fields["github_token"])
}

func TestSampledCore_ErrorsAlwaysPass(t *testing.T) {
	buf := &bytes.Buffer{}
	base := zapcore.NewCore(newEncoder("json"), zapcore.AddSync(buf), zapcore.DebugLevel)
	cfg := NewDefaultConfig().Sampling
	cfg.Initial = 1
	cfg.Thereafter = 0
	z := zap.New(newSampledCore(base, cfg))

	for i := 0; i < 5; i++ {
		z.Info("repeated")
		z.Error("failure")
	}
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte(`"repeated"`)))
	assert.Equal(t, 5, bytes.Count(buf.Bytes(), []byte(`"failure"`)))
}
