package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/opsagent/internal/config"
)

const shutdownTimeout = 5 * time.Second

// Telemetry owns the tracer, meter and logger providers.
type Telemetry struct {
	enabled bool
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	lp      *sdklog.LoggerProvider
}

// New builds OTLP-exporting providers and installs them globally. A
// disabled config yields an instance backed by the global providers.
func New(ctx context.Context, cfg config.TelemetryConfig, version string) (*Telemetry, error) {
	t := &Telemetry{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg.ServiceName, version)
	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	lp, err := newLoggerProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	t.tp, t.mp, t.lp = tp, mp, lp

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// Enabled reports whether spans and metrics are exported.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.enabled
}

// TracerProvider returns the SDK provider, or the global one when disabled.
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t == nil || t.tp == nil {
		return otel.GetTracerProvider()
	}
	return t.tp
}

// MeterProvider returns the SDK provider, or the global one when disabled.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t == nil || t.mp == nil {
		return otel.GetMeterProvider()
	}
	return t.mp
}

// LoggerProvider returns the provider for the OTEL logging bridge, or nil
// when telemetry is disabled.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.lp == nil {
		return nil
	}
	return t.lp
}

// Tracer returns a tracer for the instrumentation scope name.
func (t *Telemetry) Tracer(name string) trace.Tracer {
	return t.TracerProvider().Tracer(name)
}

// Meter returns a meter for the instrumentation scope name.
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.MeterProvider().Meter(name)
}

// Shutdown flushes and stops the providers. Without a deadline on ctx it
// waits at most five seconds.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || (t.tp == nil && t.mp == nil && t.lp == nil) {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if t.lp != nil {
		if err := t.lp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
