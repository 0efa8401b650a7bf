package logging

import (
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

const otelScope = "github.com/fyrsmithlabs/opsagent"

// newDualCore builds the stdout core and, when a provider is given, an
// otelzap core, then applies sampling.
func newDualCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 2)

	if cfg.Output.Stdout {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		out := os.Stdout
		if cfg.Output.Stderr {
			out = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(out), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		otelCore, err := zapcore.NewIncreaseLevelCore(
			otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(otelProvider)), cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to create otel core: %w", err)
		}
		cores = append(cores, otelCore)
	}

	if len(cores) == 0 {
		return nil, errors.New("at least one output must be enabled and available")
	}

	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}
