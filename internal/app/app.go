// Package app assembles opsagent from its configuration.
//
// Every component is registered with a samber/do injector and resolved
// lazily, so a command only connects to the backends it actually needs.
// Both binaries build an App and use its service registry.
package app

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/fyrsmithlabs/opsagent/internal/audit"
	"github.com/fyrsmithlabs/opsagent/internal/config"
	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/services"
	"github.com/fyrsmithlabs/opsagent/internal/telemetry"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

const (
	versionKey   = "version"
	logStderrKey = "log_stderr"
)

// App owns the injector and the resources that need closing.
type App struct {
	Config *config.Config

	injector *do.RootScope
}

type options struct {
	logger    *logging.Logger
	logStderr bool
	deps      *workflow.Deps
	audit     audit.Publisher
}

// Option customises New.
type Option func(*options)

// WithLogger replaces the logger built from config.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogStderr writes the console log output to stderr, keeping stdout for
// replies and protocol traffic.
func WithLogStderr() Option {
	return func(o *options) { o.logStderr = true }
}

// WithDeps replaces the backends built from config.
func WithDeps(d workflow.Deps) Option {
	return func(o *options) { o.deps = &d }
}

// WithAudit replaces the audit publisher built from config.
func WithAudit(p audit.Publisher) Option {
	return func(o *options) { o.audit = p }
}

// New validates cfg and registers every component. Nothing connects until
// the first call that needs it.
func New(ctx context.Context, cfg *config.Config, version string, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	i := do.New()
	do.ProvideValue(i, cfg)
	do.ProvideNamedValue(i, versionKey, version)
	do.ProvideNamedValue(i, logStderrKey, o.logStderr)

	providers := []Provider{
		provideTelemetry,
		provideScrubber,
		provideHooks,
		provideGate,
		provideLLM,
		provideExecutor,
		provideRouter,
		provideSessions,
		provideServices,
	}
	if o.logger != nil {
		do.ProvideValue(i, o.logger)
	} else {
		providers = append(providers, provideLogger)
	}
	if o.deps != nil {
		do.ProvideValue(i, *o.deps)
	} else {
		providers = append(providers, provideBackends)
	}
	if o.audit != nil {
		do.ProvideValue(i, o.audit)
	} else {
		providers = append(providers, provideAudit)
	}

	for _, provide := range providers {
		if err := provide(ctx, i); err != nil {
			return nil, err
		}
	}
	return &App{Config: cfg, injector: i}, nil
}

// Services resolves the service registry, building everything it needs.
func (a *App) Services() (services.Registry, error) {
	reg, err := do.Invoke[services.Registry](a.injector)
	if err != nil {
		return nil, fmt.Errorf("resolve services: %w", err)
	}
	return reg, nil
}

// Logger resolves the application logger.
func (a *App) Logger() (*logging.Logger, error) {
	l, err := do.Invoke[*logging.Logger](a.injector)
	if err != nil {
		return nil, fmt.Errorf("resolve logger: %w", err)
	}
	return l, nil
}

// Telemetry resolves the telemetry providers.
func (a *App) Telemetry() (*telemetry.Telemetry, error) {
	t, err := do.Invoke[*telemetry.Telemetry](a.injector)
	if err != nil {
		return nil, fmt.Errorf("resolve telemetry: %w", err)
	}
	return t, nil
}

// Close shuts down every resolved component that holds resources, in
// reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	report := a.injector.ShutdownWithContext(ctx)
	if report != nil && !report.Succeed {
		return fmt.Errorf("shutdown: %s", report.Error())
	}
	return nil
}
