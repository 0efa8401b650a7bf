package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/do/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/audit"
	"github.com/fyrsmithlabs/opsagent/internal/config"
	"github.com/fyrsmithlabs/opsagent/internal/hooks"
	"github.com/fyrsmithlabs/opsagent/internal/llm"
	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/planner"
	"github.com/fyrsmithlabs/opsagent/internal/router"
	"github.com/fyrsmithlabs/opsagent/internal/safety"
	"github.com/fyrsmithlabs/opsagent/internal/secrets"
	"github.com/fyrsmithlabs/opsagent/internal/services"
	"github.com/fyrsmithlabs/opsagent/internal/session"
	"github.com/fyrsmithlabs/opsagent/internal/telemetry"
	"github.com/fyrsmithlabs/opsagent/internal/tools/cicd"
	"github.com/fyrsmithlabs/opsagent/internal/tools/cost"
	"github.com/fyrsmithlabs/opsagent/internal/tools/docker"
	"github.com/fyrsmithlabs/opsagent/internal/tools/helm"
	"github.com/fyrsmithlabs/opsagent/internal/tools/kube"
	"github.com/fyrsmithlabs/opsagent/internal/tools/monitor"
	"github.com/fyrsmithlabs/opsagent/internal/tools/runner"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

// Provider registers one dependency with the injector.
type Provider func(ctx context.Context, i do.Injector) error

// Dependency providers, in resolution order.

// provideLogger bridges log entries into the OTEL logger provider when
// telemetry is enabled.
func provideLogger(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*logging.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tel, err := do.Invoke[*telemetry.Telemetry](i)
		if err != nil {
			return nil, err
		}
		lc, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return nil, err
		}
		lc.Output.Stderr = do.MustInvokeNamed[bool](i, logStderrKey)
		lp := tel.LoggerProvider()
		lc.Output.OTEL = lp != nil
		return logging.NewLogger(lc, lp)
	})
	return nil
}

func provideTelemetry(ctx context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*telemetry.Telemetry, error) {
		cfg := do.MustInvoke[*config.Config](i)
		version := do.MustInvokeNamed[string](i, versionKey)
		return telemetry.New(ctx, cfg.Telemetry, version)
	})
	return nil
}

func provideScrubber(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*secrets.Scrubber, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return secrets.FromConfig(cfg.Secrets, cfg.LLM.APIKey, cfg.GitHub.Token)
	})
	return nil
}

func provideHooks(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*hooks.HookManager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		hc := hooks.FromSettings(cfg.Hooks)
		if err := hc.Validate(); err != nil {
			return nil, fmt.Errorf("hooks: %w", err)
		}
		return hooks.NewHookManager(hc), nil
	})
	return nil
}

func provideGate(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*safety.Gate, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return safety.NewGate(cfg.Safety, do.MustInvoke[*logging.Logger](i))
	})
	return nil
}

// provideBackends builds every configured workflow backend. A backend that
// fails to connect is logged and left out; the workflows that need it then
// report it as not configured.
func provideBackends(ctx context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (workflow.Deps, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*logging.Logger](i)
		return buildDeps(ctx, cfg, do.MustInvoke[*safety.Gate](i), logger), nil
	})
	return nil
}

func buildDeps(ctx context.Context, cfg *config.Config, gate *safety.Gate, logger *logging.Logger) workflow.Deps {
	deps := workflow.Deps{
		Terraform: runner.NewTerraform(cfg.Terraform.Binary, cfg.Terraform.Dir),
		Cloud:     runner.NewCloud(),
		Settings:  settings(cfg),
		Logger:    logger,
	}
	if gate != nil {
		deps.Approver = gate
	}
	unavailable := func(backend string, err error) {
		logger.Warn(ctx, "backend unavailable", zap.String("backend", backend), zap.Error(err))
	}

	if cfg.Kube.Enabled {
		if k, err := kube.NewFromKubeconfig(cfg.Kube.Kubeconfig, cfg.Kube.Context); err != nil {
			unavailable("kubernetes", err)
		} else {
			deps.Kube = k
		}
	}
	if cfg.Docker.Enabled {
		if d, err := docker.NewFromEnv(cfg.Docker.Host); err != nil {
			unavailable("docker", err)
		} else {
			deps.Docker = d
		}
	}
	if cfg.Helm.Enabled {
		deps.Helm = helm.New(helm.Options{
			Kubeconfig:  cfg.Kube.Kubeconfig,
			KubeContext: cfg.Kube.Context,
			Driver:      cfg.Helm.Driver,
			Timeout:     cfg.Helm.Timeout.Duration(),
		})
	}
	if gh, err := cicd.NewGitHub(ctx, cfg.GitHub.Token, cfg.GitHub.BaseURL); err != nil {
		unavailable("github", err)
	} else {
		deps.CICD = gh
	}
	if cfg.Prometheus.URL != "" {
		if p, err := monitor.NewPrometheus(cfg.Prometheus.URL); err != nil {
			unavailable("prometheus", err)
		} else {
			deps.Monitor = p
		}
	}
	if cfg.Cost.KubecostURL != "" {
		if c, err := cost.NewKubecost(cfg.Cost.KubecostURL, nil); err != nil {
			unavailable("kubecost", err)
		} else {
			deps.Cost = c
		}
	}
	return deps
}

func settings(cfg *config.Config) workflow.Settings {
	s := workflow.DefaultSettings()
	if cfg.Deploy.DefaultTarget != "" {
		s.DefaultTarget = cfg.Deploy.DefaultTarget
	}
	if cfg.Deploy.ChartsDir != "" {
		s.ChartsDir = cfg.Deploy.ChartsDir
	}
	if cfg.GitHub.RepoPath != "" {
		s.RepoPath = cfg.GitHub.RepoPath
	}
	if cfg.Cost.Window != "" {
		s.CostWindow = cfg.Cost.Window
	}
	s.DefaultRepo = cfg.GitHub.DefaultRepo
	return s
}

func provideLLM(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*llm.HybridLLM, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*logging.Logger](i)
		model, err := llm.New(cfg.LLM, logger)
		switch {
		case errors.Is(err, llm.ErrDisabled), errors.Is(err, llm.ErrNoModel):
			logger.Info(context.Background(), "explanations disabled", zap.Error(err))
			return nil, nil
		case err != nil:
			return nil, fmt.Errorf("llm: %w", err)
		}
		return model, nil
	})
	return nil
}

func provideExecutor(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*workflow.Executor, error) {
		deps, err := do.Invoke[workflow.Deps](i)
		if err != nil {
			return nil, err
		}
		model, err := do.Invoke[*llm.HybridLLM](i)
		if err != nil {
			return nil, err
		}
		tel := do.MustInvoke[*telemetry.Telemetry](i)

		opts := []workflow.ExecutorOption{workflow.WithMeterProvider(tel.MeterProvider())}
		if model != nil {
			opts = append(opts, workflow.WithExplainer(model))
		}
		return workflow.NewExecutor(workflow.DefaultRegistry(), deps, opts...), nil
	})
	return nil
}

func provideAudit(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (audit.Publisher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.NATS.URL == "" {
			return audit.Nop{}, nil
		}
		return audit.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix,
			do.MustInvoke[*secrets.Scrubber](i), do.MustInvoke[*logging.Logger](i))
	})
	return nil
}

func provideRouter(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*router.Router, error) {
		exec, err := do.Invoke[*workflow.Executor](i)
		if err != nil {
			return nil, err
		}
		pub, err := do.Invoke[audit.Publisher](i)
		if err != nil {
			return nil, err
		}
		logger := do.MustInvoke[*logging.Logger](i)
		return router.New(
			planner.New(logger),
			do.MustInvoke[*safety.Gate](i),
			exec,
			router.WithAudit(pub),
			router.WithHooks(do.MustInvoke[*hooks.HookManager](i)),
			router.WithScrubber(do.MustInvoke[*secrets.Scrubber](i)),
			router.WithLogger(logger),
			router.WithTelemetry(do.MustInvoke[*telemetry.Telemetry](i)),
		), nil
	})
	return nil
}

func provideSessions(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (*session.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return session.NewStore(session.StoreConfig{
			IdleTimeout:            cfg.Session.IdleTimeout.Duration(),
			MaxSessions:            cfg.Session.MaxSessions,
			ClearMemoryWithContext: cfg.Hooks.ClearMemoryWithContext,
		}, do.MustInvoke[*hooks.HookManager](i), do.MustInvoke[*logging.Logger](i)), nil
	})
	return nil
}

func provideServices(_ context.Context, i do.Injector) error {
	do.Provide(i, func(i do.Injector) (services.Registry, error) {
		rt, err := do.Invoke[*router.Router](i)
		if err != nil {
			return nil, err
		}
		store, err := do.Invoke[*session.Store](i)
		if err != nil {
			return nil, err
		}
		opts := services.Options{
			Router:   rt,
			Sessions: store,
			Executor: do.MustInvoke[*workflow.Executor](i),
			Gate:     do.MustInvoke[*safety.Gate](i),
			Hooks:    do.MustInvoke[*hooks.HookManager](i),
			Scrubber: do.MustInvoke[*secrets.Scrubber](i),
		}
		if model := do.MustInvoke[*llm.HybridLLM](i); model != nil {
			opts.CloudModel, opts.LocalModel = model.Models()
		}
		return services.NewRegistry(opts), nil
	})
	return nil
}
