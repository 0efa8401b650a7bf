// Opsagentd serves the operations agent over HTTP.
//
// Each client creates a session and posts requests to it; sessions keep
// their own workflow context and entity memory until deleted or idle for
// session.idle_timeout. Prometheus metrics are served on /metrics.
//
// Configuration is loaded from ~/.config/opsagent/config.yaml (or -config)
// and OPSAGENT_* environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	opsagentd
//
//	# Configure via environment
//	OPSAGENT_SERVER__PORT=9292 OPSAGENT_SAFETY__POLICY=enforce opsagentd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/app"
	"github.com/fyrsmithlabs/opsagent/internal/config"
	httpapi "github.com/fyrsmithlabs/opsagent/internal/http"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// expiryInterval is how often idle sessions are swept.
const expiryInterval = time.Minute

var configPath = flag.String("config", "", "config file (default ~/.config/opsagent/config.yaml)")

func main() {
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  opsagentd           Start the opsagent HTTP server\n")
			fmt.Fprintf(os.Stderr, "  opsagentd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("opsagentd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the server and blocks until ctx is cancelled or the listener
// fails, then drains in-flight requests within server.shutdown_timeout.
func run(ctx context.Context, path string) error {
	cfg, err := config.LoadWithFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.New(ctx, cfg, version)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	logger, err := a.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tel, err := a.Telemetry()
	if err != nil {
		return err
	}
	reg, err := a.Services()
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := httpapi.NewServer(reg, logger, &httpapi.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	}, httpapi.WithMeterProvider(tel.MeterProvider()))
	if err != nil {
		return err
	}

	cloud, local := reg.Models()
	logger.Info(ctx, "starting opsagentd",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("safety_policy", cfg.Safety.Policy),
		zap.String("cloud_model", cloud),
		zap.String("local_model", local),
		zap.Bool("telemetry", tel.Enabled()),
		zap.Duration("session_idle_timeout", cfg.Session.IdleTimeout.Duration()))

	go reg.Sessions().Run(ctx, expiryInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
