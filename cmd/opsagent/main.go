// Command opsagent is the interactive operations agent.
//
// With no subcommand it starts a read-eval-print loop: each line typed is
// classified, checked by the safety gate and routed to a workflow, and the
// result is printed as a single line.
//
// Usage:
//
//	# Interactive loop
//	opsagent
//
//	# One request
//	opsagent ask "scale api to 4 replicas in staging"
//
//	# Show how a request is interpreted without running it
//	opsagent plan "rollback payments"
//
//	# Serve the tools over MCP stdio
//	opsagent mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/opsagent/internal/app"
	"github.com/fyrsmithlabs/opsagent/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides the default config file location
	configPath string
	// logLevel overrides logging.level from the config file
	logLevel string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "opsagent",
	Short: "Natural-language operations agent",
	Long: `opsagent turns plain-English requests into deployment, scaling, debugging,
log, cost, pipeline and status operations.

Destructive requests (delete, destroy, wipe...) are blocked by the safety gate.
Run without a subcommand to start the interactive loop.`,
	Version:      version,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runREPL,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/opsagent/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// loadApp loads configuration and assembles the application. Logs always go
// to stderr so they never mix with replies or the MCP stream on stdout.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	return app.New(ctx, cfg, version, app.WithLogStderr())
}

// closeApp releases backends and flushes telemetry. Failures go to stderr.
func closeApp(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "opsagent: %v\n", err)
	}
}
