package main

import (
	"github.com/spf13/cobra"

	opsmcp "github.com/fyrsmithlabs/opsagent/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// mcpCmd serves the agent over MCP stdio
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve opsagent as an MCP server on stdio",
	Long: `Serve the process_request, plan_request and list_intents tools over the
Model Context Protocol on stdin/stdout. All tool calls share one session, so
follow-up requests can rely on what earlier ones established.

Example MCP client entry:
  {"command": "opsagent", "args": ["mcp"]}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	reg, err := a.Services()
	if err != nil {
		return err
	}
	logger, err := a.Logger()
	if err != nil {
		return err
	}
	tel, err := a.Telemetry()
	if err != nil {
		return err
	}

	srv, err := opsmcp.NewServer(ctx, &opsmcp.Config{
		Name:          "opsagent",
		Version:       version,
		Logger:        logger,
		MeterProvider: tel.MeterProvider(),
	}, reg)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close(ctx) }()

	return srv.Run(ctx)
}
