package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/opsagent/internal/router"
)

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(planCmd)
}

// askCmd runs a single request
var askCmd = &cobra.Command{
	Use:   "ask <request>",
	Short: "Run one request and print the result",
	Long: `Run one request through the same pipeline as the interactive loop and
print the single result line. The exit status is non-zero when the request
was blocked, not understood or failed.

Examples:
  opsagent ask deploy nginx with 3 replicas in staging
  opsagent ask "why is checkout failing"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// planCmd shows the interpretation of a request without running it
var planCmd = &cobra.Command{
	Use:   "plan <request>",
	Short: "Print the plan and safety decision for a request as JSON",
	Long: `Classify the request, extract its entities and run the safety check, then
print the result as JSON. Nothing is executed and no backend is contacted.

Examples:
  opsagent plan scale api to 5 in prod
  opsagent plan "delete the staging namespace"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func runAsk(cmd *cobra.Command, args []string) error {
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
	sess, err := reg.Sessions().Create(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Sessions().Delete(context.Background(), sess.ID) }()

	res := reg.Router().Process(ctx, sess, strings.Join(args, " "))
	fmt.Fprintln(cmd.OutOrStdout(), res.Message())
	if !res.Succeeded() {
		return fmt.Errorf("request finished with %s", res.Kind)
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
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
	preview, err := reg.Router().Preview(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return writePlan(cmd.OutOrStdout(), preview)
}

func writePlan(w io.Writer, p router.Preview) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return nil
}
