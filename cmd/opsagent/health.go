package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/opsagent/internal/http"
)

// serverURL is the base URL of a running opsagentd
var serverURL string

func init() {
	healthCmd.Flags().StringVar(&serverURL, "server", "http://localhost:9191", "opsagentd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(versionCmd)
}

// healthCmd checks a running opsagentd
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check opsagentd server health",
	Long: `Check the health of a running opsagentd server.

Examples:
  opsagent health
  opsagent health --server http://ops.internal:9191`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func runHealth(cmd *cobra.Command, _ []string) error {
	url := serverURL + "/health"
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health httpapi.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	printHealth(cmd.OutOrStdout(), health)
	return nil
}

func printHealth(w io.Writer, h httpapi.HealthResponse) {
	fmt.Fprintf(w, "Server Status:   %s\n", h.Status)
	fmt.Fprintf(w, "Server URL:      %s\n", serverURL)
	fmt.Fprintf(w, "Version:         %s\n", h.Version)
	fmt.Fprintf(w, "Safety Policy:   %s\n", h.Policy)
	fmt.Fprintf(w, "Active Sessions: %d\n", h.Sessions)
	roles := make([]string, 0, len(h.Models))
	for role := range h.Models {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Fprintf(w, "Model (%s): %s\n", role, h.Models[role])
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "opsagent by Fyrsmith Labs\n")
	fmt.Fprintf(w, "Version:    %s\n", version)
	fmt.Fprintf(w, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(w, "Build Date: %s\n", buildDate)
}
