// Package main implements nomeectl, the operator CLI for nomee.
//
// Commands that read the public API (health, signals) talk to a running
// nomeed over HTTP. Administrative commands (migrate, profile, reports) open
// the configured database directly.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stephdmurray-sys/nomee-sub001/internal/signals"
)

var (
	// serverURL is the base URL of the nomeed HTTP server
	serverURL string
	// configPath overrides the default config file location
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nomeectl",
	Short: "Operator CLI for nomee",
	Long: `nomeectl inspects a running nomeed server and administers the nomee
database: schema migrations, profiles and plans, and moderation reports.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "nomeed server URL")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/nomee/config.yaml)")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(signalsCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check nomeed server health",
	Long: `Check the health status of the nomeed HTTP server.

Examples:
  nomeectl health
  nomeectl health --server http://localhost:9090`,
	RunE: runHealth,
}

// signalsCmd prints a profile's aggregated signals
var signalsCmd = &cobra.Command{
	Use:   "signals <profile-id-or-slug>",
	Short: "Show the aggregated trait and vibe signals for a profile",
	Long: `Fetch the public signal summary for a profile and print it as a table.

Examples:
  nomeectl signals 3f0c2a4e-8d0b-4b7e-9f57-0d6a3c2b1e44
  nomeectl signals ana-lopez --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSignals,
}

var signalsJSON bool

func init() {
	signalsCmd.Flags().BoolVar(&signalsJSON, "json", false, "print the raw JSON response")
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// getJSON fetches path from the server and decodes the body into v.
func getJSON(path string, timeout time.Duration, v any) ([]byte, error) {
	u := serverURL + path
	resp, err := httpClient(timeout).Get(u)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return body, nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	var health HealthResponse
	if _, err := getJSON("/health", 5*time.Second, &health); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", health.Status)
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)
	return nil
}

func runSignals(cmd *cobra.Command, args []string) error {
	var profile signals.Profile
	raw, err := getJSON("/api/v1/profiles/"+url.PathEscape(args[0])+"/signals", 10*time.Second, &profile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if signalsJSON {
		_, err := out.Write(append(raw, '\n'))
		return err
	}

	fmt.Fprintf(out, "%s (%s)\n", profile.DisplayName, profile.Slug)
	fmt.Fprintf(out, "Contributions: %d  Imports: %d  Confidence: %s\n\n",
		profile.ContributionCount, profile.ImportCount, profile.ConfidenceLevel)
	printSignals(out, "TRAIT", profile.Traits)
	fmt.Fprintln(out)
	printSignals(out, "VIBE", profile.Vibes)
	return nil
}

func printSignals(out io.Writer, heading string, list []signals.Signal) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tCOUNT\tWEIGHTED\n", heading)
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%d\t%.1f\n", s.Label, s.Count, s.Weighted)
	}
	_ = w.Flush()
}
