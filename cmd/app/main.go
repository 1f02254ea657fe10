package main

import (
	"errors"
	"fmt"
	"os"

	"FinAlert/internal/di"
	"FinAlert/internal/domain/errs"
	"FinAlert/pkg/config"
	"FinAlert/pkg/server"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "finalert",
	Short: "Stock anomaly, news correlation and alerting service",
	Long: `finalert watches a list of A-share symbols, detects price and volume
anomalies, correlates them with recent news and raises deduplicated alerts.

Examples:
  finalert serve --config config/config.yaml
  finalert evaluate --stock 600519`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
}

// buildApp loads config (YAML, then .env and environment overrides) and wires the app.
func buildApp() (*config.Config, *server.App, error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, err
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return cfg, app, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "finalert:", err)
		if errors.Is(err, errs.ErrConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
