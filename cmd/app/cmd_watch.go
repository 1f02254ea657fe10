package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinAlert/internal/domain/models"
	"FinAlert/pkg/alertclient"
	applogger "FinAlert/pkg/logger"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll a running server's realtime alerts and print each new one",
	Long: `Poll the realtime alert endpoint of a running server and print each alert
once as a JSON line. Alerts already printed are remembered in --seen-file, so
restarting the watcher does not repeat them.

Examples:
  finalert watch --url http://localhost:8080 --interval 30s`,
	RunE: runWatch,
}

var (
	watchURL      string
	watchSeenFile string
	watchInterval time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchURL, "url", "http://localhost:8080", "server base URL")
	watchCmd.Flags().StringVar(&watchSeenFile, "seen-file", "seen_alerts.json", "file keeping already printed alerts")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 30*time.Second, "poll interval")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	l, err := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stderr"})
	if err != nil {
		return err
	}
	seen, err := alertclient.NewSeenSet(watchSeenFile, alertclient.DefaultSeenCapacity)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	p := alertclient.NewPoller(watchURL, seen,
		alertclient.WithInterval(watchInterval),
		alertclient.WithLogger(l),
	)
	err = p.Run(ctx, func(v models.AlertView) {
		_ = enc.Encode(v)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
