package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"FinAlert/internal/domain/models"

	"github.com/spf13/cobra"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one evaluation cycle for a symbol and print the resulting alerts",
	Long: `Run one evaluation cycle for a configured symbol against the configured
store and print the alerts it raised as JSON. Alerts go through the normal
deduplication, so a second run inside the suppression window prints none.

Examples:
  finalert evaluate --stock 600519`,
	RunE: runEvaluate,
}

var evaluateStock string

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evaluateStock, "stock", "", "stock code to evaluate")
	_ = evaluateCmd.MarkFlagRequired("stock")
}

type evaluateOutput struct {
	StockCode   string             `json:"stock_code"`
	Alerts      []models.AlertView `json:"alerts"`
	Candidates  int                `json:"candidates"`
	Suppressed  int                `json:"suppressed"`
	Unavailable map[string]string  `json:"unavailable,omitempty"`
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	_, app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := app.Evaluate(ctx, evaluateStock)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", evaluateStock, err)
	}

	out := evaluateOutput{
		StockCode:  evaluateStock,
		Alerts:     make([]models.AlertView, 0, len(res.Alerts)),
		Candidates: len(res.Candidates),
		Suppressed: res.Suppressed,
	}
	for _, a := range res.Alerts {
		out.Alerts = append(out.Alerts, a.View())
	}
	if res.Snapshot != nil {
		out.Unavailable = res.Snapshot.Unavailable
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
