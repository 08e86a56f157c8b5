package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ops-copilot/internal/automation"
	"github.com/sells-group/ops-copilot/internal/config"
	"github.com/sells-group/ops-copilot/internal/explain"
	"github.com/sells-group/ops-copilot/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ops-copilot",
	Short: "Analytics intelligence core for operational KPIs",
	Long:  "Detects KPI anomalies with robust statistics, explains them by dimensional drill-down with an audit trail, and fires registered automations over webhooks.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openStore builds the configured backend.
func openStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver == "postgres" {
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	}
	return store.NewSQLite(cfg.Store.Path)
}

func newExplainer(st store.Store) (*explain.Explainer, error) {
	reg, err := explain.LoadRegistry(cfg.Explain.MappingsPath)
	if err != nil {
		return nil, err
	}
	var narrator explain.Narrator
	if cfg.Anthropic.Key != "" {
		narrator = explain.NewClaudeNarrator(cfg.Anthropic.Key)
	}
	return explain.New(st, reg, narrator), nil
}

func newEvaluator(st store.Store) (*automation.Evaluator, error) {
	explainer, err := newExplainer(st)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.Webhook.TimeoutSecs) * time.Second
	return automation.New(st, explainer, timeout, cfg.Webhook.RatePerSec), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
