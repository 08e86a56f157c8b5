package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ops-copilot/internal/automation"
	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

var evaluateFlags struct {
	kpi    string
	limit  int
	dryRun bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run automation rules against open anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		anomalies, err := st.ListAnomalies(cmd.Context(), store.AnomalyFilter{
			Status:  model.AnomalyStatusOpen,
			KpiName: evaluateFlags.kpi,
			Limit:   evaluateFlags.limit,
		})
		if err != nil {
			return err
		}
		if len(anomalies) == 0 {
			fmt.Println("no open anomalies")
			return nil
		}

		evaluator, err := newEvaluator(st)
		if err != nil {
			return err
		}
		runs, err := evaluator.Evaluate(cmd.Context(), anomalies, automation.Options{
			DryRun: evaluateFlags.dryRun,
		})
		if err != nil {
			return err
		}

		for _, run := range runs {
			code := "-"
			if run.ResponseCode != nil {
				code = fmt.Sprintf("%d", *run.ResponseCode)
			}
			fmt.Printf("%s  %s %s  %s (http %s)\n",
				run.Name, run.KpiName, run.Date, run.Status, code)
		}
		fmt.Printf("\n%d anomalies evaluated, %d dispatches ledgered\n", len(anomalies), len(runs))
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateFlags.kpi, "kpi", "", "limit to one KPI")
	evaluateCmd.Flags().IntVar(&evaluateFlags.limit, "limit", 0, "max anomalies to evaluate")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.dryRun, "dry-run", false, "match and ledger without dispatching")
	rootCmd.AddCommand(evaluateCmd)
}
