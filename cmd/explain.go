package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/ops-copilot/internal/explain"
)

var explainFlags struct {
	kpi       string
	date      string
	topN      int
	window    int
	narrative bool
	asJSON    bool
}

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Attribute a KPI movement to its dimensional drivers",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		explainer, err := newExplainer(st)
		if err != nil {
			return err
		}

		opts := explain.Options{
			TopN:          explainFlags.topN,
			WindowDays:    explainFlags.window,
			WithNarrative: explainFlags.narrative,
		}
		if opts.TopN == 0 {
			opts.TopN = cfg.Explain.TopN
		}
		if opts.WindowDays == 0 {
			opts.WindowDays = cfg.Explain.WindowDays
		}

		result, err := explainer.Explain(cmd.Context(), explainFlags.kpi, explainFlags.date, opts)
		if err != nil {
			return err
		}

		if explainFlags.asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Printf("%s on %s: %.2f (baseline %.2f, delta %+.2f)\n",
			result.KpiName, result.Date, result.CurrentValue, result.BaselineValue, result.Delta)
		fmt.Println("\nRanked drivers:")
		for i, d := range result.RankedDrivers {
			fmt.Printf("  %d. %s=%s  %.2f -> %.2f  (contribution %+.0f%%)\n",
				i+1, d.DimensionName, d.DimensionValue, d.MetricBefore, d.MetricAfter,
				d.ContributionShare*100)
		}
		if len(result.RecommendedActions) > 0 {
			fmt.Println("\nRecommended actions:")
			for _, a := range result.RecommendedActions {
				fmt.Printf("  - %s (est. %.2f pts, £%.0f)\n",
					a.Action, a.Impact.KpiImprovementPct, a.Impact.GBPSaved)
			}
		}
		if result.AttributionNote != "" {
			fmt.Printf("\nNote: %s\n", result.AttributionNote)
		}
		if result.Narrative != "" {
			fmt.Printf("\n%s\n", result.Narrative)
		}
		fmt.Printf("\naudit entry: %s\n", result.AuditID)
		return nil
	},
}

func init() {
	explainCmd.Flags().StringVar(&explainFlags.kpi, "kpi", "", "KPI name")
	explainCmd.Flags().StringVar(&explainFlags.date, "date", "", "target date YYYY-MM-DD")
	explainCmd.Flags().IntVar(&explainFlags.topN, "top", 0, "number of drivers to return (default from config)")
	explainCmd.Flags().IntVar(&explainFlags.window, "window", 0, "baseline window in days (default from config)")
	explainCmd.Flags().BoolVar(&explainFlags.narrative, "narrative", false, "generate a plain-language summary")
	explainCmd.Flags().BoolVar(&explainFlags.asJSON, "json", false, "emit the full result as JSON")
	_ = explainCmd.MarkFlagRequired("kpi")
	_ = explainCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(explainCmd)
}
