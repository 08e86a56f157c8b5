package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/ops-copilot/internal/detector"
)

var detectFlags struct {
	kpi       string
	from      string
	to        string
	window    int
	threshold float64
	dryRun    bool
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Score KPI observations and flag anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		params := detector.Params{
			KpiName:    detectFlags.kpi,
			From:       detectFlags.from,
			To:         detectFlags.to,
			WindowDays: detectFlags.window,
			Threshold:  detectFlags.threshold,
			DryRun:     detectFlags.dryRun,
		}
		if params.WindowDays == 0 {
			params.WindowDays = cfg.Detect.WindowDays
		}
		if params.Threshold == 0 {
			params.Threshold = cfg.Detect.Threshold
		}

		results, err := detector.New(st).DetectAll(cmd.Context(), params)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KPI\tDATE\tVALUE\tBASELINE\tSCORE\tSCENARIO")
		flagged := 0
		for _, res := range results {
			for _, a := range res.Anomalies {
				flagged++
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%+.2f\t%s\n",
					a.KpiName, a.Date, a.Value, a.Baseline, a.Score, a.ScenarioTag)
			}
		}
		w.Flush()
		fmt.Printf("\n%d anomalies flagged across %d KPIs\n", flagged, len(results))
		if detectFlags.dryRun {
			fmt.Println("dry run: nothing persisted")
		}
		return nil
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectFlags.kpi, "kpi", "", "limit to one KPI (default all)")
	detectCmd.Flags().StringVar(&detectFlags.from, "from", "", "start date YYYY-MM-DD")
	detectCmd.Flags().StringVar(&detectFlags.to, "to", "", "end date YYYY-MM-DD")
	detectCmd.Flags().IntVar(&detectFlags.window, "window", 0, "baseline window in days (default from config)")
	detectCmd.Flags().Float64Var(&detectFlags.threshold, "threshold", 0, "robust z-score threshold (default from config)")
	detectCmd.Flags().BoolVar(&detectFlags.dryRun, "dry-run", false, "score without writing the ledger")
	_ = detectCmd.MarkFlagRequired("from")
	_ = detectCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(detectCmd)
}
