package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

var anomaliesFlags struct {
	status string
	kpi    string
	limit  int
}

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "List and triage detected anomalies",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		anomalies, err := st.ListAnomalies(cmd.Context(), store.AnomalyFilter{
			Status:  model.AnomalyStatus(anomaliesFlags.status),
			KpiName: anomaliesFlags.kpi,
			Limit:   anomaliesFlags.limit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKPI\tDATE\tVALUE\tSCORE\tSTATUS\tSCENARIO")
		for _, a := range anomalies {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%+.2f\t%s\t%s\n",
				a.ID, a.KpiName, a.Date, a.Value, a.Score, a.Status, a.ScenarioTag)
		}
		return w.Flush()
	},
}

func newTriageCmd(use, short string, status model.AnomalyStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <anomaly-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.UpdateAnomalyStatus(cmd.Context(), args[0], status); err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", args[0], status)
			return nil
		},
	}
}

func init() {
	anomaliesCmd.Flags().StringVar(&anomaliesFlags.status, "status", "", "filter by status (open, acknowledged, resolved)")
	anomaliesCmd.Flags().StringVar(&anomaliesFlags.kpi, "kpi", "", "filter by KPI")
	anomaliesCmd.Flags().IntVar(&anomaliesFlags.limit, "limit", 0, "max rows")
	anomaliesCmd.AddCommand(newTriageCmd("ack", "Acknowledge an open anomaly", model.AnomalyStatusAcknowledged))
	anomaliesCmd.AddCommand(newTriageCmd("resolve", "Resolve an open anomaly", model.AnomalyStatusResolved))
	rootCmd.AddCommand(anomaliesCmd)
}
