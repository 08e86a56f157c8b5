package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/ops-copilot/internal/automation"
	"github.com/sells-group/ops-copilot/internal/model"
)

var automationsCmd = &cobra.Command{
	Use:   "automations",
	Short: "Manage automation rules and inspect the run ledger",
}

var registerFlags struct {
	name      string
	kpi       string
	webhook   string
	condition string
}

var automationsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new automation rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var cond model.RuleCondition
		if registerFlags.condition != "" {
			if err := json.Unmarshal([]byte(registerFlags.condition), &cond); err != nil {
				return model.InvalidParameterf("condition: %v", err)
			}
		}
		rule := &model.AutomationRule{
			Name:       registerFlags.name,
			TriggerKpi: registerFlags.kpi,
			Condition:  cond,
			WebhookURL: registerFlags.webhook,
			Enabled:    true,
		}

		evaluator, err := newEvaluator(st)
		if err != nil {
			return err
		}
		if err := evaluator.RegisterRule(cmd.Context(), rule); err != nil {
			return err
		}
		fmt.Printf("registered %s (%s)\n", rule.Name, rule.ID)
		return nil
	},
}

var automationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rules, err := st.ListRules(cmd.Context(), false)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKPI\tENABLED\tWEBHOOK")
		for _, r := range rules {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", r.Name, r.TriggerKpi, r.Enabled, r.WebhookURL)
		}
		return w.Flush()
	},
}

func newEnableCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <rule-name>",
		Short: use + " a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetRuleEnabled(cmd.Context(), args[0], enabled); err != nil {
				return err
			}
			fmt.Printf("%s: enabled=%t\n", args[0], enabled)
			return nil
		},
	}
}

var runsLimit int

var automationsRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show the dispatch ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tRULE\tKPI\tDATE\tSTATUS\tHTTP")
		for _, r := range runs {
			code := "-"
			if r.ResponseCode != nil {
				code = fmt.Sprintf("%d", *r.ResponseCode)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.CreatedAt.Format(time.RFC3339), r.Name, r.KpiName, r.Date, r.Status, code)
		}
		return w.Flush()
	},
}

var automationsTestCmd = &cobra.Command{
	Use:   "test <rule-name>",
	Short: "Dry-run a rule against a synthetic anomaly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		rules, err := st.ListRules(cmd.Context(), false)
		if err != nil {
			return err
		}
		var rule *model.AutomationRule
		for i := range rules {
			if rules[i].Name == args[0] {
				rule = &rules[i]
				break
			}
		}
		if rule == nil {
			return model.NotFoundf("automation rule %s", args[0])
		}

		// A synthetic anomaly extreme enough to satisfy any threshold
		// or score predicate; segment filters still require real data.
		probe := model.Anomaly{
			KpiName:   rule.TriggerKpi,
			Date:      time.Now().UTC().Format(model.DateLayout),
			Value:     1e9,
			Score:     1e9,
			Status:    model.AnomalyStatusOpen,
			CreatedAt: time.Now().UTC(),
		}
		evaluator, err := newEvaluator(st)
		if err != nil {
			return err
		}
		runs, err := evaluator.Evaluate(cmd.Context(), []model.Anomaly{probe}, automation.Options{DryRun: true})
		if err != nil {
			return err
		}
		matched := false
		for _, r := range runs {
			if r.Name == rule.Name {
				matched = true
			}
		}
		fmt.Printf("rule %s matched=%t (dry run, %d ledger rows)\n", rule.Name, matched, len(runs))
		return nil
	},
}

func init() {
	automationsRegisterCmd.Flags().StringVar(&registerFlags.name, "name", "", "unique rule name")
	automationsRegisterCmd.Flags().StringVar(&registerFlags.kpi, "kpi", "", "trigger KPI")
	automationsRegisterCmd.Flags().StringVar(&registerFlags.webhook, "webhook", "", "webhook URL")
	automationsRegisterCmd.Flags().StringVar(&registerFlags.condition, "condition", "", `condition JSON, e.g. '{"threshold":{">":12}}'`)
	_ = automationsRegisterCmd.MarkFlagRequired("name")
	_ = automationsRegisterCmd.MarkFlagRequired("kpi")
	_ = automationsRegisterCmd.MarkFlagRequired("webhook")

	automationsRunsCmd.Flags().IntVar(&runsLimit, "limit", 50, "max rows")

	automationsCmd.AddCommand(automationsRegisterCmd)
	automationsCmd.AddCommand(automationsListCmd)
	automationsCmd.AddCommand(newEnableCmd("enable", true))
	automationsCmd.AddCommand(newEnableCmd("disable", false))
	automationsCmd.AddCommand(automationsRunsCmd)
	automationsCmd.AddCommand(automationsTestCmd)
	rootCmd.AddCommand(automationsCmd)
}
