package explain

import (
	"fmt"

	"github.com/sells-group/ops-copilot/internal/model"
)

// Coarse conversion factors for the expected-impact estimate. These are
// planning numbers for triage, not a costing model.
const (
	actionShareFloor = 0.05
	hoursPerKpiPoint = 6.0
	gbpPerHour       = 38.0
)

var actionTemplates = map[string]string{
	"site":           "Run a same-day capacity and staffing review at site %s",
	"customer_tier":  "Escalate %s-tier accounts to their success owner before the next SLA checkpoint",
	"category":       "Pull the %s category work queue forward and re-triage aged items",
	"incident_type":  "Open a swarm on %s incidents and check for a shared upstream cause",
	"carrier":        "Raise an escalation with carrier %s and reroute SLA-sensitive volume",
	"product_family": "Brief the %s product family team and pause non-critical changes",
}

// recommendActions turns the ranked drivers into playbook suggestions.
// Slices below the share floor are noise and get no action.
func recommendActions(ranked []model.DriverSlice, overallDelta float64) []model.RecommendedAction {
	var actions []model.RecommendedAction
	for _, s := range ranked {
		if abs(s.ContributionShare) < actionShareFloor {
			continue
		}
		tmpl, ok := actionTemplates[s.DimensionName]
		if !ok {
			tmpl = "Investigate the %s segment with its owning team"
		}
		improvement := abs(s.ContributionShare * overallDelta)
		actions = append(actions, model.RecommendedAction{
			DimensionName:  s.DimensionName,
			DimensionValue: s.DimensionValue,
			Action:         fmt.Sprintf(tmpl, s.DimensionValue),
			Impact: model.ExpectedImpact{
				KpiImprovementPct: improvement,
				HoursSaved:        improvement * hoursPerKpiPoint,
				GBPSaved:          improvement * hoursPerKpiPoint * gbpPerHour,
			},
		})
	}
	return actions
}
