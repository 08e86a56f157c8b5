package explain

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

// KpiMapping binds a KPI to the fact-table cuts that can explain it.
// Scale converts the raw numerator/denominator ratio into the KPI's
// published unit (both rate KPIs are per-100).
type KpiMapping struct {
	Scale      float64                `yaml:"scale"`
	Dimensions []store.DimensionQuery `yaml:"dimensions"`
}

// Registry maps KPI names to their dimension mappings. Mappings are
// static configuration, never derived from user input, so the SQL they
// render is trusted.
type Registry map[string]KpiMapping

func slaCut(dimension string) store.DimensionQuery {
	return store.DimensionQuery{
		Dimension:       dimension,
		SegmentExpr:     dimension,
		NumeratorExpr:   "SUM(sla_breached)",
		DenominatorExpr: "SUM(sla_sensitive)",
		FromClause:      "fact_ops_daily",
		ExtraWhere:      "sla_sensitive > 0",
	}
}

func exceptionCut(dimension string) store.DimensionQuery {
	return store.DimensionQuery{
		Dimension:       dimension,
		SegmentExpr:     dimension,
		NumeratorExpr:   "SUM(incidents)",
		DenominatorExpr: "SUM(jobs)",
		FromClause:      "fact_ops_daily",
		ExtraWhere:      "jobs > 0",
	}
}

// DefaultRegistry returns the built-in KPI dimension mappings.
func DefaultRegistry() Registry {
	return Registry{
		"sla_breach_rate_pct": {
			Scale: 100,
			Dimensions: []store.DimensionQuery{
				slaCut("site"),
				slaCut("customer_tier"),
				slaCut("category"),
				slaCut("carrier"),
				slaCut("product_family"),
			},
		},
		"exception_rate_per_100_jobs": {
			Scale: 100,
			Dimensions: []store.DimensionQuery{
				exceptionCut("site"),
				exceptionCut("customer_tier"),
				exceptionCut("incident_type"),
				exceptionCut("carrier"),
				exceptionCut("product_family"),
			},
		},
	}
}

// LoadRegistry merges YAML mapping overrides on top of the defaults.
// The file maps KPI names to {scale, dimensions: [...]}; a KPI present
// in the file replaces its default mapping wholesale.
func LoadRegistry(path string) (Registry, error) {
	reg := DefaultRegistry()
	if path == "" {
		return reg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "explain: read dimension mappings %s", path)
	}
	var overrides Registry
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, eris.Wrapf(err, "explain: parse dimension mappings %s", path)
	}
	for kpi, m := range overrides {
		if len(m.Dimensions) == 0 {
			return nil, model.InvalidParameterf("dimension mapping for %s has no dimensions", kpi)
		}
		if m.Scale == 0 {
			m.Scale = 1
		}
		reg[kpi] = m
	}
	return reg, nil
}
