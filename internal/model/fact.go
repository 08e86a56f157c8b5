package model

// OpsFactRow is one denormalized daily fact row: dimension values plus
// the event counters the rate KPIs are computed from. The ETL that
// produces these rows is an external collaborator; this core only reads
// them when slicing a KPI by dimension.
type OpsFactRow struct {
	Date          string `json:"date"`
	Site          string `json:"site"`
	CustomerTier  string `json:"customer_tier"`
	Category      string `json:"category"`
	IncidentType  string `json:"incident_type"`
	Carrier       string `json:"carrier"`
	ProductFamily string `json:"product_family"`
	SlaSensitive  int    `json:"sla_sensitive"`
	SlaBreached   int    `json:"sla_breached"`
	Jobs          int    `json:"jobs"`
	Incidents     int    `json:"incidents"`
}

// Scenario is one labeled injected-anomaly window from the scenario
// registry, used to tag detections and to assert expected drivers.
type Scenario struct {
	Tag                     string `json:"scenario_tag"`
	Date                    string `json:"scenario_date"`
	KpiName                 string `json:"kpi_name"`
	ExpectedDriverDimension string `json:"expected_driver_dimension,omitempty"`
	ExpectedDriverValue     string `json:"expected_driver_value,omitempty"`
}

// KpiSummary aggregates one KPI over a date range.
type KpiSummary struct {
	KpiName     string  `json:"kpi_name"`
	AvgValue    float64 `json:"avg_value"`
	MinValue    float64 `json:"min_value"`
	MaxValue    float64 `json:"max_value"`
	LatestValue float64 `json:"latest_value"`
	LatestDate  string  `json:"latest_date"`
	TargetGood  float64 `json:"target_good"`
	TargetBad   float64 `json:"target_bad"`
	OwnerRole   string  `json:"owner_role"`
}
