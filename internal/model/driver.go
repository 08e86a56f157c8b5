package model

// SegmentAggregate is one dimension-value cut of a KPI's underlying
// numerator/denominator on a single day.
type SegmentAggregate struct {
	Segment     string  `json:"segment"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
}

// SegmentDayAggregate is a per-day segment aggregate from the baseline
// period.
type SegmentDayAggregate struct {
	Date        string  `json:"date"`
	Segment     string  `json:"segment"`
	Numerator   float64 `json:"numerator"`
	Denominator float64 `json:"denominator"`
}

// SupportingStats carries the raw aggregates behind a driver slice so an
// explanation can be checked without re-running its queries.
type SupportingStats struct {
	AnomalyNumerator    float64 `json:"anomaly_numerator"`
	AnomalyDenominator  float64 `json:"anomaly_denominator"`
	BaselineNumerator   float64 `json:"baseline_numerator"`
	BaselineDenominator float64 `json:"baseline_denominator"`
	AnomalyRate         float64 `json:"anomaly_rate"`
	BaselineRate        float64 `json:"baseline_rate"`
}

// DriverSlice attributes part of a KPI change to one dimension-value
// cut. Slices are transient: they exist only inside an explanation result
// and its serialized audit copy. Slices across dimensions are not
// disjoint — one underlying event can appear in several cuts.
type DriverSlice struct {
	DimensionName     string          `json:"dimension_name"`
	DimensionValue    string          `json:"dimension_value"`
	MetricBefore      float64         `json:"metric_before"`
	MetricAfter       float64         `json:"metric_after"`
	Delta             float64         `json:"delta"`
	DeltaPct          *float64        `json:"delta_pct,omitempty"`
	ContributionShare float64         `json:"contribution_share"`
	Stats             SupportingStats `json:"supporting_stats"`
}

// EvidenceQuery is the literal query pair used to compute one
// dimension's slices, captured verbatim for the audit trail.
type EvidenceQuery struct {
	Dimension      string                `json:"dimension"`
	TargetSQL      string                `json:"target_sql"`
	TargetParams   []string              `json:"target_params"`
	BaselineSQL    string                `json:"baseline_sql"`
	BaselineParams []string              `json:"baseline_params"`
	TargetRows     []SegmentAggregate    `json:"target_rows"`
	BaselineRows   []SegmentDayAggregate `json:"baseline_rows"`
}

// ExpectedImpact is a coarse estimate of what fixing a driver is worth.
type ExpectedImpact struct {
	KpiImprovementPct float64 `json:"expected_kpi_improvement_pct"`
	HoursSaved        float64 `json:"expected_hours_saved"`
	GBPSaved          float64 `json:"expected_gbp_saved"`
}

// RecommendedAction is a playbook suggestion derived from one driver.
type RecommendedAction struct {
	DimensionName  string         `json:"dimension_name"`
	DimensionValue string         `json:"dimension_value"`
	Action         string         `json:"action"`
	Impact         ExpectedImpact `json:"expected_impact"`
}

// ExplainResult is the full output of one explain call.
type ExplainResult struct {
	RequestID          string              `json:"request_id"`
	KpiName            string              `json:"kpi_name"`
	Date               string              `json:"date"`
	CurrentValue       float64             `json:"current_value"`
	BaselineValue      float64             `json:"baseline_value"`
	Delta              float64             `json:"delta"`
	Snapshot           KpiSnapshot         `json:"snapshot"`
	RankedDrivers      []DriverSlice       `json:"ranked_drivers"`
	RecommendedActions []RecommendedAction `json:"recommended_actions,omitempty"`
	Evidence           []EvidenceQuery     `json:"evidence"`
	AttributionNote    string              `json:"attribution_note,omitempty"`
	Narrative          string              `json:"narrative,omitempty"`
	AuditID            string              `json:"audit_id"`
}
