package model

import "time"

// AnomalyStatus is the triage state of a detected anomaly. Status
// transitions are the only mutation path on an anomaly row.
type AnomalyStatus string

const (
	AnomalyStatusOpen         AnomalyStatus = "open"
	AnomalyStatusAcknowledged AnomalyStatus = "acknowledged"
	AnomalyStatusResolved     AnomalyStatus = "resolved"
)

// Valid reports whether s is a known triage status.
func (s AnomalyStatus) Valid() bool {
	switch s {
	case AnomalyStatusOpen, AnomalyStatusAcknowledged, AnomalyStatusResolved:
		return true
	}
	return false
}

// ValidTransition reports whether an anomaly may move from s to next.
// Anomalies are never re-scored in place; only open rows advance.
func (s AnomalyStatus) ValidTransition(next AnomalyStatus) bool {
	if s != AnomalyStatusOpen {
		return false
	}
	return next == AnomalyStatusAcknowledged || next == AnomalyStatusResolved
}

// Anomaly is one finding from a detection pass: a KPI day whose robust
// z-score exceeded the threshold. Rows are append-only; a re-run over the
// same date creates a new row rather than mutating history.
type Anomaly struct {
	ID          string        `json:"id"`
	KpiName     string        `json:"kpi_name"`
	Date        string        `json:"date"`
	Value       float64       `json:"value"`
	Baseline    float64       `json:"baseline"`
	Score       float64       `json:"score"`
	Status      AnomalyStatus `json:"status"`
	ScenarioTag string        `json:"scenario_tag,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
