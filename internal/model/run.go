package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the outcome of one automation dispatch attempt.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusSkipped RunStatus = "skipped"
)

// AutomationRun is one row in the dispatch ledger: a matched rule that
// reached dispatch (or was suppressed by dry-run). The ledger is
// append-only and is the system of record for what fired and what
// happened. Non-matching rules produce no row.
type AutomationRun struct {
	ID           string          `json:"id"`
	AutomationID string          `json:"automation_id"`
	Name         string          `json:"name"`
	KpiName      string          `json:"kpi_name"`
	Date         string          `json:"date"`
	Payload      json.RawMessage `json:"payload"`
	Status       RunStatus       `json:"status"`
	ResponseCode *int            `json:"response_code,omitempty"`
	ResponseBody string          `json:"response_body,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// WebhookPayload is the JSON body POSTed to a rule's webhook.
type WebhookPayload struct {
	AutomationName string        `json:"automation_name"`
	KpiName        string        `json:"kpi_name"`
	Date           string        `json:"date"`
	Value          float64       `json:"value"`
	Baseline       float64       `json:"baseline"`
	AnomalyScore   float64       `json:"anomaly_score"`
	ScenarioTag    string        `json:"scenario_tag,omitempty"`
	Condition      RuleCondition `json:"condition"`
	TriggeredAt    time.Time     `json:"triggered_at"`
}
