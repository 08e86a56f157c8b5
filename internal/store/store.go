// Package store provides persistence for the analytics core: the
// read-only mart views (KPI observations, dimensional facts, scenario
// registry) and the three append-only ledgers it owns (anomalies,
// explain audit log, automation runs), plus the automation rule
// registry.
package store

import (
	"context"

	"github.com/sells-group/ops-copilot/internal/model"
)

// AnomalyFilter specifies criteria for listing anomalies.
type AnomalyFilter struct {
	Status  model.AnomalyStatus `json:"status,omitempty"`
	KpiName string              `json:"kpi_name,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
}

// DimensionQuery describes how to slice a KPI's underlying metric by one
// dimension: the segment expression, the numerator/denominator
// aggregates, and the fact source. Instances come from the explainer's
// static per-KPI registry, never from user input.
type DimensionQuery struct {
	Dimension       string `yaml:"dimension"`
	SegmentExpr     string `yaml:"segment_expr"`
	NumeratorExpr   string `yaml:"numerator_expr"`
	DenominatorExpr string `yaml:"denominator_expr"`
	FromClause      string `yaml:"from_clause"`
	ExtraWhere      string `yaml:"extra_where,omitempty"`
}

// Store is the persistence interface shared by the SQLite and Postgres
// backends. Ledger tables are append-only: the only updates are anomaly
// status transitions, rule enable/disable, and audit feedback
// attachment.
type Store interface {
	// Observations (read-only mart view)
	Observations(ctx context.Context, kpiName, from, to string) ([]model.KpiObservation, error)
	Observation(ctx context.Context, kpiName, date string) (*model.KpiObservation, error)
	KpiNames(ctx context.Context) ([]string, error)
	KpiDefined(ctx context.Context, kpiName string) (bool, error)
	KpiSummaries(ctx context.Context, from, to string) ([]model.KpiSummary, error)
	ScenarioTag(ctx context.Context, kpiName, date string) (string, error)

	// Dimensional slicing. Both return the literal SQL issued so the
	// explainer can capture it as evidence.
	SegmentDay(ctx context.Context, q DimensionQuery, date string) ([]model.SegmentAggregate, string, error)
	SegmentRange(ctx context.Context, q DimensionQuery, from, to string) ([]model.SegmentDayAggregate, string, error)

	// Anomaly ledger
	InsertAnomalies(ctx context.Context, anomalies []model.Anomaly) error
	ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]model.Anomaly, error)
	UpdateAnomalyStatus(ctx context.Context, id string, status model.AnomalyStatus) error

	// Explain audit ledger
	InsertAuditEntry(ctx context.Context, entry *model.ExplainAuditEntry) error
	GetAuditEntry(ctx context.Context, id string) (*model.ExplainAuditEntry, error)
	AttachFeedback(ctx context.Context, auditID string, fb model.AuditFeedback) error

	// Automation rule registry
	RegisterRule(ctx context.Context, rule *model.AutomationRule) error
	ListRules(ctx context.Context, enabledOnly bool) ([]model.AutomationRule, error)
	RulesForKpi(ctx context.Context, kpiName string) ([]model.AutomationRule, error)
	SetRuleEnabled(ctx context.Context, name string, enabled bool) error

	// Automation run ledger
	InsertRun(ctx context.Context, run *model.AutomationRun) error
	ListRuns(ctx context.Context, limit int) ([]model.AutomationRun, error)

	// Seeding (used by loaders and test fixtures; observations are
	// immutable once written)
	InsertObservation(ctx context.Context, obs model.KpiObservation) error
	InsertFactRow(ctx context.Context, row model.OpsFactRow) error
	InsertScenario(ctx context.Context, sc model.Scenario) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
