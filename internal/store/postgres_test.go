package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ops-copilot/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgresRegisterRuleConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO automations").
		WithArgs(pgxmock.AnyArg(), "sla-breach-page", "sla_breach_rate_pct",
			pgxmock.AnyArg(), "https://hooks.example.com/page", true, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "automations_name_key"})

	err := s.RegisterRule(context.Background(), &model.AutomationRule{
		Name:       "sla-breach-page",
		TriggerKpi: "sla_breach_rate_pct",
		WebhookURL: "https://hooks.example.com/page",
		Enabled:    true,
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRulesForKpi(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	created := time.Date(2025, 6, 14, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, name, trigger_kpi, condition_json").
		WithArgs("sla_breach_rate_pct").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "trigger_kpi", "condition_json", "webhook_url", "enabled", "created_at",
		}).AddRow(
			"auto-1", "sla-breach-page", "sla_breach_rate_pct",
			`{"threshold":{"operator":">","value":12}}`,
			"https://hooks.example.com/page", true, created,
		))

	rules, err := s.RulesForKpi(context.Background(), "sla_breach_rate_pct")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.NotNil(t, rules[0].Condition.Threshold)
	assert.Equal(t, ">", rules[0].Condition.Threshold.Operator)
	assert.Equal(t, 12.0, rules[0].Condition.Threshold.Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateAnomalyStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT status FROM anomalies").
		WithArgs("anom-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("open"))
	mock.ExpectExec("UPDATE anomalies SET status").
		WithArgs("resolved", "anom-1", "open").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateAnomalyStatus(ctx, "anom-1", model.AnomalyStatusResolved))

	// resolved is terminal
	mock.ExpectQuery("SELECT status FROM anomalies").
		WithArgs("anom-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("resolved"))

	err := s.UpdateAnomalyStatus(ctx, "anom-1", model.AnomalyStatusAcknowledged)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidParameter))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAttachFeedbackNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("UPDATE explain_audit_log SET user_feedback").
		WithArgs(pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.AttachFeedback(context.Background(), "missing", model.AuditFeedback{Rating: "helpful"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSegmentDay(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	q := DimensionQuery{
		Dimension:       "site",
		SegmentExpr:     "site",
		NumeratorExpr:   "SUM(sla_breached)",
		DenominatorExpr: "SUM(sla_sensitive)",
		FromClause:      "fact_ops_daily",
	}

	mock.ExpectQuery("SELECT site AS segment").
		WithArgs("2025-06-14").
		WillReturnRows(pgxmock.NewRows([]string{"segment", "numerator", "denominator"}).
			AddRow("ATL", 1.0, 10.0).
			AddRow("DFW", 9.0, 20.0))

	aggs, sqlText, err := s.SegmentDay(context.Background(), q, "2025-06-14")
	require.NoError(t, err)
	require.Len(t, aggs, 2)
	assert.Contains(t, sqlText, "$1")
	assert.Equal(t, "DFW", aggs[1].Segment)
	require.NoError(t, mock.ExpectationsWereMet())
}
