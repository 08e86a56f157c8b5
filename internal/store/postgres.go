package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ops-copilot/internal/db"
	"github.com/sells-group/ops-copilot/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS fact_kpi_daily (
	kpi_name    TEXT NOT NULL,
	date        TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	target_good DOUBLE PRECISION NOT NULL DEFAULT 0,
	target_bad  DOUBLE PRECISION NOT NULL DEFAULT 0,
	owner_role  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (kpi_name, date)
);

CREATE TABLE IF NOT EXISTS fact_ops_daily (
	date           TEXT NOT NULL,
	site           TEXT NOT NULL DEFAULT '',
	customer_tier  TEXT NOT NULL DEFAULT '',
	category       TEXT NOT NULL DEFAULT '',
	incident_type  TEXT NOT NULL DEFAULT '',
	carrier        TEXT NOT NULL DEFAULT '',
	product_family TEXT NOT NULL DEFAULT '',
	sla_sensitive  INTEGER NOT NULL DEFAULT 0,
	sla_breached   INTEGER NOT NULL DEFAULT 0,
	jobs           INTEGER NOT NULL DEFAULT 0,
	incidents      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS scenario_registry (
	scenario_tag              TEXT NOT NULL,
	scenario_date             TEXT NOT NULL,
	kpi_name                  TEXT NOT NULL,
	expected_driver_dimension TEXT,
	expected_driver_value     TEXT
);

CREATE TABLE IF NOT EXISTS anomalies (
	id           TEXT PRIMARY KEY,
	kpi_name     TEXT NOT NULL,
	date         TEXT NOT NULL,
	value        DOUBLE PRECISION NOT NULL,
	baseline     DOUBLE PRECISION NOT NULL,
	score        DOUBLE PRECISION NOT NULL,
	status       TEXT NOT NULL DEFAULT 'open',
	scenario_tag TEXT,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS explain_audit_log (
	id              TEXT PRIMARY KEY,
	timestamp       TIMESTAMPTZ NOT NULL,
	kpi_name        TEXT NOT NULL,
	date            TEXT NOT NULL,
	sql_used        TEXT NOT NULL,
	slices_returned TEXT NOT NULL,
	user_feedback   JSONB,
	request_id      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS automations (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	trigger_kpi    TEXT NOT NULL,
	condition_json JSONB NOT NULL,
	webhook_url    TEXT NOT NULL,
	enabled        BOOLEAN NOT NULL DEFAULT true,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS automation_runs (
	id            TEXT PRIMARY KEY,
	automation_id TEXT NOT NULL,
	name          TEXT NOT NULL,
	kpi_name      TEXT NOT NULL,
	date          TEXT NOT NULL,
	payload_json  JSONB NOT NULL,
	status        TEXT NOT NULL,
	response_code INTEGER,
	response_body TEXT,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fact_ops_daily_date ON fact_ops_daily(date);
CREATE INDEX IF NOT EXISTS idx_anomalies_status ON anomalies(status);
CREATE INDEX IF NOT EXISTS idx_anomalies_kpi_date ON anomalies(kpi_name, date);
CREATE INDEX IF NOT EXISTS idx_automations_trigger ON automations(trigger_kpi, enabled);
CREATE INDEX IF NOT EXISTS idx_automation_runs_created ON automation_runs(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- Observations ---

func (s *PostgresStore) Observations(ctx context.Context, kpiName, from, to string) ([]model.KpiObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kpi_name, date, value, target_good, target_bad, owner_role
		 FROM fact_kpi_daily
		 WHERE kpi_name = $1 AND date BETWEEN $2 AND $3
		 ORDER BY date`,
		kpiName, from, to,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: observations %s", kpiName)
	}
	defer rows.Close()

	var out []model.KpiObservation
	for rows.Next() {
		var o model.KpiObservation
		if err := rows.Scan(&o.KpiName, &o.Date, &o.Value, &o.TargetGood, &o.TargetBad, &o.OwnerRole); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: observations iterate")
}

func (s *PostgresStore) Observation(ctx context.Context, kpiName, date string) (*model.KpiObservation, error) {
	var o model.KpiObservation
	err := s.pool.QueryRow(ctx,
		`SELECT kpi_name, date, value, target_good, target_bad, owner_role
		 FROM fact_kpi_daily WHERE kpi_name = $1 AND date = $2`,
		kpiName, date,
	).Scan(&o.KpiName, &o.Date, &o.Value, &o.TargetGood, &o.TargetBad, &o.OwnerRole)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan observation")
	}
	return &o, nil
}

func (s *PostgresStore) KpiNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT kpi_name FROM fact_kpi_daily ORDER BY kpi_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: kpi names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "postgres: kpi names iterate")
}

func (s *PostgresStore) KpiDefined(ctx context.Context, kpiName string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM fact_kpi_daily WHERE kpi_name = $1 LIMIT 1`, kpiName,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: kpi defined %s", kpiName)
	}
	return true, nil
}

func (s *PostgresStore) KpiSummaries(ctx context.Context, from, to string) ([]model.KpiSummary, error) {
	rows, err := s.pool.Query(ctx,
		`WITH scoped AS (
			SELECT * FROM fact_kpi_daily WHERE date BETWEEN $1 AND $2
		),
		latest AS (
			SELECT kpi_name, MAX(date) AS max_date FROM scoped GROUP BY kpi_name
		)
		SELECT s.kpi_name, AVG(s.value), MIN(s.value), MAX(s.value),
		       lv.value, lv.date, s.target_good, s.target_bad, s.owner_role
		FROM scoped s
		JOIN latest l ON l.kpi_name = s.kpi_name
		JOIN fact_kpi_daily lv ON lv.kpi_name = l.kpi_name AND lv.date = l.max_date
		GROUP BY s.kpi_name, lv.value, lv.date, s.target_good, s.target_bad, s.owner_role
		ORDER BY s.kpi_name`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: kpi summaries")
	}
	defer rows.Close()

	var out []model.KpiSummary
	for rows.Next() {
		var ks model.KpiSummary
		if err := rows.Scan(&ks.KpiName, &ks.AvgValue, &ks.MinValue, &ks.MaxValue,
			&ks.LatestValue, &ks.LatestDate, &ks.TargetGood, &ks.TargetBad, &ks.OwnerRole); err != nil {
			return nil, eris.Wrap(err, "postgres: scan kpi summary")
		}
		out = append(out, ks)
	}
	return out, eris.Wrap(rows.Err(), "postgres: kpi summaries iterate")
}

func (s *PostgresStore) ScenarioTag(ctx context.Context, kpiName, date string) (string, error) {
	var tag string
	err := s.pool.QueryRow(ctx,
		`SELECT scenario_tag FROM scenario_registry WHERE kpi_name = $1 AND scenario_date = $2 LIMIT 1`,
		kpiName, date,
	).Scan(&tag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "postgres: scenario tag %s %s", kpiName, date)
	}
	return tag, nil
}

// --- Dimensional slicing ---

func (s *PostgresStore) SegmentDay(ctx context.Context, q DimensionQuery, date string) ([]model.SegmentAggregate, string, error) {
	query := segmentDaySQL(q, postgresPlaceholder)
	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, query, eris.Wrapf(err, "postgres: segment day %s", q.Dimension)
	}
	defer rows.Close()

	var out []model.SegmentAggregate
	for rows.Next() {
		var a model.SegmentAggregate
		if err := rows.Scan(&a.Segment, &a.Numerator, &a.Denominator); err != nil {
			return nil, query, eris.Wrap(err, "postgres: scan segment aggregate")
		}
		out = append(out, a)
	}
	return out, query, eris.Wrap(rows.Err(), "postgres: segment day iterate")
}

func (s *PostgresStore) SegmentRange(ctx context.Context, q DimensionQuery, from, to string) ([]model.SegmentDayAggregate, string, error) {
	query := segmentRangeSQL(q, postgresPlaceholder)
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, query, eris.Wrapf(err, "postgres: segment range %s", q.Dimension)
	}
	defer rows.Close()

	var out []model.SegmentDayAggregate
	for rows.Next() {
		var a model.SegmentDayAggregate
		if err := rows.Scan(&a.Date, &a.Segment, &a.Numerator, &a.Denominator); err != nil {
			return nil, query, eris.Wrap(err, "postgres: scan segment day aggregate")
		}
		out = append(out, a)
	}
	return out, query, eris.Wrap(rows.Err(), "postgres: segment range iterate")
}

// --- Anomaly ledger ---

func (s *PostgresStore) InsertAnomalies(ctx context.Context, anomalies []model.Anomaly) error {
	for i := range anomalies {
		a := &anomalies[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO anomalies (id, kpi_name, date, value, baseline, score, status, scenario_tag, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ID, a.KpiName, a.Date, a.Value, a.Baseline, a.Score,
			string(a.Status), nullEmpty(a.ScenarioTag), a.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert anomaly %s %s", a.KpiName, a.Date)
		}
	}
	return nil
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]model.Anomaly, error) {
	query := `SELECT id, kpi_name, date, value, baseline, score, status, scenario_tag, created_at
	          FROM anomalies WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = ` + postgresPlaceholder(len(args))
	}
	if filter.KpiName != "" {
		args = append(args, filter.KpiName)
		query += ` AND kpi_name = ` + postgresPlaceholder(len(args))
	}
	query += ` ORDER BY created_at DESC, score DESC, date DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	query += ` LIMIT ` + postgresPlaceholder(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list anomalies")
	}
	defer rows.Close()

	var out []model.Anomaly
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list anomalies iterate")
}

func (s *PostgresStore) UpdateAnomalyStatus(ctx context.Context, id string, status model.AnomalyStatus) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM anomalies WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NotFoundf("anomaly %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: get anomaly status %s", id)
	}
	if !model.AnomalyStatus(current).ValidTransition(status) {
		return model.InvalidParameterf("anomaly %s: cannot transition %s -> %s", id, current, status)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE anomalies SET status = $1 WHERE id = $2 AND status = $3`,
		string(status), id, current,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update anomaly status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("anomaly %s", id)
	}
	return nil
}

// --- Explain audit ledger ---

func (s *PostgresStore) InsertAuditEntry(ctx context.Context, entry *model.ExplainAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO explain_audit_log (id, timestamp, kpi_name, date, sql_used, slices_returned, user_feedback, request_id)
		 VALUES ($1, $2, $3, $4, $5, $6, NULL, $7)`,
		entry.ID, entry.Timestamp, entry.KpiName, entry.Date,
		entry.SQLUsed, entry.SlicesReturned, entry.RequestID,
	)
	return eris.Wrapf(err, "postgres: insert audit entry %s %s", entry.KpiName, entry.Date)
}

func (s *PostgresStore) GetAuditEntry(ctx context.Context, id string) (*model.ExplainAuditEntry, error) {
	var e model.ExplainAuditEntry
	var feedback sql.NullString
	err := s.pool.QueryRow(ctx,
		`SELECT id, timestamp, kpi_name, date, sql_used, slices_returned, user_feedback, request_id
		 FROM explain_audit_log WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Timestamp, &e.KpiName, &e.Date, &e.SQLUsed, &e.SlicesReturned, &feedback, &e.RequestID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NotFoundf("audit entry %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan audit entry")
	}
	if feedback.Valid {
		e.UserFeedback = &model.AuditFeedback{}
		if err := json.Unmarshal([]byte(feedback.String), e.UserFeedback); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal audit feedback")
		}
	}
	return &e, nil
}

func (s *PostgresStore) AttachFeedback(ctx context.Context, auditID string, fb model.AuditFeedback) error {
	fbJSON, err := json.Marshal(fb)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit feedback")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE explain_audit_log SET user_feedback = $1 WHERE id = $2`,
		string(fbJSON), auditID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: attach feedback %s", auditID)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("audit entry %s", auditID)
	}
	return nil
}

// --- Automation rule registry ---

func (s *PostgresStore) RegisterRule(ctx context.Context, rule *model.AutomationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	condJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal rule condition")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO automations (id, name, trigger_kpi, condition_json, webhook_url, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rule.ID, rule.Name, rule.TriggerKpi, string(condJSON),
		rule.WebhookURL, rule.Enabled, rule.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(model.ErrConflict, "automation rule %q already exists", rule.Name)
		}
		return eris.Wrapf(err, "postgres: insert rule %s", rule.Name)
	}
	return nil
}

func (s *PostgresStore) ListRules(ctx context.Context, enabledOnly bool) ([]model.AutomationRule, error) {
	query := `SELECT id, name, trigger_kpi, condition_json, webhook_url, enabled, created_at
	          FROM automations`
	if enabledOnly {
		query += ` WHERE enabled = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rules")
	}
	defer rows.Close()
	return collectPgxRules(rows)
}

func (s *PostgresStore) RulesForKpi(ctx context.Context, kpiName string) ([]model.AutomationRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, trigger_kpi, condition_json, webhook_url, enabled, created_at
		 FROM automations WHERE enabled = true AND trigger_kpi = $1
		 ORDER BY created_at DESC`,
		kpiName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: rules for kpi %s", kpiName)
	}
	defer rows.Close()
	return collectPgxRules(rows)
}

func (s *PostgresStore) SetRuleEnabled(ctx context.Context, name string, enabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE automations SET enabled = $1 WHERE name = $2`,
		enabled, name,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set rule enabled %s", name)
	}
	if tag.RowsAffected() == 0 {
		return model.NotFoundf("automation rule %s", name)
	}
	return nil
}

// --- Automation run ledger ---

func (s *PostgresStore) InsertRun(ctx context.Context, run *model.AutomationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	var code any
	if run.ResponseCode != nil {
		code = *run.ResponseCode
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO automation_runs (id, automation_id, name, kpi_name, date, payload_json, status, response_code, response_body, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.AutomationID, run.Name, run.KpiName, run.Date,
		string(run.Payload), string(run.Status), code, run.ResponseBody, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s %s", run.Name, run.Date)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.AutomationRun, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, automation_id, name, kpi_name, date, payload_json, status, response_code, response_body, created_at
		 FROM automation_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.AutomationRun
	for rows.Next() {
		var r model.AutomationRun
		var payload string
		var code sql.NullInt64
		var body sql.NullString
		if err := rows.Scan(&r.ID, &r.AutomationID, &r.Name, &r.KpiName, &r.Date,
			&payload, &r.Status, &code, &body, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Payload = json.RawMessage(payload)
		if code.Valid {
			c := int(code.Int64)
			r.ResponseCode = &c
		}
		if body.Valid {
			r.ResponseBody = body.String
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// --- Seeding ---

func (s *PostgresStore) InsertObservation(ctx context.Context, obs model.KpiObservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fact_kpi_daily (kpi_name, date, value, target_good, target_bad, owner_role)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		obs.KpiName, obs.Date, obs.Value, obs.TargetGood, obs.TargetBad, obs.OwnerRole,
	)
	return eris.Wrapf(err, "postgres: insert observation %s %s", obs.KpiName, obs.Date)
}

func (s *PostgresStore) InsertFactRow(ctx context.Context, row model.OpsFactRow) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fact_ops_daily (date, site, customer_tier, category, incident_type, carrier, product_family, sla_sensitive, sla_breached, jobs, incidents)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.Date, row.Site, row.CustomerTier, row.Category, row.IncidentType,
		row.Carrier, row.ProductFamily, row.SlaSensitive, row.SlaBreached, row.Jobs, row.Incidents,
	)
	return eris.Wrapf(err, "postgres: insert fact row %s", row.Date)
}

func (s *PostgresStore) InsertScenario(ctx context.Context, sc model.Scenario) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scenario_registry (scenario_tag, scenario_date, kpi_name, expected_driver_dimension, expected_driver_value)
		 VALUES ($1, $2, $3, $4, $5)`,
		sc.Tag, sc.Date, sc.KpiName, sc.ExpectedDriverDimension, sc.ExpectedDriverValue,
	)
	return eris.Wrapf(err, "postgres: insert scenario %s", sc.Tag)
}

func collectPgxRules(rows pgx.Rows) ([]model.AutomationRule, error) {
	var out []model.AutomationRule
	for rows.Next() {
		var r model.AutomationRule
		var condJSON string
		if err := rows.Scan(&r.ID, &r.Name, &r.TriggerKpi, &condJSON, &r.WebhookURL, &r.Enabled, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "scan rule")
		}
		if err := json.Unmarshal([]byte(condJSON), &r.Condition); err != nil {
			return nil, eris.Wrapf(err, "unmarshal rule condition %s", r.Name)
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "list rules iterate")
}
