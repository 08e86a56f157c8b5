package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ops-copilot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS fact_kpi_daily (
	kpi_name    TEXT NOT NULL,
	date        TEXT NOT NULL,
	value       REAL NOT NULL,
	target_good REAL NOT NULL DEFAULT 0,
	target_bad  REAL NOT NULL DEFAULT 0,
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
	value        REAL NOT NULL,
	baseline     REAL NOT NULL,
	score        REAL NOT NULL,
	status       TEXT NOT NULL DEFAULT 'open',
	scenario_tag TEXT,
	created_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS explain_audit_log (
	id              TEXT PRIMARY KEY,
	timestamp       DATETIME NOT NULL,
	kpi_name        TEXT NOT NULL,
	date            TEXT NOT NULL,
	sql_used        TEXT NOT NULL,
	slices_returned TEXT NOT NULL,
	user_feedback   TEXT,
	request_id      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS automations (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	trigger_kpi    TEXT NOT NULL,
	condition_json TEXT NOT NULL,
	webhook_url    TEXT NOT NULL,
	enabled        INTEGER NOT NULL DEFAULT 1,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS automation_runs (
	id            TEXT PRIMARY KEY,
	automation_id TEXT NOT NULL,
	name          TEXT NOT NULL,
	kpi_name      TEXT NOT NULL,
	date          TEXT NOT NULL,
	payload_json  TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_code INTEGER,
	response_body TEXT,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fact_ops_daily_date ON fact_ops_daily(date);
CREATE INDEX IF NOT EXISTS idx_anomalies_status ON anomalies(status);
CREATE INDEX IF NOT EXISTS idx_anomalies_kpi_date ON anomalies(kpi_name, date);
CREATE INDEX IF NOT EXISTS idx_automations_trigger ON automations(trigger_kpi, enabled);
CREATE INDEX IF NOT EXISTS idx_automation_runs_created ON automation_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Observations ---

func (s *SQLiteStore) Observations(ctx context.Context, kpiName, from, to string) ([]model.KpiObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kpi_name, date, value, target_good, target_bad, owner_role
		 FROM fact_kpi_daily
		 WHERE kpi_name = ? AND date BETWEEN ? AND ?
		 ORDER BY date`,
		kpiName, from, to,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: observations %s", kpiName)
	}
	defer rows.Close()

	var out []model.KpiObservation
	for rows.Next() {
		var o model.KpiObservation
		if err := rows.Scan(&o.KpiName, &o.Date, &o.Value, &o.TargetGood, &o.TargetBad, &o.OwnerRole); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: observations iterate")
}

func (s *SQLiteStore) Observation(ctx context.Context, kpiName, date string) (*model.KpiObservation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT kpi_name, date, value, target_good, target_bad, owner_role
		 FROM fact_kpi_daily WHERE kpi_name = ? AND date = ?`,
		kpiName, date,
	)
	var o model.KpiObservation
	err := row.Scan(&o.KpiName, &o.Date, &o.Value, &o.TargetGood, &o.TargetBad, &o.OwnerRole)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan observation")
	}
	return &o, nil
}

func (s *SQLiteStore) KpiNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT kpi_name FROM fact_kpi_daily ORDER BY kpi_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: kpi names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: kpi names iterate")
}

func (s *SQLiteStore) KpiDefined(ctx context.Context, kpiName string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM fact_kpi_daily WHERE kpi_name = ? LIMIT 1`, kpiName,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: kpi defined %s", kpiName)
	}
	return true, nil
}

func (s *SQLiteStore) KpiSummaries(ctx context.Context, from, to string) ([]model.KpiSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`WITH scoped AS (
			SELECT * FROM fact_kpi_daily WHERE date BETWEEN ? AND ?
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
		return nil, eris.Wrap(err, "sqlite: kpi summaries")
	}
	defer rows.Close()

	var out []model.KpiSummary
	for rows.Next() {
		var ks model.KpiSummary
		if err := rows.Scan(&ks.KpiName, &ks.AvgValue, &ks.MinValue, &ks.MaxValue,
			&ks.LatestValue, &ks.LatestDate, &ks.TargetGood, &ks.TargetBad, &ks.OwnerRole); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kpi summary")
		}
		out = append(out, ks)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: kpi summaries iterate")
}

func (s *SQLiteStore) ScenarioTag(ctx context.Context, kpiName, date string) (string, error) {
	var tag string
	err := s.db.QueryRowContext(ctx,
		`SELECT scenario_tag FROM scenario_registry WHERE kpi_name = ? AND scenario_date = ? LIMIT 1`,
		kpiName, date,
	).Scan(&tag)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: scenario tag %s %s", kpiName, date)
	}
	return tag, nil
}

// --- Dimensional slicing ---

func (s *SQLiteStore) SegmentDay(ctx context.Context, q DimensionQuery, date string) ([]model.SegmentAggregate, string, error) {
	query := segmentDaySQL(q, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx, query, date)
	if err != nil {
		return nil, query, eris.Wrapf(err, "sqlite: segment day %s", q.Dimension)
	}
	defer rows.Close()

	var out []model.SegmentAggregate
	for rows.Next() {
		var a model.SegmentAggregate
		if err := rows.Scan(&a.Segment, &a.Numerator, &a.Denominator); err != nil {
			return nil, query, eris.Wrap(err, "sqlite: scan segment aggregate")
		}
		out = append(out, a)
	}
	return out, query, eris.Wrap(rows.Err(), "sqlite: segment day iterate")
}

func (s *SQLiteStore) SegmentRange(ctx context.Context, q DimensionQuery, from, to string) ([]model.SegmentDayAggregate, string, error) {
	query := segmentRangeSQL(q, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, query, eris.Wrapf(err, "sqlite: segment range %s", q.Dimension)
	}
	defer rows.Close()

	var out []model.SegmentDayAggregate
	for rows.Next() {
		var a model.SegmentDayAggregate
		if err := rows.Scan(&a.Date, &a.Segment, &a.Numerator, &a.Denominator); err != nil {
			return nil, query, eris.Wrap(err, "sqlite: scan segment day aggregate")
		}
		out = append(out, a)
	}
	return out, query, eris.Wrap(rows.Err(), "sqlite: segment range iterate")
}

// --- Anomaly ledger ---

func (s *SQLiteStore) InsertAnomalies(ctx context.Context, anomalies []model.Anomaly) error {
	for i := range anomalies {
		a := &anomalies[i]
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO anomalies (id, kpi_name, date, value, baseline, score, status, scenario_tag, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.KpiName, a.Date, a.Value, a.Baseline, a.Score,
			string(a.Status), nullEmpty(a.ScenarioTag), a.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert anomaly %s %s", a.KpiName, a.Date)
		}
	}
	return nil
}

func (s *SQLiteStore) ListAnomalies(ctx context.Context, filter AnomalyFilter) ([]model.Anomaly, error) {
	query := `SELECT id, kpi_name, date, value, baseline, score, status, scenario_tag, created_at
	          FROM anomalies WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.KpiName != "" {
		query += ` AND kpi_name = ?`
		args = append(args, filter.KpiName)
	}
	query += ` ORDER BY created_at DESC, score DESC, date DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list anomalies")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list anomalies iterate")
}

func (s *SQLiteStore) UpdateAnomalyStatus(ctx context.Context, id string, status model.AnomalyStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM anomalies WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return model.NotFoundf("anomaly %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get anomaly status %s", id)
	}
	if !model.AnomalyStatus(current).ValidTransition(status) {
		return model.InvalidParameterf("anomaly %s: cannot transition %s -> %s", id, current, status)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE anomalies SET status = ? WHERE id = ? AND status = ?`,
		string(status), id, current,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update anomaly status %s", id)
	}
	return checkRowsAffected(res, "anomaly", id)
}

// --- Explain audit ledger ---

func (s *SQLiteStore) InsertAuditEntry(ctx context.Context, entry *model.ExplainAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO explain_audit_log (id, timestamp, kpi_name, date, sql_used, slices_returned, user_feedback, request_id)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?)`,
		entry.ID, entry.Timestamp, entry.KpiName, entry.Date,
		entry.SQLUsed, entry.SlicesReturned, entry.RequestID,
	)
	return eris.Wrapf(err, "sqlite: insert audit entry %s %s", entry.KpiName, entry.Date)
}

func (s *SQLiteStore) GetAuditEntry(ctx context.Context, id string) (*model.ExplainAuditEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, kpi_name, date, sql_used, slices_returned, user_feedback, request_id
		 FROM explain_audit_log WHERE id = ?`,
		id,
	)
	var e model.ExplainAuditEntry
	var feedback sql.NullString
	err := row.Scan(&e.ID, &e.Timestamp, &e.KpiName, &e.Date, &e.SQLUsed, &e.SlicesReturned, &feedback, &e.RequestID)
	if err == sql.ErrNoRows {
		return nil, model.NotFoundf("audit entry %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan audit entry")
	}
	if feedback.Valid {
		e.UserFeedback = &model.AuditFeedback{}
		if err := json.Unmarshal([]byte(feedback.String), e.UserFeedback); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal audit feedback")
		}
	}
	return &e, nil
}

func (s *SQLiteStore) AttachFeedback(ctx context.Context, auditID string, fb model.AuditFeedback) error {
	fbJSON, err := json.Marshal(fb)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit feedback")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE explain_audit_log SET user_feedback = ? WHERE id = ?`,
		string(fbJSON), auditID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: attach feedback %s", auditID)
	}
	return checkRowsAffected(res, "audit entry", auditID)
}

// --- Automation rule registry ---

func (s *SQLiteStore) RegisterRule(ctx context.Context, rule *model.AutomationRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	condJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal rule condition")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO automations (id, name, trigger_kpi, condition_json, webhook_url, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.TriggerKpi, string(condJSON),
		rule.WebhookURL, boolToInt(rule.Enabled), rule.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return eris.Wrapf(model.ErrConflict, "automation rule %q already exists", rule.Name)
		}
		return eris.Wrapf(err, "sqlite: insert rule %s", rule.Name)
	}
	return nil
}

func (s *SQLiteStore) ListRules(ctx context.Context, enabledOnly bool) ([]model.AutomationRule, error) {
	query := `SELECT id, name, trigger_kpi, condition_json, webhook_url, enabled, created_at
	          FROM automations`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rules")
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *SQLiteStore) RulesForKpi(ctx context.Context, kpiName string) ([]model.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, trigger_kpi, condition_json, webhook_url, enabled, created_at
		 FROM automations WHERE enabled = 1 AND trigger_kpi = ?
		 ORDER BY created_at DESC`,
		kpiName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: rules for kpi %s", kpiName)
	}
	defer rows.Close()
	return collectRules(rows)
}

func (s *SQLiteStore) SetRuleEnabled(ctx context.Context, name string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automations SET enabled = ? WHERE name = ?`,
		boolToInt(enabled), name,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set rule enabled %s", name)
	}
	return checkRowsAffected(res, "automation rule", name)
}

// --- Automation run ledger ---

func (s *SQLiteStore) InsertRun(ctx context.Context, run *model.AutomationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	var code any
	if run.ResponseCode != nil {
		code = *run.ResponseCode
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO automation_runs (id, automation_id, name, kpi_name, date, payload_json, status, response_code, response_body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.AutomationID, run.Name, run.KpiName, run.Date,
		string(run.Payload), string(run.Status), code, run.ResponseBody, run.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s %s", run.Name, run.Date)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.AutomationRun, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, automation_id, name, kpi_name, date, payload_json, status, response_code, response_body, created_at
		 FROM automation_runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
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
			return nil, eris.Wrap(err, "sqlite: scan run")
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
	return out, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- Seeding ---

func (s *SQLiteStore) InsertObservation(ctx context.Context, obs model.KpiObservation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fact_kpi_daily (kpi_name, date, value, target_good, target_bad, owner_role)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		obs.KpiName, obs.Date, obs.Value, obs.TargetGood, obs.TargetBad, obs.OwnerRole,
	)
	return eris.Wrapf(err, "sqlite: insert observation %s %s", obs.KpiName, obs.Date)
}

func (s *SQLiteStore) InsertFactRow(ctx context.Context, row model.OpsFactRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fact_ops_daily (date, site, customer_tier, category, incident_type, carrier, product_family, sla_sensitive, sla_breached, jobs, incidents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.Date, row.Site, row.CustomerTier, row.Category, row.IncidentType,
		row.Carrier, row.ProductFamily, row.SlaSensitive, row.SlaBreached, row.Jobs, row.Incidents,
	)
	return eris.Wrapf(err, "sqlite: insert fact row %s", row.Date)
}

func (s *SQLiteStore) InsertScenario(ctx context.Context, sc model.Scenario) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scenario_registry (scenario_tag, scenario_date, kpi_name, expected_driver_dimension, expected_driver_value)
		 VALUES (?, ?, ?, ?, ?)`,
		sc.Tag, sc.Date, sc.KpiName, sc.ExpectedDriverDimension, sc.ExpectedDriverValue,
	)
	return eris.Wrapf(err, "sqlite: insert scenario %s", sc.Tag)
}

// --- helpers ---

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return model.NotFoundf("%s %s", entity, id)
	}
	return nil
}

func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAnomaly(row scannable) (*model.Anomaly, error) {
	var a model.Anomaly
	var tag sql.NullString
	err := row.Scan(&a.ID, &a.KpiName, &a.Date, &a.Value, &a.Baseline, &a.Score,
		&a.Status, &tag, &a.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "scan anomaly")
	}
	if tag.Valid {
		a.ScenarioTag = tag.String
	}
	return &a, nil
}

func collectRules(rows *sql.Rows) ([]model.AutomationRule, error) {
	var out []model.AutomationRule
	for rows.Next() {
		var r model.AutomationRule
		var condJSON string
		var enabled int
		if err := rows.Scan(&r.ID, &r.Name, &r.TriggerKpi, &condJSON, &r.WebhookURL, &enabled, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "scan rule")
		}
		if err := json.Unmarshal([]byte(condJSON), &r.Condition); err != nil {
			return nil, eris.Wrapf(err, "unmarshal rule condition %s", r.Name)
		}
		r.Enabled = enabled == 1
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "list rules iterate")
}
