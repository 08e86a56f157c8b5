package detector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedSeries(t *testing.T, s store.Store, kpi, start string, values []float64) []string {
	t.Helper()
	ctx := context.Background()
	day, err := model.ParseDate(start)
	require.NoError(t, err)
	dates := make([]string, len(values))
	for i, v := range values {
		dates[i] = day.AddDate(0, 0, i).Format(model.DateLayout)
		require.NoError(t, s.InsertObservation(ctx, model.KpiObservation{
			KpiName: kpi,
			Date:    dates[i],
			Value:   v,
		}))
	}
	return dates
}

func TestMedianAndMAD(t *testing.T) {
	vals := []float64{2.0, 2.2, 1.8, 2.1, 2.0}
	m := median(vals)
	assert.Equal(t, 2.0, m)
	assert.InDelta(t, 0.1, mad(vals, m), 1e-12)

	even := []float64{1.0, 2.0, 3.0, 4.0}
	assert.Equal(t, 2.5, median(even))
}

func TestRobustScoreFlatBaseline(t *testing.T) {
	// MAD of a flat window is zero; the floor keeps the score finite
	// and enormous, so any spike over a flat series gets flagged.
	score := robustScore(9.5, 2.0, 0)
	assert.Greater(t, score, 1e6)
	assert.Less(t, robustScore(-9.5, 2.0, 0), -1e6)
}

func TestDetectFlagsSpike(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	values := []float64{2.0, 2.1, 1.9, 2.0, 2.2, 2.1, 2.0, 1.8, 2.0, 2.1, 2.0, 1.9, 2.1, 2.0, 9.5}
	dates := seedSeries(t, s, "sla_breach_rate_pct", "2025-06-01", values)
	spikeDate := dates[len(dates)-1]
	require.NoError(t, s.InsertScenario(ctx, model.Scenario{
		Tag: "carrier_meltdown", Date: spikeDate, KpiName: "sla_breach_rate_pct",
	}))

	res, err := New(s).Detect(ctx, Params{
		KpiName: "sla_breach_rate_pct",
		From:    dates[0],
		To:      spikeDate,
	})
	require.NoError(t, err)

	// first 14 days lack a full window
	assert.Equal(t, len(values), res.Evaluated)
	assert.Equal(t, DefaultWindowDays, res.Skipped)
	require.Len(t, res.Anomalies, 1)

	a := res.Anomalies[0]
	assert.Equal(t, spikeDate, a.Date)
	assert.Equal(t, 9.5, a.Value)
	assert.Equal(t, 2.0, a.Baseline)
	assert.Greater(t, a.Score, DefaultThreshold)
	assert.Equal(t, model.AnomalyStatusOpen, a.Status)
	assert.Equal(t, "carrier_meltdown", a.ScenarioTag)

	// persisted to the ledger
	listed, err := s.ListAnomalies(ctx, store.AnomalyFilter{KpiName: "sla_breach_rate_pct"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, spikeDate, listed[0].Date)
}

func TestDetectQuietSeries(t *testing.T) {
	s := newTestStore(t)
	values := make([]float64, 20)
	for i := range values {
		values[i] = 2.0 + 0.1*float64(i%3)
	}
	dates := seedSeries(t, s, "exception_rate_per_100_jobs", "2025-06-01", values)

	res, err := New(s).Detect(context.Background(), Params{
		KpiName: "exception_rate_per_100_jobs",
		From:    dates[0],
		To:      dates[len(dates)-1],
	})
	require.NoError(t, err)
	assert.Empty(t, res.Anomalies)
}

func TestDetectNegativeSpikeIsSigned(t *testing.T) {
	s := newTestStore(t)
	values := []float64{5.0, 5.1, 4.9, 5.0, 5.2, 5.1, 5.0, 4.8, 5.0, 5.1, 5.0, 4.9, 5.1, 5.0, 0.2}
	dates := seedSeries(t, s, "pickups_completed", "2025-06-01", values)

	res, err := New(s).Detect(context.Background(), Params{
		KpiName: "pickups_completed",
		From:    dates[len(dates)-1],
		To:      dates[len(dates)-1],
	})
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)
	assert.Less(t, res.Anomalies[0].Score, 0.0)
}

func TestDetectDryRunDoesNotPersist(t *testing.T) {
	s := newTestStore(t)
	values := []float64{2.0, 2.1, 1.9, 2.0, 2.2, 2.1, 2.0, 1.8, 2.0, 2.1, 2.0, 1.9, 2.1, 2.0, 9.5}
	dates := seedSeries(t, s, "sla_breach_rate_pct", "2025-06-01", values)

	res, err := New(s).Detect(context.Background(), Params{
		KpiName: "sla_breach_rate_pct",
		From:    dates[0],
		To:      dates[len(dates)-1],
		DryRun:  true,
	})
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)

	listed, err := s.ListAnomalies(context.Background(), store.AnomalyFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestDetectRerunAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	values := []float64{2.0, 2.1, 1.9, 2.0, 2.2, 2.1, 2.0, 1.8, 2.0, 2.1, 2.0, 1.9, 2.1, 2.0, 9.5}
	dates := seedSeries(t, s, "sla_breach_rate_pct", "2025-06-01", values)

	params := Params{KpiName: "sla_breach_rate_pct", From: dates[0], To: dates[len(dates)-1]}
	d := New(s)
	_, err := d.Detect(ctx, params)
	require.NoError(t, err)
	_, err = d.Detect(ctx, params)
	require.NoError(t, err)

	listed, err := s.ListAnomalies(ctx, store.AnomalyFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestDetectValidation(t *testing.T) {
	s := newTestStore(t)
	d := New(s)
	ctx := context.Background()

	_, err := d.Detect(ctx, Params{KpiName: "x", From: "June 1", To: "2025-06-30"})
	assert.True(t, eris.Is(err, model.ErrInvalidParameter))

	_, err = d.Detect(ctx, Params{KpiName: "x", From: "2025-06-30", To: "2025-06-01"})
	assert.True(t, eris.Is(err, model.ErrInvalidParameter))

	_, err = d.Detect(ctx, Params{KpiName: "x", From: "2025-06-01", To: "2025-06-30", Threshold: -1})
	assert.True(t, eris.Is(err, model.ErrInvalidParameter))

	_, err = d.Detect(ctx, Params{KpiName: "no_such_kpi", From: "2025-06-01", To: "2025-06-30"})
	assert.True(t, eris.Is(err, model.ErrNotFound))

	_, err = d.Detect(ctx, Params{From: "2025-06-01", To: "2025-06-30"})
	assert.True(t, eris.Is(err, model.ErrInvalidParameter))
}

func TestDetectAllFansOut(t *testing.T) {
	s := newTestStore(t)
	base := []float64{2.0, 2.1, 1.9, 2.0, 2.2, 2.1, 2.0, 1.8, 2.0, 2.1, 2.0, 1.9, 2.1, 2.0, 9.5}
	seedSeries(t, s, "sla_breach_rate_pct", "2025-06-01", base)
	seedSeries(t, s, "exception_rate_per_100_jobs", "2025-06-01", base)

	results, err := New(s).DetectAll(context.Background(), Params{From: "2025-06-01", To: "2025-06-15"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Len(t, r.Anomalies, 1, "kpi %s", r.KpiName)
	}
}

func TestDetectAllEmptyMart(t *testing.T) {
	s := newTestStore(t)

	results, err := New(s).DetectAll(context.Background(), Params{From: "2025-06-01", To: "2025-06-15"})
	require.NoError(t, err)
	assert.Empty(t, results)
}
