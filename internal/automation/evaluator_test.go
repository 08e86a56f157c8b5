package automation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ops-copilot/internal/explain"
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

func seedKpi(t *testing.T, s store.Store, kpi string) {
	t.Helper()
	require.NoError(t, s.InsertObservation(context.Background(), model.KpiObservation{
		KpiName: kpi, Date: "2025-06-14", Value: 15.0,
	}))
}

func registerRule(t *testing.T, s store.Store, name, kpi, webhookURL string, cond model.RuleCondition) *model.AutomationRule {
	t.Helper()
	rule := &model.AutomationRule{
		Name: name, TriggerKpi: kpi, Condition: cond, WebhookURL: webhookURL, Enabled: true,
	}
	require.NoError(t, s.RegisterRule(context.Background(), rule))
	return rule
}

func testAnomaly(kpi string, value, score float64) model.Anomaly {
	return model.Anomaly{
		ID: "anom-1", KpiName: kpi, Date: "2025-06-14",
		Value: value, Baseline: 2.1, Score: score,
		Status: model.AnomalyStatusOpen, ScenarioTag: "carrier_meltdown",
		CreatedAt: time.Now().UTC(),
	}
}

func TestEvaluateThresholdMatchDispatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var received model.WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	registerRule(t, s, "sla-breach-page", "sla_breach_rate_pct", srv.URL, model.RuleCondition{
		Threshold: &model.ThresholdPredicate{Operator: ">", Value: 12},
	})

	runs, err := New(s, nil, 0, 0).Evaluate(ctx, []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 15.0, 5.2),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	require.NotNil(t, run.ResponseCode)
	assert.Equal(t, http.StatusOK, *run.ResponseCode)
	assert.Equal(t, `{"ok":true}`, run.ResponseBody)

	assert.Equal(t, "sla-breach-page", received.AutomationName)
	assert.Equal(t, "sla_breach_rate_pct", received.KpiName)
	assert.Equal(t, 15.0, received.Value)
	assert.Equal(t, "carrier_meltdown", received.ScenarioTag)

	ledgered, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ledgered, 1)
	assert.Equal(t, model.RunStatusSuccess, ledgered[0].Status)
}

func TestEvaluateNoMatchLeavesNoTrace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("webhook must not be called")
	}))
	defer srv.Close()

	registerRule(t, s, "sla-breach-page", "sla_breach_rate_pct", srv.URL, model.RuleCondition{
		Threshold: &model.ThresholdPredicate{Operator: ">", Value: 20},
	})

	runs, err := New(s, nil, 0, 0).Evaluate(ctx, []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 15.0, 5.2),
	}, Options{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	ledgered, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ledgered)
}

func TestEvaluateScorePredicateUsesMagnitude(t *testing.T) {
	s := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registerRule(t, s, "big-move", "pickups_completed", srv.URL, model.RuleCondition{
		AnomalyScore: &model.ThresholdPredicate{Operator: ">=", Value: 4},
	})

	// a deep negative spike still matches
	runs, err := New(s, nil, 0, 0).Evaluate(context.Background(), []model.Anomaly{
		testAnomaly("pickups_completed", 0.2, -6.3),
	}, Options{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestEvaluateEmptyConditionMatchesAll(t *testing.T) {
	s := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	registerRule(t, s, "any-anomaly", "sla_breach_rate_pct", srv.URL, model.RuleCondition{})

	runs, err := New(s, nil, 0, 0).Evaluate(context.Background(), []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 3.0, 3.1),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusSuccess, runs[0].Status)
}

func TestEvaluateFailedDispatchIsLedgeredAndContinues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	longBody := strings.Repeat("x", 900)
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(longBody))
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	registerRule(t, s, "a-failing-rule", "sla_breach_rate_pct", failing.URL, model.RuleCondition{})
	registerRule(t, s, "b-healthy-rule", "sla_breach_rate_pct", healthy.URL, model.RuleCondition{})

	runs, err := New(s, nil, 0, 0).Evaluate(ctx, []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 15.0, 5.2),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byName := map[string]model.AutomationRun{}
	for _, r := range runs {
		byName[r.Name] = r
	}
	failed := byName["a-failing-rule"]
	assert.Equal(t, model.RunStatusFailed, failed.Status)
	require.NotNil(t, failed.ResponseCode)
	assert.Equal(t, http.StatusBadGateway, *failed.ResponseCode)
	assert.Len(t, failed.ResponseBody, 500)

	assert.Equal(t, model.RunStatusSuccess, byName["b-healthy-rule"].Status)
}

func TestEvaluateTransportErrorIsFailedRun(t *testing.T) {
	s := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	registerRule(t, s, "dead-endpoint", "sla_breach_rate_pct", srv.URL, model.RuleCondition{})

	runs, err := New(s, nil, 0, 0).Evaluate(context.Background(), []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 15.0, 5.2),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Nil(t, runs[0].ResponseCode)
	assert.NotEmpty(t, runs[0].ResponseBody)
}

func TestEvaluateDryRunSkips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("dry run must not dispatch")
	}))
	defer srv.Close()

	registerRule(t, s, "sla-breach-page", "sla_breach_rate_pct", srv.URL, model.RuleCondition{})

	runs, err := New(s, nil, 0, 0).Evaluate(ctx, []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 15.0, 5.2),
	}, Options{DryRun: true})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusSkipped, runs[0].Status)
	assert.Nil(t, runs[0].ResponseCode)

	ledgered, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ledgered, 1)
	assert.Equal(t, model.RunStatusSkipped, ledgered[0].Status)
}

// seedSliceableKpi loads enough mart data that explaining
// sla_breach_rate_pct on 2025-06-14 yields a DFW/parcel-driven result.
func seedSliceableKpi(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 14; i++ {
		date := model.AddDays("2025-05-31", i)
		require.NoError(t, s.InsertObservation(ctx, model.KpiObservation{
			KpiName: "sla_breach_rate_pct", Date: date, Value: 5.0,
		}))
		require.NoError(t, s.InsertFactRow(ctx, model.OpsFactRow{
			Date: date, Site: "DFW", CustomerTier: "enterprise", Category: "freight",
			Carrier: "RegionalExp", ProductFamily: "parcel",
			SlaSensitive: 20, SlaBreached: 1, Jobs: 20,
		}))
	}
	require.NoError(t, s.InsertObservation(ctx, model.KpiObservation{
		KpiName: "sla_breach_rate_pct", Date: "2025-06-14", Value: 45.0,
	}))
	require.NoError(t, s.InsertFactRow(ctx, model.OpsFactRow{
		Date: "2025-06-14", Site: "DFW", CustomerTier: "enterprise", Category: "freight",
		Carrier: "RegionalExp", ProductFamily: "parcel",
		SlaSensitive: 20, SlaBreached: 9, Jobs: 20,
	}))
}

func TestEvaluateSegmentFilterWithAlias(t *testing.T) {
	s := newTestStore(t)
	seedSliceableKpi(t, s)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// "product" aliases product_family
	registerRule(t, s, "parcel-breach", "sla_breach_rate_pct", srv.URL, model.RuleCondition{
		SegmentFilters: map[string]string{"product": "parcel"},
	})
	registerRule(t, s, "pallet-breach", "sla_breach_rate_pct", srv.URL, model.RuleCondition{
		SegmentFilters: map[string]string{"product": "pallet"},
	})

	explainer := explain.New(s, nil, nil)
	runs, err := New(s, explainer, 0, 0).Evaluate(context.Background(), []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 45.0, 6.0),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "parcel-breach", runs[0].Name)
}

func TestEvaluateSegmentFilterIsCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	seedSliceableKpi(t, s)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// The fixture's dominant driver is site=DFW.
	registerRule(t, s, "dfw-breach", "sla_breach_rate_pct", srv.URL, model.RuleCondition{
		SegmentFilters: map[string]string{"Site": "dfw"},
	})

	explainer := explain.New(s, nil, nil)
	runs, err := New(s, explainer, 0, 0).Evaluate(context.Background(), []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 45.0, 6.0),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "dfw-breach", runs[0].Name)
}

func TestEvaluateSegmentFilterSeesDeepRankedDrivers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two fact rows per day, disjoint across every dimension, so each
	// dimension splits into a 0.9-share and a 0.1-share slice. The
	// five 0.1-share slices rank 6th-10th, below the headline top-5.
	seedDay := func(date string, dfwBreached, atlBreached int) {
		require.NoError(t, s.InsertObservation(ctx, model.KpiObservation{
			KpiName: "sla_breach_rate_pct", Date: date,
			Value: float64(dfwBreached+atlBreached) / 40.0 * 100,
		}))
		require.NoError(t, s.InsertFactRow(ctx, model.OpsFactRow{
			Date: date, Site: "DFW", CustomerTier: "enterprise", Category: "freight",
			Carrier: "RegionalExp", ProductFamily: "parcel",
			SlaSensitive: 20, SlaBreached: dfwBreached, Jobs: 20,
		}))
		require.NoError(t, s.InsertFactRow(ctx, model.OpsFactRow{
			Date: date, Site: "ATL", CustomerTier: "smb", Category: "retail",
			Carrier: "FastFreight", ProductFamily: "pallet",
			SlaSensitive: 20, SlaBreached: atlBreached, Jobs: 20,
		}))
	}
	for i := 0; i < 14; i++ {
		seedDay(model.AddDays("2025-05-31", i), 1, 1)
	}
	seedDay("2025-06-14", 10, 2)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registerRule(t, s, "atl-breach", "sla_breach_rate_pct", srv.URL, model.RuleCondition{
		SegmentFilters: map[string]string{"site": "ATL"},
	})

	explainer := explain.New(s, nil, nil)
	runs, err := New(s, explainer, 0, 0).Evaluate(context.Background(), []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 30.0, 6.0),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "atl-breach", runs[0].Name)
}

func TestEvaluateSegmentFilterWithoutExplainer(t *testing.T) {
	s := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("must not dispatch without explainer")
	}))
	defer srv.Close()

	registerRule(t, s, "parcel-breach", "sla_breach_rate_pct", srv.URL, model.RuleCondition{
		SegmentFilters: map[string]string{"product": "parcel"},
	})

	runs, err := New(s, nil, 0, 0).Evaluate(context.Background(), []model.Anomaly{
		testAnomaly("sla_breach_rate_pct", 45.0, 6.0),
	}, Options{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRegisterRuleValidation(t *testing.T) {
	s := newTestStore(t)
	seedKpi(t, s, "sla_breach_rate_pct")
	ev := New(s, nil, 0, 0)
	ctx := context.Background()

	err := ev.RegisterRule(ctx, &model.AutomationRule{
		TriggerKpi: "sla_breach_rate_pct", WebhookURL: "https://hooks.example.com/x",
	})
	assert.True(t, eris.Is(err, model.ErrInvalidParameter), "missing name")

	err = ev.RegisterRule(ctx, &model.AutomationRule{
		Name: "r", TriggerKpi: "sla_breach_rate_pct", WebhookURL: "not-a-url",
	})
	assert.True(t, eris.Is(err, model.ErrInvalidParameter), "bad url")

	err = ev.RegisterRule(ctx, &model.AutomationRule{
		Name: "r", TriggerKpi: "sla_breach_rate_pct", WebhookURL: "https://hooks.example.com/x",
		Condition: model.RuleCondition{Threshold: &model.ThresholdPredicate{Operator: "~", Value: 1}},
	})
	assert.True(t, eris.Is(err, model.ErrInvalidParameter), "bad operator")

	err = ev.RegisterRule(ctx, &model.AutomationRule{
		Name: "r", TriggerKpi: "no_such_kpi", WebhookURL: "https://hooks.example.com/x",
	})
	assert.True(t, eris.Is(err, model.ErrNotFound), "unknown trigger kpi")

	good := &model.AutomationRule{
		Name: "r", TriggerKpi: "sla_breach_rate_pct", WebhookURL: "https://hooks.example.com/x", Enabled: true,
	}
	require.NoError(t, ev.RegisterRule(ctx, good))

	err = ev.RegisterRule(ctx, &model.AutomationRule{
		Name: "r", TriggerKpi: "sla_breach_rate_pct", WebhookURL: "https://hooks.example.com/y",
	})
	assert.True(t, eris.Is(err, model.ErrConflict), "duplicate name")
}
