// Package automation evaluates registered rules against detected
// anomalies and dispatches webhook notifications, ledgering every
// attempt. Dispatch is best-effort: a failed webhook is recorded and
// the evaluation moves on.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ops-copilot/internal/explain"
	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

const (
	// DefaultWebhookTimeout bounds one dispatch round trip.
	DefaultWebhookTimeout = 7 * time.Second
	// DefaultDispatchRate paces outbound webhooks per second.
	DefaultDispatchRate = 5

	// responseBodyLimit truncates ledgered webhook responses.
	responseBodyLimit = 500

	// segmentFilterTopN widens the driver set consulted by segment
	// filters beyond the reporting default, so a filter can match a
	// real driver that ranks below the headline slices.
	segmentFilterTopN = 15
)

// dimensionAliases maps the shorthand dimension names accepted in
// segment filters onto the registry's canonical names.
var dimensionAliases = map[string]string{
	"product":  "product_family",
	"customer": "customer_tier",
}

// Options tunes one evaluation pass.
type Options struct {
	DryRun bool // match and ledger, but do not dispatch
}

// Evaluator matches anomalies against enabled rules and dispatches
// webhooks.
type Evaluator struct {
	store     store.Store
	explainer *explain.Explainer
	client    *http.Client
	limiter   *rate.Limiter
	log       *zap.Logger
}

// New builds an Evaluator. explainer may be nil; segment-filter rules
// then never match.
func New(st store.Store, explainer *explain.Explainer, timeout time.Duration, dispatchRate float64) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if dispatchRate <= 0 {
		dispatchRate = DefaultDispatchRate
	}
	return &Evaluator{
		store:     st,
		explainer: explainer,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(dispatchRate), int(math.Ceil(dispatchRate))),
		log:       zap.L().Named("automation"),
	}
}

// RegisterRule validates and stores a new rule. The trigger KPI must
// have observations in the mart.
func (e *Evaluator) RegisterRule(ctx context.Context, rule *model.AutomationRule) error {
	if rule.Name == "" {
		return model.InvalidParameterf("rule name is required")
	}
	u, err := url.Parse(rule.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.InvalidParameterf("webhook_url %q must be an absolute http(s) URL", rule.WebhookURL)
	}
	if err := rule.Condition.Validate(); err != nil {
		return err
	}
	defined, err := e.store.KpiDefined(ctx, rule.TriggerKpi)
	if err != nil {
		return err
	}
	if !defined {
		return model.NotFoundf("trigger kpi %s", rule.TriggerKpi)
	}
	return e.store.RegisterRule(ctx, rule)
}

// Evaluate matches each anomaly against the enabled rules on its KPI
// and dispatches a webhook per match. Every attempted dispatch gets one
// ledger row; in dry-run mode matches are ledgered as skipped. Rules
// that do not match leave no trace.
func (e *Evaluator) Evaluate(ctx context.Context, anomalies []model.Anomaly, opts Options) ([]model.AutomationRun, error) {
	var runs []model.AutomationRun
	for _, anomaly := range anomalies {
		rules, err := e.store.RulesForKpi(ctx, anomaly.KpiName)
		if err != nil {
			return runs, err
		}
		if len(rules) == 0 {
			continue
		}

		// One lazy explanation per anomaly, shared across its
		// segment-filter rules.
		var drivers []model.DriverSlice
		var explained bool

		for _, rule := range rules {
			matched, err := e.matches(ctx, rule, anomaly, &drivers, &explained)
			if err != nil {
				return runs, err
			}
			if !matched {
				continue
			}
			run := e.dispatch(ctx, rule, anomaly, opts.DryRun)
			if err := e.store.InsertRun(ctx, run); err != nil {
				return runs, err
			}
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

func (e *Evaluator) matches(ctx context.Context, rule model.AutomationRule, anomaly model.Anomaly, drivers *[]model.DriverSlice, explained *bool) (bool, error) {
	cond := rule.Condition
	if cond.Threshold != nil && !cond.Threshold.Matches(anomaly.Value) {
		return false, nil
	}
	if cond.AnomalyScore != nil && !cond.AnomalyScore.Matches(math.Abs(anomaly.Score)) {
		return false, nil
	}
	if len(cond.SegmentFilters) == 0 {
		return true, nil
	}

	if e.explainer == nil {
		e.log.Warn("segment-filter rule skipped, no explainer configured",
			zap.String("rule", rule.Name))
		return false, nil
	}
	if !*explained {
		res, err := e.explainer.Explain(ctx, anomaly.KpiName, anomaly.Date, explain.Options{TopN: segmentFilterTopN})
		if err != nil {
			if eris.Is(err, model.ErrNotFound) || eris.Is(err, model.ErrNoData) {
				// KPI not sliceable: filters cannot be checked.
				e.log.Warn("segment-filter rule unmatched, kpi not explainable",
					zap.String("rule", rule.Name),
					zap.String("kpi", anomaly.KpiName),
					zap.Error(err))
				return false, nil
			}
			return false, err
		}
		*drivers = res.RankedDrivers
		*explained = true
	}

	for dim, value := range cond.SegmentFilters {
		dim = strings.ToLower(dim)
		if canonical, ok := dimensionAliases[dim]; ok {
			dim = canonical
		}
		if !driverPresent(*drivers, dim, value) {
			return false, nil
		}
	}
	return true, nil
}

// driverPresent reports whether a driver slice matches the filter,
// comparing dimension and segment case-insensitively.
func driverPresent(drivers []model.DriverSlice, dimension, value string) bool {
	for _, d := range drivers {
		if strings.EqualFold(d.DimensionName, dimension) && strings.EqualFold(d.DimensionValue, value) {
			return true
		}
	}
	return false
}

// dispatch POSTs the trigger payload and returns the ledger row for
// the attempt. Failures are captured on the row, never returned.
func (e *Evaluator) dispatch(ctx context.Context, rule model.AutomationRule, anomaly model.Anomaly, dryRun bool) *model.AutomationRun {
	payload := model.WebhookPayload{
		AutomationName: rule.Name,
		KpiName:        anomaly.KpiName,
		Date:           anomaly.Date,
		Value:          anomaly.Value,
		Baseline:       anomaly.Baseline,
		AnomalyScore:   anomaly.Score,
		ScenarioTag:    anomaly.ScenarioTag,
		Condition:      rule.Condition,
		TriggeredAt:    time.Now().UTC(),
	}
	body, _ := json.Marshal(payload)

	run := &model.AutomationRun{
		AutomationID: rule.ID,
		Name:         rule.Name,
		KpiName:      anomaly.KpiName,
		Date:         anomaly.Date,
		Payload:      body,
		CreatedAt:    time.Now().UTC(),
	}
	if dryRun {
		run.Status = model.RunStatusSkipped
		run.ResponseBody = "dry run: dispatch suppressed"
		return run
	}

	if err := e.limiter.Wait(ctx); err != nil {
		run.Status = model.RunStatusFailed
		run.ResponseBody = truncate(err.Error())
		return run
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rule.WebhookURL, bytes.NewReader(body))
	if err != nil {
		run.Status = model.RunStatusFailed
		run.ResponseBody = truncate(err.Error())
		return run
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		run.Status = model.RunStatusFailed
		run.ResponseBody = truncate(err.Error())
		e.log.Warn("webhook dispatch failed",
			zap.String("rule", rule.Name),
			zap.String("url", rule.WebhookURL),
			zap.Error(err))
		return run
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit+1))
	code := resp.StatusCode
	run.ResponseCode = &code
	run.ResponseBody = truncate(string(respBody))
	if code >= 200 && code < 300 {
		run.Status = model.RunStatusSuccess
	} else {
		run.Status = model.RunStatusFailed
		e.log.Warn("webhook returned non-2xx",
			zap.String("rule", rule.Name),
			zap.Int("status", code))
	}
	e.log.Info("automation dispatched",
		zap.String("rule", rule.Name),
		zap.String("kpi", anomaly.KpiName),
		zap.String("date", anomaly.Date),
		zap.String("status", string(run.Status)),
	)
	return run
}

func truncate(s string) string {
	if len(s) > responseBodyLimit {
		return s[:responseBodyLimit]
	}
	return s
}
