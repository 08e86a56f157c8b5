// Package detector flags anomalous KPI observations using a robust
// z-score against a trailing window median. Flagged days are appended
// to the anomaly ledger; re-running a window appends fresh rows rather
// than mutating earlier detections.
package detector

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

const (
	// DefaultWindowDays is the trailing baseline window size.
	DefaultWindowDays = 14
	// DefaultThreshold is the |score| cutoff for flagging.
	DefaultThreshold = 3.0

	// maxDetectConcurrency bounds the per-KPI fan-out in DetectAll.
	maxDetectConcurrency = 4

	// minDate sorts before any real YYYY-MM-DD value, so a range query
	// starting here returns the full history.
	minDate = "0001-01-01"
)

// Params configures one detection pass.
type Params struct {
	KpiName    string  // empty means every KPI in the mart
	From       string  // inclusive, YYYY-MM-DD
	To         string  // inclusive, YYYY-MM-DD
	WindowDays int     // 0 means DefaultWindowDays
	Threshold  float64 // 0 means DefaultThreshold
	DryRun     bool    // compute but do not persist
}

func (p *Params) normalize() error {
	if p.WindowDays == 0 {
		p.WindowDays = DefaultWindowDays
	}
	if p.Threshold == 0 {
		p.Threshold = DefaultThreshold
	}
	if p.WindowDays < 1 {
		return model.InvalidParameterf("window_days %d must be positive", p.WindowDays)
	}
	if p.Threshold <= 0 {
		return model.InvalidParameterf("threshold %g must be positive", p.Threshold)
	}
	from, err := model.ParseDate(p.From)
	if err != nil {
		return err
	}
	to, err := model.ParseDate(p.To)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return model.InvalidParameterf("date range %s..%s is inverted", p.From, p.To)
	}
	return nil
}

// Result summarizes one detection pass over a single KPI.
type Result struct {
	KpiName   string          `json:"kpi_name"`
	Evaluated int             `json:"evaluated"`
	Skipped   int             `json:"skipped"`
	Anomalies []model.Anomaly `json:"anomalies"`
}

// Detector scores KPI observations and writes the anomaly ledger.
type Detector struct {
	store store.Store
	log   *zap.Logger
}

func New(st store.Store) *Detector {
	return &Detector{store: st, log: zap.L().Named("detector")}
}

// Detect runs one pass for a single KPI across the date range. Days
// with fewer than WindowDays prior observations are skipped, not
// flagged and not errored.
func (d *Detector) Detect(ctx context.Context, params Params) (*Result, error) {
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if params.KpiName == "" {
		return nil, model.InvalidParameterf("kpi_name is required")
	}
	defined, err := d.store.KpiDefined(ctx, params.KpiName)
	if err != nil {
		return nil, err
	}
	if !defined {
		return nil, model.NotFoundf("kpi %s", params.KpiName)
	}

	history, err := d.store.Observations(ctx, params.KpiName, minDate, params.To)
	if err != nil {
		return nil, err
	}

	res := &Result{KpiName: params.KpiName}
	now := time.Now().UTC()

	for i, obs := range history {
		if obs.Date < params.From || obs.Date > params.To {
			continue
		}
		res.Evaluated++

		if i < params.WindowDays {
			res.Skipped++
			continue
		}
		window := make([]float64, 0, params.WindowDays)
		for _, prior := range history[i-params.WindowDays : i] {
			window = append(window, prior.Value)
		}

		med := median(window)
		score := robustScore(obs.Value, med, mad(window, med))
		if math.Abs(score) <= params.Threshold {
			continue
		}

		tag, err := d.store.ScenarioTag(ctx, obs.KpiName, obs.Date)
		if err != nil {
			return nil, err
		}
		res.Anomalies = append(res.Anomalies, model.Anomaly{
			KpiName:     obs.KpiName,
			Date:        obs.Date,
			Value:       obs.Value,
			Baseline:    med,
			Score:       score,
			Status:      model.AnomalyStatusOpen,
			ScenarioTag: tag,
			CreatedAt:   now,
		})
		d.log.Info("anomaly flagged",
			zap.String("kpi", obs.KpiName),
			zap.String("date", obs.Date),
			zap.Float64("value", obs.Value),
			zap.Float64("baseline", med),
			zap.Float64("score", score),
			zap.String("scenario", tag),
		)
	}

	if !params.DryRun && len(res.Anomalies) > 0 {
		if err := d.store.InsertAnomalies(ctx, res.Anomalies); err != nil {
			return nil, eris.Wrap(err, "detector: persist anomalies")
		}
	}
	d.log.Debug("detection pass complete",
		zap.String("kpi", params.KpiName),
		zap.Int("evaluated", res.Evaluated),
		zap.Int("skipped", res.Skipped),
		zap.Int("flagged", len(res.Anomalies)),
	)
	return res, nil
}

// DetectAll fans Detect out across every KPI in the mart (or just
// params.KpiName when set). KPIs are scored concurrently; each KPI's
// ledger insert stays ordered within its own pass.
func (d *Detector) DetectAll(ctx context.Context, params Params) ([]*Result, error) {
	if err := params.normalize(); err != nil {
		return nil, err
	}
	if params.KpiName != "" {
		res, err := d.Detect(ctx, params)
		if err != nil {
			return nil, err
		}
		return []*Result{res}, nil
	}

	names, err := d.store.KpiNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []*Result{}, nil
	}

	results := make([]*Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDetectConcurrency)
	for i, name := range names {
		g.Go(func() error {
			p := params
			p.KpiName = name
			res, err := d.Detect(gctx, p)
			if err != nil {
				return eris.Wrapf(err, "detector: kpi %s", name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
