// Package explain attributes a KPI movement on one day to the
// dimension-value cuts that drove it, with a verbatim evidence trail
// persisted to the audit ledger before the result is returned.
package explain

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ops-copilot/internal/model"
	"github.com/sells-group/ops-copilot/internal/store"
)

const (
	// DefaultTopN is the number of ranked drivers returned.
	DefaultTopN = 5
	// DefaultWindowDays is the baseline window preceding the target day.
	DefaultWindowDays = 14

	attributionOverlapNote = "Driver cuts come from overlapping dimensions; one underlying event can appear in several slices, so contribution shares are not additive across dimensions."
)

// Options tunes one explain call. Zero values take the defaults.
type Options struct {
	WindowDays    int
	TopN          int
	WithNarrative bool
}

// Explainer computes ranked drivers for a KPI movement.
type Explainer struct {
	store    store.Store
	registry Registry
	narrator Narrator
	log      *zap.Logger
}

// New builds an Explainer. narrator may be nil, which disables
// narrative generation regardless of Options.WithNarrative.
func New(st store.Store, reg Registry, narrator Narrator) *Explainer {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Explainer{store: st, registry: reg, narrator: narrator, log: zap.L().Named("explain")}
}

// Explain attributes the KPI's movement on date to its dimension cuts.
// The audit entry is persisted before the result is returned, so every
// explanation a caller ever sees has a stored evidence trail.
func (e *Explainer) Explain(ctx context.Context, kpiName, date string, opts Options) (*model.ExplainResult, error) {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if _, err := model.ParseDate(date); err != nil {
		return nil, err
	}
	mapping, ok := e.registry[kpiName]
	if !ok {
		return nil, model.NotFoundf("kpi %s has no dimension mappings", kpiName)
	}

	obs, err := e.store.Observation(ctx, kpiName, date)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, model.NoDataf("kpi %s has no observation on %s", kpiName, date)
	}

	baselineFrom := model.AddDays(date, -opts.WindowDays)
	baselineTo := model.AddDays(date, -1)

	snapshot, err := e.snapshot(ctx, obs, baselineFrom, baselineTo)
	if err != nil {
		return nil, err
	}

	var allSlices []model.DriverSlice
	evidence := make([]model.EvidenceQuery, 0, len(mapping.Dimensions))
	for _, q := range mapping.Dimensions {
		targetRows, targetSQL, err := e.store.SegmentDay(ctx, q, date)
		if err != nil {
			return nil, err
		}
		baselineRows, baselineSQL, err := e.store.SegmentRange(ctx, q, baselineFrom, baselineTo)
		if err != nil {
			return nil, err
		}
		evidence = append(evidence, model.EvidenceQuery{
			Dimension:      q.Dimension,
			TargetSQL:      targetSQL,
			TargetParams:   []string{date},
			BaselineSQL:    baselineSQL,
			BaselineParams: []string{baselineFrom, baselineTo},
			TargetRows:     targetRows,
			BaselineRows:   baselineRows,
		})
		allSlices = append(allSlices, dimensionSlices(q.Dimension, mapping.Scale, targetRows, baselineRows)...)
	}

	ranked := rankSlices(allSlices, opts.TopN)

	result := &model.ExplainResult{
		RequestID:          uuid.New().String(),
		KpiName:            kpiName,
		Date:               date,
		CurrentValue:       obs.Value,
		BaselineValue:      snapshot.BaselineMean,
		Delta:              obs.Value - snapshot.BaselineMean,
		Snapshot:           *snapshot,
		RankedDrivers:      ranked,
		RecommendedActions: recommendActions(ranked, obs.Value-snapshot.BaselineMean),
		Evidence:           evidence,
	}
	if countDimensions(ranked) >= 2 {
		result.AttributionNote = attributionOverlapNote
	}
	if opts.WithNarrative && e.narrator != nil {
		narrative, err := e.narrator.Narrate(ctx, result)
		if err != nil {
			// Narrative is a garnish. Log and move on.
			e.log.Warn("narrative generation failed", zap.String("kpi", kpiName), zap.Error(err))
		} else {
			result.Narrative = narrative
		}
	}

	auditID, err := e.persistAudit(ctx, result)
	if err != nil {
		return nil, err
	}
	result.AuditID = auditID

	e.log.Info("explained kpi movement",
		zap.String("kpi", kpiName),
		zap.String("date", date),
		zap.Float64("delta", result.Delta),
		zap.Int("drivers", len(ranked)),
		zap.String("audit_id", auditID),
	)
	return result, nil
}

func (e *Explainer) snapshot(ctx context.Context, obs *model.KpiObservation, from, to string) (*model.KpiSnapshot, error) {
	history, err := e.store.Observations(ctx, obs.KpiName, from, to)
	if err != nil {
		return nil, err
	}
	snap := &model.KpiSnapshot{
		KpiName:              obs.KpiName,
		Date:                 obs.Date,
		Value:                obs.Value,
		BaselineObservations: len(history),
	}
	if len(history) == 0 {
		return snap, nil
	}
	snap.BaselineMin = history[0].Value
	snap.BaselineMax = history[0].Value
	var sum float64
	for _, h := range history {
		sum += h.Value
		if h.Value < snap.BaselineMin {
			snap.BaselineMin = h.Value
		}
		if h.Value > snap.BaselineMax {
			snap.BaselineMax = h.Value
		}
	}
	snap.BaselineMean = sum / float64(len(history))
	return snap, nil
}

func (e *Explainer) persistAudit(ctx context.Context, result *model.ExplainResult) (string, error) {
	evidenceJSON, err := json.Marshal(result.Evidence)
	if err != nil {
		return "", eris.Wrap(err, "explain: marshal evidence")
	}
	slicesJSON, err := json.Marshal(result.RankedDrivers)
	if err != nil {
		return "", eris.Wrap(err, "explain: marshal ranked drivers")
	}
	entry := &model.ExplainAuditEntry{
		Timestamp:      time.Now().UTC(),
		KpiName:        result.KpiName,
		Date:           result.Date,
		SQLUsed:        string(evidenceJSON),
		SlicesReturned: string(slicesJSON),
		RequestID:      result.RequestID,
	}
	if err := e.store.InsertAuditEntry(ctx, entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// dimensionSlices computes one DriverSlice per segment seen on the
// target day or in the baseline. Baseline aggregates are averaged per
// segment across the days the segment appears.
func dimensionSlices(dimension string, scale float64, target []model.SegmentAggregate, baseline []model.SegmentDayAggregate) []model.DriverSlice {
	if scale == 0 {
		scale = 1
	}

	type baseAgg struct {
		numSum, denomSum, rateSum float64
		days                      int
	}
	base := make(map[string]*baseAgg)
	for _, row := range baseline {
		agg, ok := base[row.Segment]
		if !ok {
			agg = &baseAgg{}
			base[row.Segment] = agg
		}
		agg.numSum += row.Numerator
		agg.denomSum += row.Denominator
		if row.Denominator != 0 {
			agg.rateSum += row.Numerator / row.Denominator * scale
		}
		agg.days++
	}

	after := make(map[string]model.SegmentAggregate, len(target))
	segments := make([]string, 0, len(target)+len(base))
	for _, row := range target {
		after[row.Segment] = row
		segments = append(segments, row.Segment)
	}
	for seg := range base {
		if _, ok := after[seg]; !ok {
			segments = append(segments, seg)
		}
	}
	sort.Strings(segments)

	slices := make([]model.DriverSlice, 0, len(segments))
	var totalNumeratorDelta float64
	for _, seg := range segments {
		t := after[seg]
		stats := model.SupportingStats{
			AnomalyNumerator:   t.Numerator,
			AnomalyDenominator: t.Denominator,
		}
		if t.Denominator != 0 {
			stats.AnomalyRate = t.Numerator / t.Denominator * scale
		}
		if agg, ok := base[seg]; ok && agg.days > 0 {
			stats.BaselineNumerator = agg.numSum / float64(agg.days)
			stats.BaselineDenominator = agg.denomSum / float64(agg.days)
			stats.BaselineRate = agg.rateSum / float64(agg.days)
		}

		delta := stats.AnomalyRate - stats.BaselineRate
		slice := model.DriverSlice{
			DimensionName:  dimension,
			DimensionValue: seg,
			MetricBefore:   stats.BaselineRate,
			MetricAfter:    stats.AnomalyRate,
			Delta:          delta,
			Stats:          stats,
		}
		if stats.BaselineRate != 0 {
			pct := delta / stats.BaselineRate * 100
			slice.DeltaPct = &pct
		}
		slices = append(slices, slice)
		totalNumeratorDelta += stats.AnomalyNumerator - stats.BaselineNumerator
	}

	if totalNumeratorDelta != 0 {
		for i := range slices {
			nd := slices[i].Stats.AnomalyNumerator - slices[i].Stats.BaselineNumerator
			slices[i].ContributionShare = nd / totalNumeratorDelta
		}
	}
	return slices
}

// rankSlices orders all dimensions' slices together by absolute
// contribution share, breaking ties on dimension value, and keeps the
// top n.
func rankSlices(slices []model.DriverSlice, n int) []model.DriverSlice {
	ranked := make([]model.DriverSlice, len(slices))
	copy(ranked, slices)
	sort.SliceStable(ranked, func(i, j int) bool {
		ai, aj := abs(ranked[i].ContributionShare), abs(ranked[j].ContributionShare)
		if ai != aj {
			return ai > aj
		}
		return ranked[i].DimensionValue < ranked[j].DimensionValue
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// RankFromEvidence recomputes ranked drivers from a stored audit
// entry's evidence, so a reviewer can verify an explanation without
// touching the mart.
func RankFromEvidence(entry *model.ExplainAuditEntry, mapping KpiMapping, topN int) ([]model.DriverSlice, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}
	var evidence []model.EvidenceQuery
	if err := json.Unmarshal([]byte(entry.SQLUsed), &evidence); err != nil {
		return nil, eris.Wrapf(err, "explain: parse evidence for audit %s", entry.ID)
	}
	var all []model.DriverSlice
	for _, ev := range evidence {
		all = append(all, dimensionSlices(ev.Dimension, mapping.Scale, ev.TargetRows, ev.BaselineRows)...)
	}
	return rankSlices(all, topN), nil
}

func countDimensions(slices []model.DriverSlice) int {
	seen := make(map[string]struct{}, len(slices))
	for _, s := range slices {
		seen[s.DimensionName] = struct{}{}
	}
	return len(seen)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
