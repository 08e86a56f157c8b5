// Package model defines the domain types shared across the detector,
// explainer, and automation evaluator, plus the error taxonomy.
package model

import "time"

// DateLayout is the canonical day-grain date format used everywhere a
// date crosses a boundary (store keys, payloads, CLI flags).
const DateLayout = "2006-01-02"

// KpiObservation is one immutable per-day KPI value. Exactly one
// observation exists per (kpi_name, date) pair.
type KpiObservation struct {
	KpiName    string  `json:"kpi_name"`
	Date       string  `json:"date"`
	Value      float64 `json:"value"`
	TargetGood float64 `json:"target_good"`
	TargetBad  float64 `json:"target_bad"`
	OwnerRole  string  `json:"owner_role"`
}

// KpiSnapshot summarizes a KPI around a target date: the day's value and
// baseline aggregates over the preceding window.
type KpiSnapshot struct {
	KpiName              string  `json:"kpi_name"`
	Date                 string  `json:"date"`
	Value                float64 `json:"value"`
	BaselineMean         float64 `json:"baseline_mean"`
	BaselineMin          float64 `json:"baseline_min"`
	BaselineMax          float64 `json:"baseline_max"`
	BaselineObservations int     `json:"baseline_observations"`
}

// ParseDate validates a YYYY-MM-DD date string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, InvalidParameterf("date %q must be YYYY-MM-DD", s)
	}
	return t, nil
}

// AddDays shifts a YYYY-MM-DD date string by n days. The input must have
// been validated with ParseDate.
func AddDays(date string, n int) string {
	t, _ := time.Parse(DateLayout, date)
	return t.AddDate(0, 0, n).Format(DateLayout)
}
