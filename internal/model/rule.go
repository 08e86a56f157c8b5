package model

import (
	"encoding/json"
	"time"
)

// comparison operators accepted in a threshold predicate.
var validOperators = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true,
}

// ThresholdPredicate is one comparison against a numeric field. Three
// JSON shapes are accepted for compatibility with registered rules:
// {"operator": ">", "value": 12}, the operator-keyed form {">": 12}, and
// a bare number (operator defaults to ">").
type ThresholdPredicate struct {
	Operator string  `json:"operator"`
	Value    float64 `json:"value"`
}

// Matches applies the predicate to v.
func (p ThresholdPredicate) Matches(v float64) bool {
	switch p.Operator {
	case ">=":
		return v >= p.Value
	case "<":
		return v < p.Value
	case "<=":
		return v <= p.Value
	case "==":
		return v == p.Value
	default:
		return v > p.Value
	}
}

// UnmarshalJSON accepts the three predicate shapes described on the type.
func (p *ThresholdPredicate) UnmarshalJSON(data []byte) error {
	var bare float64
	if err := json.Unmarshal(data, &bare); err == nil {
		p.Operator = ">"
		p.Value = bare
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return InvalidParameterf("threshold predicate must be a number or object")
	}

	if rawOp, ok := obj["operator"]; ok {
		if err := json.Unmarshal(rawOp, &p.Operator); err != nil {
			return InvalidParameterf("threshold predicate operator must be a string")
		}
		if rawVal, ok := obj["value"]; ok {
			if err := json.Unmarshal(rawVal, &p.Value); err != nil {
				return InvalidParameterf("threshold predicate value must be a number")
			}
		}
		return nil
	}

	// Operator-keyed form: exactly one {op: value} pair.
	for op, rawVal := range obj {
		if err := json.Unmarshal(rawVal, &p.Value); err != nil {
			return InvalidParameterf("threshold predicate value for %q must be a number", op)
		}
		p.Operator = op
		return nil
	}
	return InvalidParameterf("threshold predicate object is empty")
}

// RuleCondition is the structured predicate a rule evaluates against an
// anomaly. Every present field must hold (logical AND); an absent field
// is not checked.
type RuleCondition struct {
	Threshold      *ThresholdPredicate `json:"threshold,omitempty"`
	AnomalyScore   *ThresholdPredicate `json:"anomaly_score,omitempty"`
	SegmentFilters map[string]string   `json:"segment_filters,omitempty"`
}

// Validate rejects predicates with unknown operators and empty segment
// filter values. A fully empty condition is valid: the rule then matches
// every anomaly on its trigger KPI.
func (c RuleCondition) Validate() error {
	for name, p := range map[string]*ThresholdPredicate{
		"threshold":     c.Threshold,
		"anomaly_score": c.AnomalyScore,
	} {
		if p == nil {
			continue
		}
		if !validOperators[p.Operator] {
			return InvalidParameterf("condition %s: unknown operator %q", name, p.Operator)
		}
	}
	for dim, val := range c.SegmentFilters {
		if dim == "" || val == "" {
			return InvalidParameterf("condition segment_filters: dimension and value must be non-empty")
		}
	}
	return nil
}

// AutomationRule is a registered trigger: when an anomaly on TriggerKpi
// satisfies Condition, a notification is POSTed to WebhookURL. Rules are
// mutable only via explicit register/update and evaluated only while
// enabled.
type AutomationRule struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	TriggerKpi string        `json:"trigger_kpi"`
	Condition  RuleCondition `json:"condition"`
	WebhookURL string        `json:"webhook_url"`
	Enabled    bool          `json:"enabled"`
	CreatedAt  time.Time     `json:"created_at"`
}
