package model

import (
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdPredicateUnmarshalShapes(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		operator string
		value    float64
	}{
		{"structured", `{"operator": ">=", "value": 12.5}`, ">=", 12.5},
		{"operator keyed", `{">": 12}`, ">", 12},
		{"operator keyed lte", `{"<=": 0.5}`, "<=", 0.5},
		{"bare number", `12`, ">", 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p ThresholdPredicate
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &p))
			assert.Equal(t, tc.operator, p.Operator)
			assert.Equal(t, tc.value, p.Value)
		})
	}
}

func TestThresholdPredicateUnmarshalRejects(t *testing.T) {
	for _, raw := range []string{`"12"`, `{}`, `{"operator": 5}`, `{">": "high"}`} {
		var p ThresholdPredicate
		err := json.Unmarshal([]byte(raw), &p)
		assert.Error(t, err, "input %s", raw)
	}
}

func TestThresholdPredicateMatches(t *testing.T) {
	assert.True(t, ThresholdPredicate{Operator: ">", Value: 12}.Matches(12.1))
	assert.False(t, ThresholdPredicate{Operator: ">", Value: 12}.Matches(12))
	assert.True(t, ThresholdPredicate{Operator: ">=", Value: 12}.Matches(12))
	assert.True(t, ThresholdPredicate{Operator: "<", Value: 1}.Matches(0.5))
	assert.True(t, ThresholdPredicate{Operator: "<=", Value: 1}.Matches(1))
	assert.True(t, ThresholdPredicate{Operator: "==", Value: 3}.Matches(3))
	// empty operator defaults to >
	assert.True(t, ThresholdPredicate{Value: 2}.Matches(3))
}

func TestRuleConditionValidate(t *testing.T) {
	valid := RuleCondition{
		Threshold:      &ThresholdPredicate{Operator: ">", Value: 12},
		AnomalyScore:   &ThresholdPredicate{Operator: ">=", Value: 3},
		SegmentFilters: map[string]string{"carrier": "NorthFreight"},
	}
	require.NoError(t, valid.Validate())

	require.NoError(t, RuleCondition{}.Validate(), "empty condition matches everything")

	err := RuleCondition{Threshold: &ThresholdPredicate{Operator: "!=", Value: 1}}.Validate()
	assert.True(t, eris.Is(err, ErrInvalidParameter))

	err = RuleCondition{SegmentFilters: map[string]string{"carrier": ""}}.Validate()
	assert.True(t, eris.Is(err, ErrInvalidParameter))
}

func TestRuleConditionRoundTrip(t *testing.T) {
	raw := `{"threshold": {">": 12}, "segment_filters": {"product": "parcel"}}`
	var c RuleCondition
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	require.NotNil(t, c.Threshold)
	assert.Equal(t, 12.0, c.Threshold.Value)
	assert.Nil(t, c.AnomalyScore)
	assert.Equal(t, "parcel", c.SegmentFilters["product"])
}
