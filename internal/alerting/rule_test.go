package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	existing *AlertInstance
	err      error
	lastRule string
}

func (f *fakeLookup) OpenAlertForRule(ruleID string, since time.Time) (*AlertInstance, error) {
	f.lastRule = ruleID
	return f.existing, f.err
}

func greaterThanCondition(id, metric string, threshold float64) AlertCondition {
	return AlertCondition{
		ID:         id,
		MetricType: metric,
		Operator:   OpGreaterThan,
		Threshold:  Threshold{Value: threshold},
		Aggregation: TimeAggregation{
			Function: AggAverage,
			Period:   10 * time.Minute,
		},
	}
}

func TestRuleEvaluator_AndOperator(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	re := NewRuleEvaluator(NewConditionEvaluator(nil, testLogger()), nil, testLogger())

	rule := AlertRule{
		ID:       "r1",
		Name:     "Temp and humidity high",
		Priority: SeverityHigh,
		Operator: OperatorAnd,
		Conditions: []AlertCondition{
			greaterThanCondition("c1", "temperature", 25),
			greaterThanCondition("c2", "humidity", 60),
		},
		EvaluationWindow: 15 * time.Minute,
	}

	t.Run("all conditions met triggers", func(t *testing.T) {
		ec := &EvaluationContext{Now: now, Readings: append(
			readingsAt(now, "temperature", "s1", 30),
			readingsAt(now, "humidity", "s2", 70)...,
		)}
		alert, err := re.Evaluate("cfg1", rule, ec)
		require.NoError(t, err)
		require.NotNil(t, alert)
		assert.Equal(t, "cfg1", alert.ConfigurationID)
		assert.Equal(t, "r1", alert.RuleID)
		assert.Equal(t, SeverityHigh, alert.Severity)
		assert.Equal(t, StatusTriggered, alert.Status)
		assert.Len(t, alert.MetricValues, 2)
	})

	t.Run("one condition unmet does not trigger", func(t *testing.T) {
		ec := &EvaluationContext{Now: now, Readings: append(
			readingsAt(now, "temperature", "s1", 30),
			readingsAt(now, "humidity", "s2", 50)...,
		)}
		alert, err := re.Evaluate("cfg1", rule, ec)
		require.NoError(t, err)
		assert.Nil(t, alert)
	})
}

func TestRuleEvaluator_OrOperator(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	re := NewRuleEvaluator(NewConditionEvaluator(nil, testLogger()), nil, testLogger())

	rule := AlertRule{
		ID:       "r1",
		Name:     "Temp or humidity high",
		Priority: SeverityMedium,
		Operator: OperatorOr,
		Conditions: []AlertCondition{
			greaterThanCondition("c1", "temperature", 25),
			greaterThanCondition("c2", "humidity", 60),
		},
		EvaluationWindow: 15 * time.Minute,
	}

	ec := &EvaluationContext{Now: now, Readings: append(
		readingsAt(now, "temperature", "s1", 30),
		readingsAt(now, "humidity", "s2", 50)...,
	)}
	alert, err := re.Evaluate("cfg1", rule, ec)
	require.NoError(t, err)
	require.NotNil(t, alert)
}

func TestRuleEvaluator_NoConditionsErrors(t *testing.T) {
	re := NewRuleEvaluator(NewConditionEvaluator(nil, testLogger()), nil, testLogger())
	_, err := re.Evaluate("cfg1", AlertRule{ID: "r1"}, &EvaluationContext{Now: time.Now()})
	assert.Error(t, err)
}

func TestRuleEvaluator_DuplicateSuppression(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	existing := &AlertInstance{ID: "existing", RuleID: "r1", Status: StatusTriggered, TriggeredAt: now.Add(-5 * time.Minute)}
	lookup := &fakeLookup{existing: existing}
	re := NewRuleEvaluator(NewConditionEvaluator(nil, testLogger()), lookup, testLogger())

	rule := AlertRule{
		ID:                 "r1",
		Name:               "Temp high",
		Priority:           SeverityHigh,
		Conditions:         []AlertCondition{greaterThanCondition("c1", "temperature", 25)},
		CooldownPeriod:     30 * time.Minute,
		SuppressDuplicates: true,
	}
	ec := &EvaluationContext{Now: now, Readings: readingsAt(now, "temperature", "s1", 30)}

	alert, err := re.Evaluate("cfg1", rule, ec)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "existing", alert.ID)
	assert.Equal(t, "r1", lookup.lastRule)

	t.Run("no open alert creates a new one", func(t *testing.T) {
		lookup.existing = nil
		alert, err := re.Evaluate("cfg1", rule, ec)
		require.NoError(t, err)
		require.NotNil(t, alert)
		assert.NotEqual(t, "existing", alert.ID)
		assert.Equal(t, now, alert.TriggeredAt)
	})
}

func TestConfidenceScore(t *testing.T) {
	t.Run("no results scores zero", func(t *testing.T) {
		assert.Zero(t, ConfidenceScore(nil))
	})

	t.Run("all met is capped", func(t *testing.T) {
		results := []ConditionResult{
			{Met: true, ThresholdValue: 100, Deviation: 50},
			{Met: true, ThresholdValue: 100, Deviation: 50},
		}
		assert.InDelta(t, 0.95, ConfidenceScore(results), 0.0001)
	})

	t.Run("partial met with deviation bonus", func(t *testing.T) {
		results := []ConditionResult{
			{Met: true, ThresholdValue: 100, Deviation: 10},
			{Met: false, ThresholdValue: 100, Deviation: -5},
		}
		// 0.5 base + 0.25 fraction + 0.005 bonus.
		assert.InDelta(t, 0.755, ConfidenceScore(results), 0.0001)
	})

	t.Run("more conditions met scores higher", func(t *testing.T) {
		one := ConfidenceScore([]ConditionResult{
			{Met: true, ThresholdValue: 100, Deviation: 1},
			{Met: false, ThresholdValue: 100},
			{Met: false, ThresholdValue: 100},
		})
		two := ConfidenceScore([]ConditionResult{
			{Met: true, ThresholdValue: 100, Deviation: 1},
			{Met: true, ThresholdValue: 100, Deviation: 1},
			{Met: false, ThresholdValue: 100},
		})
		assert.Greater(t, two, one)
	})
}

func TestContributingFactors(t *testing.T) {
	weekend := time.Date(2026, 3, 7, 14, 0, 0, 0, time.UTC) // Saturday
	factors := contributingFactors(&EvaluationContext{
		Now:       weekend,
		Weather:   &WeatherSnapshot{TemperatureC: 35, Humidity: 90},
		Occupancy: &OccupancySnapshot{Occupied: true, PeopleCount: 120},
	})

	assert.Contains(t, factors, "Weekend operation")
	assert.Contains(t, factors, "High outdoor temperature")
	assert.Contains(t, factors, "High outdoor humidity")
	assert.Contains(t, factors, "High building occupancy")
}
