package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	rules := NewRuleEvaluator(NewConditionEvaluator(nil, testLogger()), nil, testLogger())
	return NewEngine(rules, EngineConfig{MaxConcurrentEvals: 4}, testLogger())
}

func TestEngine_EvaluateAlerts_HVACPowerSpike(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	engine := newTestEngine()

	config := &AlertConfiguration{
		ID:     "cfg-hvac",
		Name:   "HVAC power monitoring",
		Status: ConfigurationActive,
		Rules: []AlertRule{{
			ID:       "r1",
			Name:     "HVAC power spike",
			Priority: SeverityHigh,
			Conditions: []AlertCondition{{
				ID:         "c1",
				MetricType: "power_consumption",
				Operator:   OpGreaterThan,
				Threshold:  Threshold{Value: 1000},
				Aggregation: TimeAggregation{
					Function: AggSum,
					Period:   15 * time.Minute,
				},
			}},
			EvaluationWindow: 15 * time.Minute,
		}},
	}

	ec := &EvaluationContext{
		Now:      now,
		Readings: readingsAt(now, "power_consumption", "hvac-1", 400, 400, 400),
	}

	alerts := engine.EvaluateAlerts(context.Background(), []*AlertConfiguration{config}, ec)
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityHigh, alerts[0].Severity)
	assert.InDelta(t, 1200.0, alerts[0].MetricValues[0].Value, 0.001)
	assert.InDelta(t, 200.0, alerts[0].MetricValues[0].Deviation, 0.001)
	assert.Equal(t, now, alerts[0].TriggeredAt)
}

func TestEngine_EvaluateAlerts_SkipsInactiveConfigurations(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	engine := newTestEngine()

	config := &AlertConfiguration{
		ID:     "cfg-paused",
		Status: ConfigurationPaused,
		Rules: []AlertRule{{
			ID:         "r1",
			Name:       "Temp high",
			Priority:   SeverityHigh,
			Conditions: []AlertCondition{greaterThanCondition("c1", "temperature", 10)},
		}},
	}

	ec := &EvaluationContext{Now: now, Readings: readingsAt(now, "temperature", "s1", 50)}
	alerts := engine.EvaluateAlerts(context.Background(), []*AlertConfiguration{config, nil}, ec)
	assert.Empty(t, alerts)
}

func TestEngine_EvaluateAlerts_FailingRuleDoesNotAbortBatch(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	engine := newTestEngine()

	// First rule is structurally broken (between without a secondary value),
	// the second is valid and should still trigger.
	config := &AlertConfiguration{
		ID:     "cfg-mixed",
		Status: ConfigurationActive,
		Rules: []AlertRule{
			{
				ID:       "r-bad",
				Name:     "Broken range rule",
				Priority: SeverityLow,
				Conditions: []AlertCondition{{
					ID:         "c-bad",
					MetricType: "temperature",
					Operator:   OpBetween,
					Threshold:  Threshold{Value: 10},
					Aggregation: TimeAggregation{
						Function: AggAverage,
						Period:   10 * time.Minute,
					},
				}},
			},
			{
				ID:         "r-good",
				Name:       "Temp high",
				Priority:   SeverityHigh,
				Conditions: []AlertCondition{greaterThanCondition("c1", "temperature", 10)},
			},
		},
	}

	ec := &EvaluationContext{Now: now, Readings: readingsAt(now, "temperature", "s1", 50)}
	alerts := engine.EvaluateAlerts(context.Background(), []*AlertConfiguration{config}, ec)
	require.Len(t, alerts, 1)
	assert.Equal(t, "r-good", alerts[0].RuleID)
}

func TestEngine_ValidateConfiguration(t *testing.T) {
	engine := newTestEngine()

	t.Run("nil configuration", func(t *testing.T) {
		v := engine.ValidateConfiguration(nil)
		assert.False(t, v.IsValid)
		require.Len(t, v.Errors, 1)
		assert.Equal(t, CodeRequired, v.Errors[0].Code)
	})

	t.Run("missing name and rules", func(t *testing.T) {
		v := engine.ValidateConfiguration(&AlertConfiguration{})
		assert.False(t, v.IsValid)

		codes := map[string]string{}
		for _, e := range v.Errors {
			codes[e.Field] = e.Code
		}
		assert.Equal(t, CodeRequired, codes["name"])
		assert.Equal(t, CodeRequired, codes["rules"])
	})

	t.Run("invalid condition shape", func(t *testing.T) {
		cfg := &AlertConfiguration{
			Name: "Bad thresholds",
			Rules: []AlertRule{{
				Name: "r",
				Conditions: []AlertCondition{{
					ID:         "c1",
					MetricType: "temperature",
					Operator:   OpBetween,
					Threshold:  Threshold{Value: 10},
					Aggregation: TimeAggregation{
						Function: AggAverage,
						Period:   10 * time.Minute,
					},
				}},
				EvaluationWindow: 15 * time.Minute,
			}},
		}
		v := engine.ValidateConfiguration(cfg)
		assert.False(t, v.IsValid)

		found := false
		for _, e := range v.Errors {
			if e.Code == CodeInvalid {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("sensitive threshold warning", func(t *testing.T) {
		cfg := &AlertConfiguration{
			Name: "Zero threshold",
			Rules: []AlertRule{{
				Name:             "r",
				Conditions:       []AlertCondition{greaterThanCondition("c1", "temperature", 0)},
				EvaluationWindow: 30 * time.Minute,
				CooldownPeriod:   time.Hour,
			}},
		}
		v := engine.ValidateConfiguration(cfg)
		assert.True(t, v.IsValid)

		found := false
		for _, w := range v.Warnings {
			if w.Code == WarnSensitiveThreshold {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("high volume warning", func(t *testing.T) {
		cfg := &AlertConfiguration{
			Name: "Noisy",
			Rules: []AlertRule{{
				Name:             "r",
				Conditions:       []AlertCondition{greaterThanCondition("c1", "temperature", 25)},
				EvaluationWindow: time.Minute,
				CooldownPeriod:   time.Minute,
			}},
		}
		v := engine.ValidateConfiguration(cfg)
		assert.True(t, v.IsValid)
		assert.InDelta(t, 60.0, v.EstimatedAlertVolume, 0.001)

		found := false
		for _, w := range v.Warnings {
			if w.Code == WarnHighVolume {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("valid configuration", func(t *testing.T) {
		cfg := &AlertConfiguration{
			Name: "Server room temperature",
			Rules: []AlertRule{{
				Name:             "Temp high",
				Conditions:       []AlertCondition{greaterThanCondition("c1", "temperature", 27)},
				EvaluationWindow: 30 * time.Minute,
				CooldownPeriod:   time.Hour,
			}},
		}
		v := engine.ValidateConfiguration(cfg)
		assert.True(t, v.IsValid)
		assert.Empty(t, v.Errors)
	})
}
