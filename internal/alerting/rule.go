package alerting

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxConfidence caps the confidence score; the engine never reports absolute
// certainty.
const maxConfidence = 0.95

// AlertLookup finds an existing unresolved alert for duplicate suppression.
// Implementations must provide a single consistent read so two overlapping
// passes cannot both create an open alert for the same rule.
type AlertLookup interface {
	OpenAlertForRule(ruleID string, since time.Time) (*AlertInstance, error)
}

// RuleEvaluator evaluates a rule's conditions against a snapshot and emits
// zero or one alert instance per pass.
type RuleEvaluator struct {
	conditions *ConditionEvaluator
	lookup     AlertLookup
	logger     *logrus.Logger
}

// NewRuleEvaluator creates a rule evaluator. The lookup may be nil, in which
// case duplicate suppression is disabled.
func NewRuleEvaluator(conditions *ConditionEvaluator, lookup AlertLookup, logger *logrus.Logger) *RuleEvaluator {
	return &RuleEvaluator{conditions: conditions, lookup: lookup, logger: logger}
}

// Evaluate runs every condition of the rule, combines results per the rule's
// logical operator and returns a new alert instance, the existing open
// instance (duplicate suppression) or nil.
func (re *RuleEvaluator) Evaluate(configID string, rule AlertRule, ec *EvaluationContext) (*AlertInstance, error) {
	if len(rule.Conditions) == 0 {
		return nil, fmt.Errorf("rule %s has no conditions", rule.ID)
	}

	results := make([]ConditionResult, 0, len(rule.Conditions))
	met := 0
	for _, cond := range rule.Conditions {
		res, err := re.conditions.Evaluate(cond, ec)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", cond.ID, err)
		}
		if res.Met {
			met++
		}
		results = append(results, res)
	}

	triggered := false
	switch rule.Operator {
	case OperatorOr:
		triggered = met > 0
	default:
		// AND is the default combination.
		triggered = met == len(results)
	}
	if !triggered {
		return nil, nil
	}

	if rule.SuppressDuplicates && re.lookup != nil {
		since := ec.Now.Add(-rule.CooldownPeriod)
		existing, err := re.lookup.OpenAlertForRule(rule.ID, since)
		if err != nil {
			return nil, fmt.Errorf("duplicate lookup for rule %s: %w", rule.ID, err)
		}
		if existing != nil {
			re.logger.WithFields(logrus.Fields{
				"rule_id":  rule.ID,
				"alert_id": existing.ID,
			}).Debug("Duplicate alert suppressed within cooldown window")
			return existing, nil
		}
	}

	snapshots := make([]MetricSnapshot, len(results))
	for i, res := range results {
		snapshots[i] = MetricSnapshot{
			ConditionID: res.ConditionID,
			MetricType:  rule.Conditions[i].MetricType,
			Value:       res.ActualValue,
			Threshold:   res.ThresholdValue,
			Deviation:   res.Deviation,
		}
	}

	alert := &AlertInstance{
		ID:                  uuid.New().String(),
		ConfigurationID:     configID,
		RuleID:              rule.ID,
		Status:              StatusTriggered,
		Severity:            rule.Priority,
		Title:               rule.Name,
		Description:         describeTrigger(rule, results),
		TriggeredAt:         ec.Now,
		MetricValues:        snapshots,
		ContributingFactors: contributingFactors(ec),
		SuggestedActions:    suggestedActions(rule, ec),
		Confidence:          ConfidenceScore(results),
	}

	re.logger.WithFields(logrus.Fields{
		"rule_id":    rule.ID,
		"alert_id":   alert.ID,
		"severity":   alert.Severity,
		"confidence": alert.Confidence,
	}).Warn("Alert rule triggered")

	return alert, nil
}

// ConfidenceScore computes the heuristic [0, 0.95] trust estimate: base 0.5
// plus half the fraction of conditions met, plus a small bonus proportional to
// deviation magnitude. Zero conditions score 0.
func ConfidenceScore(results []ConditionResult) float64 {
	if len(results) == 0 {
		return 0
	}

	met := 0
	bonus := 0.0
	for _, r := range results {
		if !r.Met {
			continue
		}
		met++
		scale := math.Abs(r.ThresholdValue)
		if scale < 1 {
			scale = 1
		}
		bonus += math.Min(math.Abs(r.Deviation)/scale, 1) * 0.05
	}

	score := 0.5 + 0.5*float64(met)/float64(len(results)) + bonus
	return math.Min(score, maxConfidence)
}

func describeTrigger(rule AlertRule, results []ConditionResult) string {
	met := 0
	for _, r := range results {
		if r.Met {
			met++
		}
	}
	return fmt.Sprintf("%d of %d conditions met for rule %q", met, len(results), rule.Name)
}

// contributingFactors derives advisory annotations from the snapshot. They do
// not influence triggering.
func contributingFactors(ec *EvaluationContext) []string {
	var factors []string

	switch wd := ec.Now.Weekday(); {
	case wd == time.Saturday || wd == time.Sunday:
		factors = append(factors, "Weekend operation")
	case ec.Now.Hour() >= 9 && ec.Now.Hour() < 17:
		factors = append(factors, "Business hours operation")
	default:
		factors = append(factors, "After-hours operation")
	}

	if ec.Weather != nil {
		if ec.Weather.TemperatureC > 32 {
			factors = append(factors, "High outdoor temperature")
		}
		if ec.Weather.TemperatureC < -5 {
			factors = append(factors, "Low outdoor temperature")
		}
		if ec.Weather.Humidity > 85 {
			factors = append(factors, "High outdoor humidity")
		}
	}

	if ec.Occupancy != nil && ec.Occupancy.Occupied && ec.Occupancy.PeopleCount > 50 {
		factors = append(factors, "High building occupancy")
	}

	return factors
}

func suggestedActions(rule AlertRule, ec *EvaluationContext) []string {
	var actions []string
	for _, cond := range rule.Conditions {
		actions = append(actions, fmt.Sprintf("Check %s readings and system logs for condition %s", cond.MetricType, cond.ID))
	}

	windowStart := ec.Now.Add(-rule.EvaluationWindow)
	for _, ch := range ec.SystemChanges {
		if !ch.OccurredAt.Before(windowStart) && !ch.OccurredAt.After(ec.Now) {
			actions = append(actions, "Review recent system changes that overlap the evaluation window")
			break
		}
	}
	return actions
}
