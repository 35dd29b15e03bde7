package alerting

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// equalsTolerance is the absolute tolerance used by the equals operator.
// Exact floating-point equality is never used.
const equalsTolerance = 0.001

// BaselineProvider resolves the baseline value used by percentage_change
// conditions, e.g. a same-metric average over the threshold's baseline period.
type BaselineProvider interface {
	Baseline(cond AlertCondition, ec *EvaluationContext) (float64, error)
}

// HistoricalBaseline averages the same metric over the condition's baseline
// period, excluding the current aggregation window.
type HistoricalBaseline struct{}

func (HistoricalBaseline) Baseline(cond AlertCondition, ec *EvaluationContext) (float64, error) {
	if cond.Threshold.BaselinePeriod <= 0 {
		return 0, fmt.Errorf("condition %s: baseline period not set", cond.ID)
	}
	from := ec.Now.Add(-cond.Threshold.BaselinePeriod)
	until := ec.Now.Add(-cond.Aggregation.Period)

	var sum float64
	var count int
	for _, r := range ec.Readings {
		if !matchesSelector(cond, r) {
			continue
		}
		if r.Timestamp.Before(from) || r.Timestamp.After(until) {
			continue
		}
		sum += r.Value
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}

// ConditionEvaluator evaluates a single condition against an evaluation
// context. It is stateless given its inputs.
type ConditionEvaluator struct {
	baseline BaselineProvider
	logger   *logrus.Logger
}

// NewConditionEvaluator creates a condition evaluator. A nil baseline provider
// falls back to the historical same-metric average.
func NewConditionEvaluator(baseline BaselineProvider, logger *logrus.Logger) *ConditionEvaluator {
	if baseline == nil {
		baseline = HistoricalBaseline{}
	}
	return &ConditionEvaluator{baseline: baseline, logger: logger}
}

// Evaluate filters readings, aggregates them and compares against the
// condition's threshold. Fewer matching readings than minimum_data_points is
// not an error: the aggregate is 0 and the condition cannot be met.
func (e *ConditionEvaluator) Evaluate(cond AlertCondition, ec *EvaluationContext) (ConditionResult, error) {
	result := ConditionResult{
		ConditionID:    cond.ID,
		ThresholdValue: cond.Threshold.Value,
	}

	if err := ValidateCondition(cond); err != nil {
		return result, err
	}

	readings := e.filterReadings(cond, ec)

	if len(readings) == 0 || len(readings) < cond.Aggregation.MinimumDataPoints {
		e.logger.WithFields(logrus.Fields{
			"condition_id": cond.ID,
			"metric_type":  cond.MetricType,
			"matched":      len(readings),
			"minimum":      cond.Aggregation.MinimumDataPoints,
		}).Debug("Insufficient data points, condition not met")
		result.ActualValue = 0
		result.Deviation = -cond.Threshold.Value
		return result, nil
	}

	actual := aggregate(cond.Aggregation.Function, readings)
	result.ActualValue = actual
	result.Deviation = actual - cond.Threshold.Value

	met, err := e.compare(cond, actual, ec)
	if err != nil {
		return result, err
	}
	result.Met = met
	return result, nil
}

// filterReadings selects readings by metric type, optional sensor id, the
// aggregation time window and exact-match field filters.
func (e *ConditionEvaluator) filterReadings(cond AlertCondition, ec *EvaluationContext) []SensorReading {
	windowStart := ec.Now.Add(-cond.Aggregation.Period)

	var matched []SensorReading
	for _, r := range ec.Readings {
		if !matchesSelector(cond, r) {
			continue
		}
		if r.Timestamp.Before(windowStart) || r.Timestamp.After(ec.Now) {
			continue
		}
		if !matchesFilters(cond.FieldFilters, r.Labels) {
			continue
		}
		matched = append(matched, r)
	}
	return matched
}

func matchesSelector(cond AlertCondition, r SensorReading) bool {
	if r.MetricType != cond.MetricType {
		return false
	}
	if cond.SensorID != "" && r.SensorID != cond.SensorID {
		return false
	}
	return true
}

func matchesFilters(filters map[string]string, labels map[string]string) bool {
	for k, want := range filters {
		if labels[k] != want {
			return false
		}
	}
	return true
}

// aggregate reduces readings to a single value. The caller guarantees the
// slice is non-empty.
func aggregate(fn AggregationFunction, readings []SensorReading) float64 {
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}

	switch fn {
	case AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case AggAverage:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case AggMedian:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}
		return sorted[mid]
	case AggStandardDeviation:
		// Population formula: sqrt of the mean of squared deviations.
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var sq float64
		for _, v := range values {
			d := v - mean
			sq += d * d
		}
		return math.Sqrt(sq / float64(len(values)))
	case AggLatest:
		latest := readings[0]
		for _, r := range readings[1:] {
			if r.Timestamp.After(latest.Timestamp) {
				latest = r
			}
		}
		return latest.Value
	default:
		// Validated upstream; treat unknown functions as latest value.
		return values[len(values)-1]
	}
}

func (e *ConditionEvaluator) compare(cond AlertCondition, actual float64, ec *EvaluationContext) (bool, error) {
	t := cond.Threshold

	switch cond.Operator {
	case OpGreaterThan:
		return actual > t.Value, nil
	case OpLessThan:
		return actual < t.Value, nil
	case OpEquals:
		return math.Abs(actual-t.Value) <= equalsTolerance, nil
	case OpBetween:
		return t.Value <= actual && actual <= *t.SecondaryValue, nil
	case OpOutsideRange:
		return !(t.Value <= actual && actual <= *t.SecondaryValue), nil
	case OpPercentageChange:
		baseline, err := e.baseline.Baseline(cond, ec)
		if err != nil {
			return false, err
		}
		if baseline == 0 {
			// A zero baseline would divide by zero and produce a false
			// positive; the condition never triggers instead.
			e.logger.WithField("condition_id", cond.ID).Debug("Zero baseline, percentage change condition not met")
			return false, nil
		}
		change := (actual - baseline) / baseline * 100
		return change > t.Value, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", cond.Operator)
	}
}

// ValidateCondition checks that the threshold shape matches the operator.
func ValidateCondition(cond AlertCondition) error {
	if cond.MetricType == "" {
		return fmt.Errorf("condition %s: metric type is required", cond.ID)
	}
	if cond.Aggregation.Period <= 0 {
		return fmt.Errorf("condition %s: aggregation period must be positive", cond.ID)
	}
	switch cond.Operator {
	case OpBetween, OpOutsideRange:
		if cond.Threshold.SecondaryValue == nil {
			return fmt.Errorf("condition %s: %s requires a secondary threshold value", cond.ID, cond.Operator)
		}
	case OpPercentageChange:
		if cond.Threshold.BaselinePeriod <= 0 {
			return fmt.Errorf("condition %s: percentage_change requires a baseline period", cond.ID)
		}
	case OpGreaterThan, OpLessThan, OpEquals:
	default:
		return fmt.Errorf("condition %s: unsupported comparison operator %q", cond.ID, cond.Operator)
	}
	return nil
}
