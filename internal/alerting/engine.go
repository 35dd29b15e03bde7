package alerting

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/atrium-ops/bms-backend-go/internal/metrics"
)

// Validation error codes reported field-by-field at configuration save time.
const (
	CodeRequired = "REQUIRED"
	CodeInvalid  = "INVALID"

	WarnSensitiveThreshold = "SENSITIVE_THRESHOLD"
	WarnHighVolume         = "HIGH_VOLUME"
)

// ValidationIssue is a field-level validation error or warning.
type ValidationIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AlertValidation is the result of validating a configuration before it is
// activated.
type AlertValidation struct {
	IsValid              bool              `json:"is_valid"`
	Errors               []ValidationIssue `json:"errors,omitempty"`
	Warnings             []ValidationIssue `json:"warnings,omitempty"`
	EstimatedAlertVolume float64           `json:"estimated_alert_volume"`
}

// EngineConfig contains evaluation engine configuration.
type EngineConfig struct {
	MaxConcurrentEvals int `json:"max_concurrent_evals"`
}

// Engine orchestrates rule evaluation across all active configurations.
type Engine struct {
	rules  *RuleEvaluator
	logger *logrus.Logger
	config EngineConfig
}

// NewEngine creates the alert rule engine.
func NewEngine(rules *RuleEvaluator, cfg EngineConfig, logger *logrus.Logger) *Engine {
	if cfg.MaxConcurrentEvals <= 0 {
		cfg.MaxConcurrentEvals = 10
	}
	return &Engine{rules: rules, logger: logger, config: cfg}
}

// EvaluateAlerts runs every rule of every active configuration against the
// snapshot and returns the batch of alert instances whose conditions were met.
// A failing or panicking rule is logged and skipped; it never aborts the batch.
// Configurations are evaluated concurrently under a bounded semaphore.
func (e *Engine) EvaluateAlerts(ctx context.Context, configs []*AlertConfiguration, ec *EvaluationContext) []*AlertInstance {
	var (
		mu     sync.Mutex
		alerts []*AlertInstance
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, e.config.MaxConcurrentEvals)

	for _, config := range configs {
		if config == nil || config.Status != ConfigurationActive {
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Warn("Evaluation pass cancelled")
			wg.Wait()
			return alerts
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(cfg *AlertConfiguration) {
			defer func() {
				<-sem
				wg.Done()
			}()
			triggered := e.evaluateConfiguration(cfg, ec)
			if len(triggered) == 0 {
				return
			}
			mu.Lock()
			alerts = append(alerts, triggered...)
			mu.Unlock()
		}(config)
	}

	wg.Wait()
	return alerts
}

// evaluateConfiguration evaluates each rule of one configuration, isolating
// per-rule failures.
func (e *Engine) evaluateConfiguration(config *AlertConfiguration, ec *EvaluationContext) []*AlertInstance {
	var triggered []*AlertInstance

	for _, rule := range config.Rules {
		alert, err := e.evaluateRuleSafe(config.ID, rule, ec)
		if err != nil {
			metrics.EvaluationsTotal.WithLabelValues("error").Inc()
			e.logger.WithError(err).WithFields(logrus.Fields{
				"configuration_id": config.ID,
				"rule_id":          rule.ID,
			}).Error("Rule evaluation failed")
			continue
		}
		if alert == nil {
			metrics.EvaluationsTotal.WithLabelValues("not_triggered").Inc()
			continue
		}
		metrics.EvaluationsTotal.WithLabelValues("triggered").Inc()
		if alert.TriggeredAt.Equal(ec.Now) {
			metrics.AlertsTriggered.WithLabelValues(string(alert.Severity)).Inc()
		}
		triggered = append(triggered, alert)
	}
	return triggered
}

// evaluateRuleSafe converts a panic inside rule evaluation into an error so a
// malformed rule cannot take down the pass.
func (e *Engine) evaluateRuleSafe(configID string, rule AlertRule, ec *EvaluationContext) (alert *AlertInstance, err error) {
	defer func() {
		if r := recover(); r != nil {
			alert = nil
			err = fmt.Errorf("panic evaluating rule %s: %v", rule.ID, r)
		}
	}()
	return e.rules.Evaluate(configID, rule, ec)
}

// ValidateConfiguration performs structural validation and estimates how many
// alerts per hour the configuration could produce once activated.
func (e *Engine) ValidateConfiguration(config *AlertConfiguration) *AlertValidation {
	v := &AlertValidation{IsValid: true}

	if config == nil {
		v.IsValid = false
		v.Errors = append(v.Errors, ValidationIssue{Field: "configuration", Code: CodeRequired, Message: "Configuration is required"})
		return v
	}

	if config.Name == "" {
		v.Errors = append(v.Errors, ValidationIssue{Field: "name", Code: CodeRequired, Message: "Configuration name is required"})
	}
	if len(config.Rules) == 0 {
		v.Errors = append(v.Errors, ValidationIssue{Field: "rules", Code: CodeRequired, Message: "At least one rule is required"})
	}

	for i, rule := range config.Rules {
		prefix := fmt.Sprintf("rules[%d]", i)

		if rule.Name == "" {
			v.Errors = append(v.Errors, ValidationIssue{Field: prefix + ".name", Code: CodeRequired, Message: "Rule name is required"})
		}
		if len(rule.Conditions) == 0 {
			v.Errors = append(v.Errors, ValidationIssue{Field: prefix + ".conditions", Code: CodeRequired, Message: "At least one condition is required"})
		}
		if rule.EvaluationWindow <= 0 {
			v.Errors = append(v.Errors, ValidationIssue{Field: prefix + ".evaluation_window", Code: CodeInvalid, Message: "Evaluation window must be positive"})
		}
		if rule.CooldownPeriod < 0 {
			v.Errors = append(v.Errors, ValidationIssue{Field: prefix + ".cooldown_period", Code: CodeInvalid, Message: "Cooldown period cannot be negative"})
		}

		for j, cond := range rule.Conditions {
			field := fmt.Sprintf("%s.conditions[%d]", prefix, j)
			if err := ValidateCondition(cond); err != nil {
				v.Errors = append(v.Errors, ValidationIssue{Field: field, Code: CodeInvalid, Message: err.Error()})
			}
			if cond.Threshold.Value == 0 && cond.Operator != OpBetween && cond.Operator != OpOutsideRange {
				v.Warnings = append(v.Warnings, ValidationIssue{
					Field:   field + ".threshold.value",
					Code:    WarnSensitiveThreshold,
					Message: "Zero threshold may trigger on any non-zero reading",
				})
			}
		}
	}

	v.EstimatedAlertVolume = estimateAlertVolume(config)
	if v.EstimatedAlertVolume > 10 {
		v.Warnings = append(v.Warnings, ValidationIssue{
			Field:   "rules",
			Code:    WarnHighVolume,
			Message: fmt.Sprintf("Configuration may produce ~%.0f alerts/hour", v.EstimatedAlertVolume),
		})
	}

	if len(v.Errors) > 0 {
		v.IsValid = false
	}
	return v
}

// estimateAlertVolume is a heuristic upper bound of alerts per hour: each rule
// can trigger at most once per evaluation window, throttled by its cooldown.
func estimateAlertVolume(config *AlertConfiguration) float64 {
	var perHour float64
	for _, rule := range config.Rules {
		windowMinutes := rule.EvaluationWindow.Minutes()
		if windowMinutes <= 0 {
			continue
		}
		cooldownMinutes := rule.CooldownPeriod.Minutes()
		if cooldownMinutes < 1 {
			cooldownMinutes = 1
		}
		perHour += (60 / windowMinutes) / cooldownMinutes
	}
	return perHour
}
