package alerting

import (
	"encoding/json"
	"time"
)

// ConfigurationStatus represents the lifecycle state of an alert configuration.
// Configurations are soft-disabled rather than deleted.
type ConfigurationStatus string

const (
	ConfigurationActive   ConfigurationStatus = "active"
	ConfigurationPaused   ConfigurationStatus = "paused"
	ConfigurationArchived ConfigurationStatus = "archived"
)

// Severity represents alert priority/severity levels.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// LogicalOperator combines condition results within a rule.
type LogicalOperator string

const (
	OperatorAnd LogicalOperator = "and"
	OperatorOr  LogicalOperator = "or"
)

// ComparisonOperator compares an aggregated metric value against a threshold.
type ComparisonOperator string

const (
	OpGreaterThan      ComparisonOperator = "greater_than"
	OpLessThan         ComparisonOperator = "less_than"
	OpEquals           ComparisonOperator = "equals"
	OpBetween          ComparisonOperator = "between"
	OpOutsideRange     ComparisonOperator = "outside_range"
	OpPercentageChange ComparisonOperator = "percentage_change"
)

// AggregationFunction reduces a window of readings to a single value.
type AggregationFunction string

const (
	AggAverage           AggregationFunction = "average"
	AggSum               AggregationFunction = "sum"
	AggMedian            AggregationFunction = "median"
	AggStandardDeviation AggregationFunction = "standard_deviation"
	AggLatest            AggregationFunction = "latest"
)

// AlertStatus represents the lifecycle state of a triggered alert.
type AlertStatus string

const (
	StatusTriggered    AlertStatus = "triggered"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusResolved     AlertStatus = "resolved"
	StatusSuppressed   AlertStatus = "suppressed"
)

// ChannelType identifies a notification delivery channel.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSMS     ChannelType = "sms"
	ChannelWebhook ChannelType = "webhook"
)

// DeliveryStatus represents the state of a single notification attempt.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
)

// AlertConfiguration is a user-owned container of rules plus notification
// routing settings.
type AlertConfiguration struct {
	ID             string               `json:"id" db:"id"`
	Name           string               `json:"name" db:"name"`
	Description    string               `json:"description" db:"description"`
	Status         ConfigurationStatus  `json:"status" db:"status"`
	Category       string               `json:"category" db:"category"`
	BusinessImpact string               `json:"business_impact" db:"business_impact"`
	Rules          []AlertRule          `json:"rules"`
	Notifications  NotificationSettings `json:"notifications"`
	CreatedBy      string               `json:"created_by" db:"created_by"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at" db:"updated_at"`
}

// AlertRule is an ordered set of conditions combined with AND/OR logic.
type AlertRule struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Priority           Severity         `json:"priority"`
	Conditions         []AlertCondition `json:"conditions"`
	Operator           LogicalOperator  `json:"operator"`
	EvaluationWindow   time.Duration    `json:"evaluation_window"`
	CooldownPeriod     time.Duration    `json:"cooldown_period"`
	SuppressDuplicates bool             `json:"suppress_duplicates"`
}

// Threshold holds the comparison values for a condition. SecondaryValue is
// required for between/outside_range, BaselinePeriod for percentage_change.
type Threshold struct {
	Value          float64       `json:"value"`
	SecondaryValue *float64      `json:"secondary_value,omitempty"`
	BaselinePeriod time.Duration `json:"baseline_period,omitempty"`
}

// TimeAggregation specifies how readings inside the window are reduced.
type TimeAggregation struct {
	Function          AggregationFunction `json:"function"`
	Period            time.Duration       `json:"period"`
	MinimumDataPoints int                 `json:"minimum_data_points"`
}

// AlertCondition is a single metric-threshold test with its own aggregation
// window and optional exact-match field filters.
type AlertCondition struct {
	ID           string             `json:"id"`
	MetricType   string             `json:"metric_type"`
	SensorID     string             `json:"sensor_id,omitempty"`
	Operator     ComparisonOperator `json:"operator"`
	Threshold    Threshold          `json:"threshold"`
	Aggregation  TimeAggregation    `json:"aggregation"`
	FieldFilters map[string]string  `json:"field_filters,omitempty"`
}

// SensorReading is a single telemetry sample.
type SensorReading struct {
	SensorID   string            `json:"sensor_id" db:"sensor_id"`
	MetricType string            `json:"metric_type" db:"metric_type"`
	Value      float64           `json:"value" db:"value"`
	Timestamp  time.Time         `json:"timestamp" db:"timestamp"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// WeatherSnapshot carries ambient weather data for an evaluation pass.
type WeatherSnapshot struct {
	TemperatureC float64 `json:"temperature_c"`
	Humidity     float64 `json:"humidity"`
	Condition    string  `json:"condition"`
}

// OccupancySnapshot carries building occupancy data for an evaluation pass.
type OccupancySnapshot struct {
	Occupied    bool `json:"occupied"`
	PeopleCount int  `json:"people_count"`
}

// SystemChange records a recent operational change (deploy, setpoint edit)
// that may explain an alert.
type SystemChange struct {
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EvaluationContext is the immutable snapshot an evaluation pass runs against.
// Readings include current and historical samples within the longest window of
// interest. Its lifetime is one evaluation cycle.
type EvaluationContext struct {
	Now           time.Time          `json:"now"`
	Readings      []SensorReading    `json:"readings"`
	Weather       *WeatherSnapshot   `json:"weather,omitempty"`
	Occupancy     *OccupancySnapshot `json:"occupancy,omitempty"`
	SystemChanges []SystemChange     `json:"system_changes,omitempty"`
}

// ConditionResult is the outcome of evaluating one condition.
type ConditionResult struct {
	ConditionID    string  `json:"condition_id"`
	Met            bool    `json:"met"`
	ActualValue    float64 `json:"actual_value"`
	ThresholdValue float64 `json:"threshold_value"`
	Deviation      float64 `json:"deviation"`
}

// MetricSnapshot captures the per-condition values at trigger time for audit.
type MetricSnapshot struct {
	ConditionID string  `json:"condition_id"`
	MetricType  string  `json:"metric_type"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Deviation   float64 `json:"deviation"`
}

// AlertInstance is the materialized result of a triggered rule.
type AlertInstance struct {
	ID                  string            `json:"id" db:"id"`
	ConfigurationID     string            `json:"configuration_id" db:"configuration_id"`
	RuleID              string            `json:"rule_id" db:"rule_id"`
	Status              AlertStatus       `json:"status" db:"status"`
	Severity            Severity          `json:"severity" db:"severity"`
	Title               string            `json:"title" db:"title"`
	Description         string            `json:"description" db:"description"`
	TriggeredAt         time.Time         `json:"triggered_at" db:"triggered_at"`
	AcknowledgedAt      *time.Time        `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedAt          *time.Time        `json:"resolved_at,omitempty" db:"resolved_at"`
	MetricValues        []MetricSnapshot  `json:"metric_values"`
	ContributingFactors []string          `json:"contributing_factors,omitempty"`
	SuggestedActions    []string          `json:"suggested_actions,omitempty"`
	Confidence          float64           `json:"confidence" db:"confidence"`
	EscalationLevel     int               `json:"escalation_level" db:"escalation_level"`
	Notifications       []NotificationLog `json:"notifications,omitempty"`
	FalsePositive       bool              `json:"false_positive" db:"false_positive"`
}

// NotificationLog records a single delivery attempt. Entries are append-only;
// after a terminal status only retry_count, status and error advance via the
// retry manager.
type NotificationLog struct {
	ID         string         `json:"id" db:"id"`
	AlertID    string         `json:"alert_id" db:"alert_id"`
	Channel    ChannelType    `json:"channel" db:"channel"`
	Recipient  string         `json:"recipient" db:"recipient"`
	Subject    string         `json:"subject" db:"subject"`
	Body       string         `json:"body" db:"body"`
	SentAt     time.Time      `json:"sent_at" db:"sent_at"`
	Status     DeliveryStatus `json:"status" db:"status"`
	Error      string         `json:"error,omitempty" db:"error"`
	RetryCount int            `json:"retry_count" db:"retry_count"`
	Escalation int            `json:"escalation" db:"escalation"`
}

// ChannelConfig describes one configured delivery channel.
type ChannelConfig struct {
	Type           ChannelType       `json:"type"`
	Enabled        bool              `json:"enabled"`
	Config         map[string]string `json:"config,omitempty"`
	PriorityFilter []Severity        `json:"priority_filter"`
}

// AllowsSeverity reports whether the channel accepts alerts of the given severity.
func (c ChannelConfig) AllowsSeverity(s Severity) bool {
	for _, f := range c.PriorityFilter {
		if f == s {
			return true
		}
	}
	return false
}

// ContactMethod is a verified (or not) address on a specific channel.
type ContactMethod struct {
	Channel  ChannelType `json:"channel"`
	Address  string      `json:"address"`
	Verified bool        `json:"verified"`
}

// OnCallWindow is a recurring day/time window during which a recipient is on call.
// Start and End use "15:04" clock format; End may wrap past midnight.
type OnCallWindow struct {
	Days  []time.Weekday `json:"days"`
	Start string         `json:"start"`
	End   string         `json:"end"`
}

// Recipient is someone who can receive alert notifications.
type Recipient struct {
	ID                 string                     `json:"id"`
	Name               string                     `json:"name"`
	ContactMethods     []ContactMethod            `json:"contact_methods"`
	ChannelsByPriority map[Severity][]ChannelType `json:"channels_by_priority"`
	OnCall             []OnCallWindow             `json:"on_call,omitempty"`
}

// FrequencyLimits bounds how often notifications fire for one configuration.
type FrequencyLimits struct {
	MaxPerHour             int           `json:"max_per_hour"`
	MaxPerDay              int           `json:"max_per_day"`
	CooldownBetweenSimilar time.Duration `json:"cooldown_between_similar"`
}

// QuietHours is a time window in which only critical alerts are delivered.
// Start/End use "15:04" clock format and may wrap overnight (22:00-06:00).
type QuietHours struct {
	Enabled    bool     `json:"enabled"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Timezone   string   `json:"timezone"`
	Exceptions []string `json:"exceptions,omitempty"`
}

// NotificationSettings routes alerts for one configuration.
type NotificationSettings struct {
	Channels        []ChannelConfig   `json:"channels"`
	Recipients      []Recipient       `json:"recipients"`
	FrequencyLimits FrequencyLimits   `json:"frequency_limits"`
	QuietHours      QuietHours        `json:"quiet_hours"`
	Escalation      *EscalationPolicy `json:"escalation,omitempty"`
}

// EscalationStage is a delayed, higher-reach notification wave.
type EscalationStage struct {
	Level              int           `json:"level"`
	Delay              time.Duration `json:"delay"`
	Recipients         []Recipient   `json:"recipients"`
	Channels           []ChannelType `json:"channels"`
	AckTimeout         time.Duration `json:"ack_timeout"`
	Message            string        `json:"message,omitempty"`
	SkipIfAcknowledged bool          `json:"skip_if_acknowledged"`
}

// EscalationPolicy orders escalation stages. Stage levels must be strictly
// increasing; MaxEscalations bounds the total stages fired.
type EscalationPolicy struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Stages         []EscalationStage `json:"stages"`
	MaxEscalations int               `json:"max_escalations"`
}

// StageForLevel returns the stage with the given level, or nil.
func (p *EscalationPolicy) StageForLevel(level int) *EscalationStage {
	for i := range p.Stages {
		if p.Stages[i].Level == level {
			return &p.Stages[i]
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *AlertConfiguration) Clone() *AlertConfiguration {
	data, _ := json.Marshal(c)
	var clone AlertConfiguration
	json.Unmarshal(data, &clone)
	return &clone
}

// IsOpen reports whether the alert has not yet reached a terminal state.
func (a *AlertInstance) IsOpen() bool {
	return a.Status == StatusTriggered || a.Status == StatusAcknowledged
}
