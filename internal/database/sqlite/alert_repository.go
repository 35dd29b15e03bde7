package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
)

// AlertRepository stores triggered alert instances.
type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

type alertRow struct {
	ID                  string     `db:"id"`
	ConfigurationID     string     `db:"configuration_id"`
	RuleID              string     `db:"rule_id"`
	Status              string     `db:"status"`
	Severity            string     `db:"severity"`
	Title               string     `db:"title"`
	Description         string     `db:"description"`
	TriggeredAt         time.Time  `db:"triggered_at"`
	AcknowledgedAt      *time.Time `db:"acknowledged_at"`
	ResolvedAt          *time.Time `db:"resolved_at"`
	MetricValues        string     `db:"metric_values"`
	ContributingFactors string     `db:"contributing_factors"`
	SuggestedActions    string     `db:"suggested_actions"`
	Confidence          float64    `db:"confidence"`
	EscalationLevel     int        `db:"escalation_level"`
	FalsePositive       bool       `db:"false_positive"`
}

func (r *AlertRepository) Create(ctx context.Context, alert *alerting.AlertInstance) error {
	row, err := toAlertRow(alert)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO alert_instances
			(id, configuration_id, rule_id, status, severity, title, description,
			 triggered_at, acknowledged_at, resolved_at, metric_values,
			 contributing_factors, suggested_actions, confidence, escalation_level, false_positive)
		VALUES
			(:id, :configuration_id, :rule_id, :status, :severity, :title, :description,
			 :triggered_at, :acknowledged_at, :resolved_at, :metric_values,
			 :contributing_factors, :suggested_actions, :confidence, :escalation_level, :false_positive)`,
		row)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", alert.ID, err)
	}
	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*alerting.AlertInstance, error) {
	var row alertRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM alert_instances WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return fromAlertRow(&row)
}

func (r *AlertRepository) ListByStatus(ctx context.Context, status alerting.AlertStatus) ([]*alerting.AlertInstance, error) {
	var rows []alertRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM alert_instances WHERE status = ? ORDER BY triggered_at DESC`, string(status))
	if err != nil {
		return nil, err
	}
	alerts := make([]*alerting.AlertInstance, 0, len(rows))
	for i := range rows {
		a, err := fromAlertRow(&rows[i])
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// OpenAlertForRule returns the most recent unresolved alert for the rule
// triggered at or after since. The single SELECT is the consistent read that
// keeps overlapping evaluation passes from creating duplicate open alerts.
func (r *AlertRepository) OpenAlertForRule(ruleID string, since time.Time) (*alerting.AlertInstance, error) {
	var row alertRow
	err := r.db.Get(&row, `
		SELECT * FROM alert_instances
		WHERE rule_id = ? AND status IN (?, ?) AND triggered_at >= ?
		ORDER BY triggered_at DESC LIMIT 1`,
		ruleID, string(alerting.StatusTriggered), string(alerting.StatusAcknowledged), since)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromAlertRow(&row)
}

func (r *AlertRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id,
		`UPDATE alert_instances SET status = ?, acknowledged_at = ? WHERE id = ? AND status = ?`,
		string(alerting.StatusAcknowledged), at, id, string(alerting.StatusTriggered))
}

func (r *AlertRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id,
		`UPDATE alert_instances SET status = ?, resolved_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(alerting.StatusResolved), at, id,
		string(alerting.StatusTriggered), string(alerting.StatusAcknowledged))
}

func (r *AlertRepository) transition(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update alert %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *AlertRepository) SetEscalationLevel(ctx context.Context, id string, level int) error {
	return r.transition(ctx, id,
		`UPDATE alert_instances SET escalation_level = ? WHERE id = ?`, level, id)
}

func (r *AlertRepository) MarkFalsePositive(ctx context.Context, id string) error {
	return r.transition(ctx, id,
		`UPDATE alert_instances SET false_positive = 1 WHERE id = ?`, id)
}

func toAlertRow(alert *alerting.AlertInstance) (*alertRow, error) {
	metricValues, err := json.Marshal(alert.MetricValues)
	if err != nil {
		return nil, fmt.Errorf("marshal metric values: %w", err)
	}
	factors, err := json.Marshal(alert.ContributingFactors)
	if err != nil {
		return nil, fmt.Errorf("marshal contributing factors: %w", err)
	}
	actions, err := json.Marshal(alert.SuggestedActions)
	if err != nil {
		return nil, fmt.Errorf("marshal suggested actions: %w", err)
	}
	return &alertRow{
		ID:                  alert.ID,
		ConfigurationID:     alert.ConfigurationID,
		RuleID:              alert.RuleID,
		Status:              string(alert.Status),
		Severity:            string(alert.Severity),
		Title:               alert.Title,
		Description:         alert.Description,
		TriggeredAt:         alert.TriggeredAt,
		AcknowledgedAt:      alert.AcknowledgedAt,
		ResolvedAt:          alert.ResolvedAt,
		MetricValues:        string(metricValues),
		ContributingFactors: string(factors),
		SuggestedActions:    string(actions),
		Confidence:          alert.Confidence,
		EscalationLevel:     alert.EscalationLevel,
		FalsePositive:       alert.FalsePositive,
	}, nil
}

func fromAlertRow(row *alertRow) (*alerting.AlertInstance, error) {
	alert := &alerting.AlertInstance{
		ID:              row.ID,
		ConfigurationID: row.ConfigurationID,
		RuleID:          row.RuleID,
		Status:          alerting.AlertStatus(row.Status),
		Severity:        alerting.Severity(row.Severity),
		Title:           row.Title,
		Description:     row.Description,
		TriggeredAt:     row.TriggeredAt,
		AcknowledgedAt:  row.AcknowledgedAt,
		ResolvedAt:      row.ResolvedAt,
		Confidence:      row.Confidence,
		EscalationLevel: row.EscalationLevel,
		FalsePositive:   row.FalsePositive,
	}
	if err := json.Unmarshal([]byte(row.MetricValues), &alert.MetricValues); err != nil {
		return nil, fmt.Errorf("unmarshal metric values for %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.ContributingFactors), &alert.ContributingFactors); err != nil {
		return nil, fmt.Errorf("unmarshal contributing factors for %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.SuggestedActions), &alert.SuggestedActions); err != nil {
		return nil, fmt.Errorf("unmarshal suggested actions for %s: %w", row.ID, err)
	}
	return alert, nil
}
