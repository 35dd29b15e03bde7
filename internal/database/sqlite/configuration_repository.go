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

// ConfigurationRepository stores alert configurations. Rules and notification
// settings are serialized as JSON documents; the relational columns cover the
// fields queries filter on.
type ConfigurationRepository struct {
	db *sqlx.DB
}

func NewConfigurationRepository(db *sqlx.DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

type configurationRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Description    string    `db:"description"`
	Status         string    `db:"status"`
	Category       string    `db:"category"`
	BusinessImpact string    `db:"business_impact"`
	Rules          string    `db:"rules"`
	Notifications  string    `db:"notifications"`
	CreatedBy      string    `db:"created_by"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r *ConfigurationRepository) Create(ctx context.Context, cfg *alerting.AlertConfiguration) error {
	row, err := toConfigurationRow(cfg)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO alert_configurations
			(id, name, description, status, category, business_impact, rules, notifications, created_by, created_at, updated_at)
		VALUES
			(:id, :name, :description, :status, :category, :business_impact, :rules, :notifications, :created_by, :created_at, :updated_at)`,
		row)
	if err != nil {
		return fmt.Errorf("insert configuration %s: %w", cfg.ID, err)
	}
	return nil
}

func (r *ConfigurationRepository) Update(ctx context.Context, cfg *alerting.AlertConfiguration) error {
	cfg.UpdatedAt = time.Now().UTC()
	row, err := toConfigurationRow(cfg)
	if err != nil {
		return err
	}
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE alert_configurations SET
			name = :name, description = :description, status = :status,
			category = :category, business_impact = :business_impact,
			rules = :rules, notifications = :notifications, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("update configuration %s: %w", cfg.ID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *ConfigurationRepository) GetByID(ctx context.Context, id string) (*alerting.AlertConfiguration, error) {
	var row configurationRow
	if err := r.db.GetContext(ctx, &row, `SELECT * FROM alert_configurations WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return fromConfigurationRow(&row)
}

func (r *ConfigurationRepository) ListActive(ctx context.Context) ([]*alerting.AlertConfiguration, error) {
	return r.list(ctx, `SELECT * FROM alert_configurations WHERE status = ? ORDER BY created_at`, string(alerting.ConfigurationActive))
}

func (r *ConfigurationRepository) List(ctx context.Context) ([]*alerting.AlertConfiguration, error) {
	return r.list(ctx, `SELECT * FROM alert_configurations ORDER BY created_at`)
}

func (r *ConfigurationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*alerting.AlertConfiguration, error) {
	var rows []configurationRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	configs := make([]*alerting.AlertConfiguration, 0, len(rows))
	for i := range rows {
		cfg, err := fromConfigurationRow(&rows[i])
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func (r *ConfigurationRepository) SetStatus(ctx context.Context, id string, status alerting.ConfigurationStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alert_configurations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set status for configuration %s: %w", id, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func toConfigurationRow(cfg *alerting.AlertConfiguration) (*configurationRow, error) {
	rules, err := json.Marshal(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("marshal rules: %w", err)
	}
	notifications, err := json.Marshal(cfg.Notifications)
	if err != nil {
		return nil, fmt.Errorf("marshal notification settings: %w", err)
	}
	return &configurationRow{
		ID:             cfg.ID,
		Name:           cfg.Name,
		Description:    cfg.Description,
		Status:         string(cfg.Status),
		Category:       cfg.Category,
		BusinessImpact: cfg.BusinessImpact,
		Rules:          string(rules),
		Notifications:  string(notifications),
		CreatedBy:      cfg.CreatedBy,
		CreatedAt:      cfg.CreatedAt,
		UpdatedAt:      cfg.UpdatedAt,
	}, nil
}

func fromConfigurationRow(row *configurationRow) (*alerting.AlertConfiguration, error) {
	cfg := &alerting.AlertConfiguration{
		ID:             row.ID,
		Name:           row.Name,
		Description:    row.Description,
		Status:         alerting.ConfigurationStatus(row.Status),
		Category:       row.Category,
		BusinessImpact: row.BusinessImpact,
		CreatedBy:      row.CreatedBy,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Rules), &cfg.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules for %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Notifications), &cfg.Notifications); err != nil {
		return nil, fmt.Errorf("unmarshal notification settings for %s: %w", row.ID, err)
	}
	return cfg, nil
}
