package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/database/sqlite"
)

// AlertConfigurationRepository persists alert configurations.
type AlertConfigurationRepository interface {
	Create(ctx context.Context, cfg *alerting.AlertConfiguration) error
	Update(ctx context.Context, cfg *alerting.AlertConfiguration) error
	GetByID(ctx context.Context, id string) (*alerting.AlertConfiguration, error)
	ListActive(ctx context.Context) ([]*alerting.AlertConfiguration, error)
	List(ctx context.Context) ([]*alerting.AlertConfiguration, error)
	SetStatus(ctx context.Context, id string, status alerting.ConfigurationStatus) error
}

// AlertInstanceRepository persists triggered alerts. OpenAlertForRule is the
// single consistent read used for duplicate suppression.
type AlertInstanceRepository interface {
	Create(ctx context.Context, alert *alerting.AlertInstance) error
	GetByID(ctx context.Context, id string) (*alerting.AlertInstance, error)
	ListByStatus(ctx context.Context, status alerting.AlertStatus) ([]*alerting.AlertInstance, error)
	OpenAlertForRule(ruleID string, since time.Time) (*alerting.AlertInstance, error)
	Acknowledge(ctx context.Context, id string, at time.Time) error
	Resolve(ctx context.Context, id string, at time.Time) error
	SetEscalationLevel(ctx context.Context, id string, level int) error
	MarkFalsePositive(ctx context.Context, id string) error
}

// NotificationLogRepository persists delivery attempts. Entries are
// append-only except for the retry manager's status/retry_count updates.
type NotificationLogRepository interface {
	Append(ctx context.Context, entry *alerting.NotificationLog) error
	Update(ctx context.Context, entry *alerting.NotificationLog) error
	ListByAlert(ctx context.Context, alertID string) ([]*alerting.NotificationLog, error)
	ListRetryable(ctx context.Context, maxRetries int) ([]*alerting.NotificationLog, error)
}

// SensorReadingRepository reads the telemetry snapshot source.
type SensorReadingRepository interface {
	Insert(ctx context.Context, reading *alerting.SensorReading) error
	ReadingsSince(ctx context.Context, since time.Time) ([]alerting.SensorReading, error)
}

// Repositories bundles all repository implementations.
type Repositories struct {
	Configurations AlertConfigurationRepository
	Alerts         AlertInstanceRepository
	Notifications  NotificationLogRepository
	Readings       SensorReadingRepository
}

// NewRepositories creates SQLite-backed repositories.
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Configurations: sqlite.NewConfigurationRepository(db),
		Alerts:         sqlite.NewAlertRepository(db),
		Notifications:  sqlite.NewNotificationLogRepository(db),
		Readings:       sqlite.NewReadingRepository(db),
	}
}
