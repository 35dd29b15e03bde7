package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
)

// NotificationLogRepository stores delivery attempts.
type NotificationLogRepository struct {
	db *sqlx.DB
}

func NewNotificationLogRepository(db *sqlx.DB) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

func (r *NotificationLogRepository) Append(ctx context.Context, entry *alerting.NotificationLog) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notification_logs
			(id, alert_id, channel, recipient, subject, body, sent_at, status, error, retry_count, escalation)
		VALUES
			(:id, :alert_id, :channel, :recipient, :subject, :body, :sent_at, :status, :error, :retry_count, :escalation)`,
		entry)
	if err != nil {
		return fmt.Errorf("insert notification log %s: %w", entry.ID, err)
	}
	return nil
}

// Update advances status, error, retry count and attempt time. Other columns
// never change after the entry is appended.
func (r *NotificationLogRepository) Update(ctx context.Context, entry *alerting.NotificationLog) error {
	_, err := r.db.NamedExecContext(ctx, `
		UPDATE notification_logs SET
			status = :status, error = :error, retry_count = :retry_count, sent_at = :sent_at
		WHERE id = :id`, entry)
	if err != nil {
		return fmt.Errorf("update notification log %s: %w", entry.ID, err)
	}
	return nil
}

func (r *NotificationLogRepository) ListByAlert(ctx context.Context, alertID string) ([]*alerting.NotificationLog, error) {
	var logs []*alerting.NotificationLog
	err := r.db.SelectContext(ctx, &logs,
		`SELECT * FROM notification_logs WHERE alert_id = ? ORDER BY sent_at`, alertID)
	return logs, err
}

// ListRetryable returns failed entries that have not exhausted their retries.
func (r *NotificationLogRepository) ListRetryable(ctx context.Context, maxRetries int) ([]*alerting.NotificationLog, error) {
	var logs []*alerting.NotificationLog
	err := r.db.SelectContext(ctx, &logs,
		`SELECT * FROM notification_logs WHERE status = ? AND retry_count < ? ORDER BY sent_at`,
		string(alerting.DeliveryFailed), maxRetries)
	return logs, err
}
