package notify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/metrics"
)

// maxBackoff caps the exponential retry backoff.
const maxBackoff = 60 * time.Second

// Backoff returns the minimum wait before retry attempt n: min(2^n seconds, 60s).
func Backoff(retryCount int) time.Duration {
	if retryCount >= 6 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(retryCount)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// RetryFailedNotifications re-attempts failed deliveries with exponential
// backoff. An entry is eligible when its status is failed, its retry count is
// below maxRetries, and the backoff window since the last attempt has elapsed.
// Entries that exhaust maxRetries remain permanently failed and are excluded
// from further sweeps; they are reported, not silently dropped. The returned
// slice holds the entries attempted in this sweep.
func (r *Router) RetryFailedNotifications(ctx context.Context, settings *alerting.NotificationSettings, alert *alerting.AlertInstance, logs []*alerting.NotificationLog, maxRetries int) []*alerting.NotificationLog {
	now := r.now()
	retried := make([]*alerting.NotificationLog, 0)

	for _, entry := range logs {
		if entry.Status != alerting.DeliveryFailed {
			continue
		}
		if entry.RetryCount >= maxRetries {
			r.logger.WithFields(logrus.Fields{
				"log_id":    entry.ID,
				"channel":   entry.Channel,
				"recipient": entry.Recipient,
			}).Warn("Notification permanently failed, retries exhausted")
			metrics.RetriesTotal.WithLabelValues("exhausted").Inc()
			continue
		}
		if now.Sub(entry.SentAt) < Backoff(entry.RetryCount) {
			continue
		}

		r.retryOne(ctx, settings, alert, entry)
		retried = append(retried, entry)
	}
	return retried
}

// retryOne re-invokes the channel dispatcher for a single failed entry,
// advancing its retry count and status in place.
func (r *Router) retryOne(ctx context.Context, settings *alerting.NotificationSettings, alert *alerting.AlertInstance, entry *alerting.NotificationLog) {
	entry.RetryCount++
	entry.SentAt = r.now()

	dispatcher, err := r.registry.Get(entry.Channel)
	if err != nil {
		entry.Error = err.Error()
		metrics.RetriesTotal.WithLabelValues("failed").Inc()
		r.logger.WithError(err).WithField("log_id", entry.ID).Error("Notification retry failed")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	defer cancel()

	msg := Message{Subject: entry.Subject, Body: entry.Body}
	result := dispatcher.Deliver(callCtx, entry.Recipient, msg, alert, channelConfigFor(settings, entry.Channel).Config)
	if result.Success {
		entry.Status = alerting.DeliverySent
		entry.Error = ""
		metrics.RetriesTotal.WithLabelValues("sent").Inc()
		r.logger.WithFields(logrus.Fields{
			"log_id":      entry.ID,
			"channel":     entry.Channel,
			"retry_count": entry.RetryCount,
		}).Info("Notification retry succeeded")
		return
	}

	entry.Error = result.Error
	metrics.RetriesTotal.WithLabelValues("failed").Inc()
	r.logger.WithFields(logrus.Fields{
		"log_id":      entry.ID,
		"channel":     entry.Channel,
		"retry_count": entry.RetryCount,
		"error":       result.Error,
	}).Warn("Notification retry failed")
}
