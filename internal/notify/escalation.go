package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/metrics"
)

// HandleEscalation fires the next escalation stage for an unacknowledged
// alert. It returns the delivery logs of the stage, or an empty slice when the
// stage is not yet due, the policy is exhausted, or acknowledgment skips it.
// On fire the alert's escalation level advances to the stage level.
func (r *Router) HandleEscalation(ctx context.Context, settings *alerting.NotificationSettings, alert *alerting.AlertInstance, policy *alerting.EscalationPolicy, currentLevel int) ([]*alerting.NotificationLog, error) {
	if alert == nil {
		return nil, fmt.Errorf("alert is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("escalation policy is required")
	}

	if currentLevel >= policy.MaxEscalations {
		return []*alerting.NotificationLog{}, nil
	}

	stage := policy.StageForLevel(currentLevel + 1)
	if stage == nil {
		return []*alerting.NotificationLog{}, nil
	}

	if alert.Status == alerting.StatusAcknowledged && stage.SkipIfAcknowledged {
		r.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"level":    stage.Level,
		}).Debug("Escalation skipped, alert acknowledged")
		return []*alerting.NotificationLog{}, nil
	}

	elapsed := r.now().Sub(lastNotificationAt(alert))
	if elapsed < stage.Delay {
		return []*alerting.NotificationLog{}, nil
	}

	alert.EscalationLevel = stage.Level
	msg := BuildEscalationMessage(alert, stage)

	var deliveries []delivery
	for _, chType := range stage.Channels {
		channel := channelConfigFor(settings, chType)

		if chType == alerting.ChannelWebhook {
			deliveries = append(deliveries, delivery{channel: channel, target: channel.Config["url"], msg: msg})
			continue
		}
		for _, rec := range stage.Recipients {
			contact, ok := verifiedContact(rec, chType)
			if !ok {
				continue
			}
			deliveries = append(deliveries, delivery{channel: channel, target: contact.Address, msg: msg})
		}
	}

	logs := r.dispatchAll(ctx, alert, deliveries)
	if len(logs) > 0 {
		metrics.EscalationsTotal.Inc()
		r.logger.WithFields(logrus.Fields{
			"alert_id":   alert.ID,
			"level":      stage.Level,
			"deliveries": len(logs),
		}).Warn("Alert escalated")
	}
	return logs, nil
}

// lastNotificationAt returns the time of the most recent delivery attempt,
// falling back to the trigger time.
func lastNotificationAt(alert *alerting.AlertInstance) time.Time {
	last := alert.TriggeredAt
	for _, n := range alert.Notifications {
		if n.SentAt.After(last) {
			last = n.SentAt
		}
	}
	return last
}

// channelConfigFor finds the configured channel of the given type; escalation
// stages may reference channels the routine path has disabled, so a minimal
// enabled config is synthesized when missing.
func channelConfigFor(settings *alerting.NotificationSettings, t alerting.ChannelType) alerting.ChannelConfig {
	if settings != nil {
		for _, c := range settings.Channels {
			if c.Type == t {
				return c
			}
		}
	}
	return alerting.ChannelConfig{Type: t, Enabled: true}
}

// BuildEscalationMessage renders the elevated template with an explicit level
// marker.
func BuildEscalationMessage(alert *alerting.AlertInstance, stage *alerting.EscalationStage) Message {
	base := BuildMessage(alert)
	body := base.Body
	if stage.Message != "" {
		body = stage.Message + "\n\n" + body
	}
	return Message{
		Subject: fmt.Sprintf("[ESCALATION L%d]%s", stage.Level, base.Subject),
		Body:    fmt.Sprintf("Escalation level %d. This alert remains unacknowledged.\n\n%s", stage.Level, body),
	}
}

// EscalationScheduler owns the per-alert escalation timers. Scheduling is
// keyed by alert id; cancellation is idempotent so acknowledging or resolving
// an alert can always cancel safely.
type EscalationScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	logger *logrus.Logger
}

// NewEscalationScheduler creates an empty scheduler.
func NewEscalationScheduler(logger *logrus.Logger) *EscalationScheduler {
	return &EscalationScheduler{timers: make(map[string]*time.Timer), logger: logger}
}

// Schedule arms (or re-arms) the escalation task for an alert. The task runs
// once after delay unless cancelled first.
func (s *EscalationScheduler) Schedule(alertID string, delay time.Duration, task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[alertID]; ok {
		t.Stop()
	}
	s.timers[alertID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, alertID)
		s.mu.Unlock()
		task()
	})

	s.logger.WithFields(logrus.Fields{
		"alert_id": alertID,
		"delay":    delay,
	}).Debug("Escalation scheduled")
}

// Cancel stops any pending escalation for the alert. Cancelling an unknown or
// already-fired alert id is a no-op.
func (s *EscalationScheduler) Cancel(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[alertID]; ok {
		t.Stop()
		delete(s.timers, alertID)
		s.logger.WithField("alert_id", alertID).Debug("Escalation cancelled")
	}
}

// Stop cancels all pending escalations.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
