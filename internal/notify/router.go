package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
	"github.com/atrium-ops/bms-backend-go/internal/metrics"
)

// Router selects eligible (recipient, channel) pairs for an alert and
// dispatches deliveries through the registered channel dispatchers.
type Router struct {
	registry        *DispatcherRegistry
	limiter         *FrequencyLimiter
	logger          *logrus.Logger
	dispatchTimeout time.Duration

	// now is replaceable for tests.
	now func() time.Time
}

// NewRouter creates a notification router.
func NewRouter(registry *DispatcherRegistry, limiter *FrequencyLimiter, dispatchTimeout time.Duration, logger *logrus.Logger) *Router {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 15 * time.Second
	}
	return &Router{
		registry:        registry,
		limiter:         limiter,
		logger:          logger,
		dispatchTimeout: dispatchTimeout,
		now:             time.Now,
	}
}

// delivery is one (channel, target) pair selected for dispatch.
type delivery struct {
	channel alerting.ChannelConfig
	target  string
	msg     Message
}

// SendAlertNotifications routes one alert to all eligible recipients and
// channels. Every dispatch produces exactly one log entry with a terminal
// sent/failed status; a failure on one pair never prevents attempts on the
// others. Only a structurally invalid call errors.
func (r *Router) SendAlertNotifications(ctx context.Context, settings *alerting.NotificationSettings, alert *alerting.AlertInstance) ([]*alerting.NotificationLog, error) {
	if settings == nil {
		return nil, fmt.Errorf("notification settings are required")
	}
	if alert == nil {
		return nil, fmt.Errorf("alert is required")
	}

	now := r.now()

	if r.quietHoursSuppress(settings.QuietHours, alert, now) {
		r.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"severity": alert.Severity,
		}).Info("Notifications suppressed by quiet hours")
		return []*alerting.NotificationLog{}, nil
	}

	if r.limiter != nil {
		if !r.limiter.Reserve(alert.ConfigurationID, alert.RuleID, settings.FrequencyLimits, now) {
			r.logger.WithFields(logrus.Fields{
				"alert_id":         alert.ID,
				"configuration_id": alert.ConfigurationID,
			}).Info("Notifications suppressed by frequency limits")
			return []*alerting.NotificationLog{}, nil
		}
	}

	msg := BuildMessage(alert)
	deliveries := r.selectDeliveries(settings, alert, msg, now)
	return r.dispatchAll(ctx, alert, deliveries), nil
}

// selectDeliveries applies channel eligibility and recipient filtering.
func (r *Router) selectDeliveries(settings *alerting.NotificationSettings, alert *alerting.AlertInstance, msg Message, now time.Time) []delivery {
	var out []delivery

	for _, channel := range settings.Channels {
		if !channel.Enabled || !channel.AllowsSeverity(alert.Severity) {
			continue
		}

		// Webhooks address an endpoint, not a person.
		if channel.Type == alerting.ChannelWebhook {
			out = append(out, delivery{channel: channel, target: channel.Config["url"], msg: msg})
			continue
		}

		for _, rec := range settings.Recipients {
			if !recipientAcceptsChannel(rec, alert.Severity, channel.Type) {
				continue
			}
			if !onCallNow(rec, now) {
				continue
			}
			contact, ok := verifiedContact(rec, channel.Type)
			if !ok {
				r.logger.WithFields(logrus.Fields{
					"recipient": rec.ID,
					"channel":   channel.Type,
				}).Debug("Skipping recipient without verified contact method")
				continue
			}
			out = append(out, delivery{channel: channel, target: contact.Address, msg: msg})
		}
	}
	return out
}

// dispatchAll issues deliveries in parallel and collects logs in completion
// order. Each dispatch gets its own bounded timeout.
func (r *Router) dispatchAll(ctx context.Context, alert *alerting.AlertInstance, deliveries []delivery) []*alerting.NotificationLog {
	if len(deliveries) == 0 {
		return []*alerting.NotificationLog{}
	}

	results := make(chan *alerting.NotificationLog, len(deliveries))
	for _, d := range deliveries {
		go func(d delivery) {
			results <- r.dispatch(ctx, alert, d)
		}(d)
	}

	logs := make([]*alerting.NotificationLog, 0, len(deliveries))
	for range deliveries {
		logs = append(logs, <-results)
	}
	return logs
}

// dispatch performs a single delivery call and returns its log entry with a
// terminal status. It is also the primitive the escalation path reuses.
func (r *Router) dispatch(ctx context.Context, alert *alerting.AlertInstance, d delivery) *alerting.NotificationLog {
	entry := &alerting.NotificationLog{
		ID:         uuid.New().String(),
		AlertID:    alert.ID,
		Channel:    d.channel.Type,
		Recipient:  d.target,
		Subject:    d.msg.Subject,
		Body:       d.msg.Body,
		SentAt:     r.now(),
		Status:     alerting.DeliveryPending,
		Escalation: alert.EscalationLevel,
	}

	dispatcher, err := r.registry.Get(d.channel.Type)
	if err != nil {
		// Unsupported channel is a misconfiguration: fail loudly in the log
		// entry and in the application log.
		entry.Status = alerting.DeliveryFailed
		entry.Error = err.Error()
		r.logger.WithError(err).WithField("alert_id", alert.ID).Error("Notification dispatch failed")
		metrics.NotificationsTotal.WithLabelValues(string(d.channel.Type), string(entry.Status)).Inc()
		return entry
	}

	callCtx, cancel := context.WithTimeout(ctx, r.dispatchTimeout)
	defer cancel()

	result := dispatcher.Deliver(callCtx, d.target, d.msg, alert, d.channel.Config)
	if result.Success {
		entry.Status = alerting.DeliverySent
	} else {
		entry.Status = alerting.DeliveryFailed
		entry.Error = result.Error
		r.logger.WithFields(logrus.Fields{
			"alert_id":  alert.ID,
			"channel":   d.channel.Type,
			"recipient": d.target,
			"error":     result.Error,
		}).Error("Notification delivery failed")
	}
	metrics.NotificationsTotal.WithLabelValues(string(d.channel.Type), string(entry.Status)).Inc()
	return entry
}

// quietHoursSuppress reports whether quiet hours suppress this alert. Critical
// alerts and configured exceptions always pass.
func (r *Router) quietHoursSuppress(q alerting.QuietHours, alert *alerting.AlertInstance, now time.Time) bool {
	if !q.Enabled {
		return false
	}
	if alert.Severity == alerting.SeverityCritical {
		return false
	}
	for _, id := range q.Exceptions {
		if id == alert.ID {
			return false
		}
	}

	loc := time.Local
	if q.Timezone != "" {
		if l, err := time.LoadLocation(q.Timezone); err == nil {
			loc = l
		} else {
			r.logger.WithError(err).WithField("timezone", q.Timezone).Warn("Invalid quiet hours timezone, using local time")
		}
	}

	start, err1 := parseClock(q.Start)
	end, err2 := parseClock(q.End)
	if err1 != nil || err2 != nil {
		r.logger.Warn("Invalid quiet hours window, ignoring")
		return false
	}

	return inClockWindow(now.In(loc), start, end)
}

// parseClock parses "15:04" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// inClockWindow reports whether now falls in [start, end) minutes-of-day,
// supporting overnight wraparound such as 22:00-06:00.
func inClockWindow(now time.Time, start, end int) bool {
	minutes := now.Hour()*60 + now.Minute()
	if start == end {
		return false
	}
	if start < end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}

func recipientAcceptsChannel(rec alerting.Recipient, severity alerting.Severity, channel alerting.ChannelType) bool {
	channels, ok := rec.ChannelsByPriority[severity]
	if !ok {
		return false
	}
	for _, c := range channels {
		if c == channel {
			return true
		}
	}
	return false
}

func verifiedContact(rec alerting.Recipient, channel alerting.ChannelType) (alerting.ContactMethod, bool) {
	for _, cm := range rec.ContactMethods {
		if cm.Channel == channel && cm.Verified {
			return cm, true
		}
	}
	return alerting.ContactMethod{}, false
}

// onCallNow reports whether the recipient's on-call schedule covers now. A
// recipient without a schedule is always reachable.
func onCallNow(rec alerting.Recipient, now time.Time) bool {
	if len(rec.OnCall) == 0 {
		return true
	}
	for _, w := range rec.OnCall {
		start, err1 := parseClock(w.Start)
		end, err2 := parseClock(w.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if !inClockWindow(now, start, end) {
			continue
		}
		// For overnight windows the early-morning part belongs to the
		// previous day's shift.
		day := now.Weekday()
		minutes := now.Hour()*60 + now.Minute()
		if start > end && minutes < end {
			day = (day + 6) % 7
		}
		for _, d := range w.Days {
			if d == day {
				return true
			}
		}
	}
	return false
}

// BuildMessage renders the standard notification for an alert.
func BuildMessage(alert *alerting.AlertInstance) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", alert.Description)
	for _, mv := range alert.MetricValues {
		fmt.Fprintf(&b, "%s: %.2f (threshold %.2f)\n", mv.MetricType, mv.Value, mv.Threshold)
	}
	if len(alert.ContributingFactors) > 0 {
		fmt.Fprintf(&b, "\nContributing factors: %s\n", strings.Join(alert.ContributingFactors, ", "))
	}
	if len(alert.SuggestedActions) > 0 {
		b.WriteString("\nSuggested actions:\n")
		for _, a := range alert.SuggestedActions {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	fmt.Fprintf(&b, "\nConfidence: %.0f%%\n", alert.Confidence*100)

	return Message{
		Subject: fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title),
		Body:    b.String(),
	}
}
