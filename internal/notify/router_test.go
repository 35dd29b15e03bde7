package notify

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeDispatcher records deliveries and returns a canned result per target.
type fakeDispatcher struct {
	mu       sync.Mutex
	channel  alerting.ChannelType
	failFor  map[string]string
	delivers []string
}

func newFakeDispatcher(channel alerting.ChannelType) *fakeDispatcher {
	return &fakeDispatcher{channel: channel, failFor: make(map[string]string)}
}

func (f *fakeDispatcher) Type() alerting.ChannelType { return f.channel }

func (f *fakeDispatcher) Deliver(_ context.Context, target string, _ Message, _ *alerting.AlertInstance, _ map[string]string) DeliveryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivers = append(f.delivers, target)
	if msg, ok := f.failFor[target]; ok {
		return DeliveryResult{Error: msg}
	}
	return DeliveryResult{Success: true, MessageID: "msg-1"}
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivers)
}

func testRecipient(id, email string) alerting.Recipient {
	return alerting.Recipient{
		ID:   id,
		Name: id,
		ContactMethods: []alerting.ContactMethod{
			{Channel: alerting.ChannelEmail, Address: email, Verified: true},
		},
		ChannelsByPriority: map[alerting.Severity][]alerting.ChannelType{
			alerting.SeverityCritical: {alerting.ChannelEmail},
			alerting.SeverityHigh:     {alerting.ChannelEmail},
		},
	}
}

func testSettings(recipients ...alerting.Recipient) *alerting.NotificationSettings {
	return &alerting.NotificationSettings{
		Channels: []alerting.ChannelConfig{{
			Type:           alerting.ChannelEmail,
			Enabled:        true,
			PriorityFilter: []alerting.Severity{alerting.SeverityCritical, alerting.SeverityHigh},
		}},
		Recipients: recipients,
	}
}

func testAlert(severity alerting.Severity) *alerting.AlertInstance {
	return &alerting.AlertInstance{
		ID:              "alert-1",
		ConfigurationID: "cfg-1",
		RuleID:          "rule-1",
		Status:          alerting.StatusTriggered,
		Severity:        severity,
		Title:           "Server room temperature high",
		Description:     "1 of 1 conditions met",
		TriggeredAt:     time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		MetricValues: []alerting.MetricSnapshot{
			{ConditionID: "c1", MetricType: "temperature", Value: 31.5, Threshold: 27, Deviation: 4.5},
		},
		Confidence: 0.9,
	}
}

func newTestRouter(dispatchers ...ChannelDispatcher) *Router {
	registry := NewDispatcherRegistry()
	for _, d := range dispatchers {
		registry.Register(d)
	}
	return NewRouter(registry, NewFrequencyLimiter(), time.Second, testLogger())
}

func TestRouter_SendAlertNotifications(t *testing.T) {
	email := newFakeDispatcher(alerting.ChannelEmail)
	r := newTestRouter(email)

	logs, err := r.SendAlertNotifications(context.Background(), testSettings(testRecipient("rec1", "ops@example.com")), testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, alerting.DeliverySent, entry.Status)
	assert.Equal(t, "ops@example.com", entry.Recipient)
	assert.Equal(t, alerting.ChannelEmail, entry.Channel)
	assert.Equal(t, "[HIGH] Server room temperature high", entry.Subject)
	assert.NotEmpty(t, entry.Body)
	assert.Equal(t, []string{"ops@example.com"}, email.delivers)
}

func TestRouter_SendAlertNotifications_NilArguments(t *testing.T) {
	r := newTestRouter()

	_, err := r.SendAlertNotifications(context.Background(), nil, testAlert(alerting.SeverityHigh))
	assert.Error(t, err)

	_, err = r.SendAlertNotifications(context.Background(), testSettings(), nil)
	assert.Error(t, err)
}

func TestRouter_SeverityFilter(t *testing.T) {
	email := newFakeDispatcher(alerting.ChannelEmail)
	r := newTestRouter(email)

	// The channel only accepts critical and high.
	logs, err := r.SendAlertNotifications(context.Background(), testSettings(testRecipient("rec1", "ops@example.com")), testAlert(alerting.SeverityLow))
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Zero(t, email.count())
}

func TestRouter_QuietHours(t *testing.T) {
	quietSettings := func() *alerting.NotificationSettings {
		s := testSettings(testRecipient("rec1", "ops@example.com"))
		s.QuietHours = alerting.QuietHours{
			Enabled:  true,
			Start:    "22:00",
			End:      "06:00",
			Timezone: "UTC",
		}
		return s
	}

	t.Run("non-critical suppressed overnight", func(t *testing.T) {
		email := newFakeDispatcher(alerting.ChannelEmail)
		r := newTestRouter(email)
		r.now = func() time.Time { return time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC) }

		logs, err := r.SendAlertNotifications(context.Background(), quietSettings(), testAlert(alerting.SeverityHigh))
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("early morning side of the window suppresses", func(t *testing.T) {
		email := newFakeDispatcher(alerting.ChannelEmail)
		r := newTestRouter(email)
		r.now = func() time.Time { return time.Date(2026, 3, 11, 5, 0, 0, 0, time.UTC) }

		logs, err := r.SendAlertNotifications(context.Background(), quietSettings(), testAlert(alerting.SeverityHigh))
		require.NoError(t, err)
		assert.Empty(t, logs)
	})

	t.Run("critical bypasses quiet hours", func(t *testing.T) {
		email := newFakeDispatcher(alerting.ChannelEmail)
		r := newTestRouter(email)
		r.now = func() time.Time { return time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC) }

		logs, err := r.SendAlertNotifications(context.Background(), quietSettings(), testAlert(alerting.SeverityCritical))
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("outside the window delivers", func(t *testing.T) {
		email := newFakeDispatcher(alerting.ChannelEmail)
		r := newTestRouter(email)
		r.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }

		logs, err := r.SendAlertNotifications(context.Background(), quietSettings(), testAlert(alerting.SeverityHigh))
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("exception bypasses quiet hours", func(t *testing.T) {
		email := newFakeDispatcher(alerting.ChannelEmail)
		r := newTestRouter(email)
		r.now = func() time.Time { return time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC) }

		s := quietSettings()
		s.QuietHours.Exceptions = []string{"alert-1"}
		logs, err := r.SendAlertNotifications(context.Background(), s, testAlert(alerting.SeverityHigh))
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
}

func TestRouter_FrequencyLimits(t *testing.T) {
	email := newFakeDispatcher(alerting.ChannelEmail)
	r := newTestRouter(email)

	settings := testSettings(testRecipient("rec1", "ops@example.com"))
	settings.FrequencyLimits = alerting.FrequencyLimits{MaxPerHour: 1}

	logs, err := r.SendAlertNotifications(context.Background(), settings, testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = r.SendAlertNotifications(context.Background(), settings, testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.Equal(t, 1, email.count())
}

func TestRouter_FailureIsolation(t *testing.T) {
	email := newFakeDispatcher(alerting.ChannelEmail)
	email.failFor["bad@example.com"] = "mailbox unavailable"
	r := newTestRouter(email)

	settings := testSettings(
		testRecipient("rec1", "bad@example.com"),
		testRecipient("rec2", "good@example.com"),
	)

	logs, err := r.SendAlertNotifications(context.Background(), settings, testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, logs, 2)

	byRecipient := map[string]*alerting.NotificationLog{}
	for _, l := range logs {
		byRecipient[l.Recipient] = l
	}
	assert.Equal(t, alerting.DeliveryFailed, byRecipient["bad@example.com"].Status)
	assert.Equal(t, "mailbox unavailable", byRecipient["bad@example.com"].Error)
	assert.Equal(t, alerting.DeliverySent, byRecipient["good@example.com"].Status)
}

func TestRouter_UnsupportedChannelFailsLoudly(t *testing.T) {
	r := newTestRouter() // no dispatchers registered

	logs, err := r.SendAlertNotifications(context.Background(), testSettings(testRecipient("rec1", "ops@example.com")), testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, alerting.DeliveryFailed, logs[0].Status)
	assert.Contains(t, logs[0].Error, "unsupported channel type")
}

func TestRouter_WebhookDispatchesOncePerChannel(t *testing.T) {
	webhook := newFakeDispatcher(alerting.ChannelWebhook)
	r := newTestRouter(webhook)

	settings := &alerting.NotificationSettings{
		Channels: []alerting.ChannelConfig{{
			Type:           alerting.ChannelWebhook,
			Enabled:        true,
			Config:         map[string]string{"url": "https://hooks.example.com/bms"},
			PriorityFilter: []alerting.Severity{alerting.SeverityHigh},
		}},
		Recipients: []alerting.Recipient{
			testRecipient("rec1", "a@example.com"),
			testRecipient("rec2", "b@example.com"),
		},
	}

	logs, err := r.SendAlertNotifications(context.Background(), settings, testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "https://hooks.example.com/bms", logs[0].Recipient)
}

func TestRouter_OnCallSchedule(t *testing.T) {
	email := newFakeDispatcher(alerting.ChannelEmail)
	r := newTestRouter(email)
	r.now = func() time.Time { return time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC) } // Tuesday

	onCall := testRecipient("rec1", "oncall@example.com")
	onCall.OnCall = []alerting.OnCallWindow{{
		Days:  []time.Weekday{time.Tuesday},
		Start: "09:00",
		End:   "17:00",
	}}
	offShift := testRecipient("rec2", "offshift@example.com")
	offShift.OnCall = []alerting.OnCallWindow{{
		Days:  []time.Weekday{time.Saturday},
		Start: "09:00",
		End:   "17:00",
	}}

	logs, err := r.SendAlertNotifications(context.Background(), testSettings(onCall, offShift), testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "oncall@example.com", logs[0].Recipient)
}

func TestRouter_OvernightOnCallWindow(t *testing.T) {
	// 02:00 Wednesday belongs to Tuesday's 22:00-06:00 shift.
	now := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC) // Wednesday
	rec := testRecipient("rec1", "night@example.com")
	rec.OnCall = []alerting.OnCallWindow{{
		Days:  []time.Weekday{time.Tuesday},
		Start: "22:00",
		End:   "06:00",
	}}

	assert.True(t, onCallNow(rec, now))

	rec.OnCall[0].Days = []time.Weekday{time.Wednesday}
	assert.False(t, onCallNow(rec, now))
}

func TestRouter_UnverifiedContactSkipped(t *testing.T) {
	email := newFakeDispatcher(alerting.ChannelEmail)
	r := newTestRouter(email)

	rec := testRecipient("rec1", "ops@example.com")
	rec.ContactMethods[0].Verified = false

	logs, err := r.SendAlertNotifications(context.Background(), testSettings(rec), testAlert(alerting.SeverityHigh))
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestBuildMessage(t *testing.T) {
	alert := testAlert(alerting.SeverityCritical)
	alert.ContributingFactors = []string{"Weekend operation"}
	alert.SuggestedActions = []string{"Check temperature readings"}

	msg := BuildMessage(alert)
	assert.Equal(t, "[CRITICAL] Server room temperature high", msg.Subject)
	assert.Contains(t, msg.Body, "temperature: 31.50 (threshold 27.00)")
	assert.Contains(t, msg.Body, "Weekend operation")
	assert.Contains(t, msg.Body, "Check temperature readings")
	assert.Contains(t, msg.Body, "Confidence: 90%")
}
