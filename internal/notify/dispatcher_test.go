package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
)

func TestDispatcherRegistry(t *testing.T) {
	registry := NewDispatcherRegistry()

	_, err := registry.Get(alerting.ChannelEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported channel type")

	registry.Register(newFakeDispatcher(alerting.ChannelEmail))
	d, err := registry.Get(alerting.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, alerting.ChannelEmail, d.Type())
}

func TestWebhookDispatcher_Payload(t *testing.T) {
	var got WebhookPayload
	var contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("X-Request-Id", "req-42")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	alert := testAlert(alerting.SeverityCritical)
	alert.EscalationLevel = 1

	d := NewWebhookDispatcher(srv.Client())
	result := d.Deliver(context.Background(), srv.URL, Message{}, alert, map[string]string{"dashboard_url": "https://bms.example.com/alerts/alert-1"})

	require.True(t, result.Success)
	assert.Equal(t, "req-42", result.MessageID)
	assert.Equal(t, "application/json", contentType)

	assert.Equal(t, "alert-1", got.AlertID)
	assert.Equal(t, "Server room temperature high", got.AlertTitle)
	assert.Equal(t, alerting.SeverityCritical, got.Severity)
	assert.Equal(t, "https://bms.example.com/alerts/alert-1", got.DashboardURL)
	assert.Equal(t, "cfg-1", got.CustomFields.ConfigurationID)
	assert.Equal(t, "rule-1", got.CustomFields.RuleID)
	assert.Equal(t, 1, got.CustomFields.EscalationLevel)
	require.Len(t, got.MetricValues, 1)
	assert.InDelta(t, 31.5, got.MetricValues[0].Value, 0.001)
}

func TestWebhookDispatcher_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.Client())
	result := d.Deliver(context.Background(), srv.URL, Message{}, testAlert(alerting.SeverityHigh), nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "502")
}

func TestWebhookDispatcher_MissingURL(t *testing.T) {
	d := NewWebhookDispatcher(nil)
	result := d.Deliver(context.Background(), "", Message{}, testAlert(alerting.SeverityHigh), nil)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "url not configured")
}

func TestWebhookDispatcher_FallsBackToChannelConfigURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.Client())
	result := d.Deliver(context.Background(), "", Message{}, testAlert(alerting.SeverityHigh), map[string]string{"url": srv.URL})
	assert.True(t, result.Success)
}

func TestHTTPSMSProvider(t *testing.T) {
	var gotAuth string
	var gotReq smsGatewayRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(smsGatewayResponse{MessageID: "sms-7"})
	}))
	defer srv.Close()

	p := NewHTTPSMSProvider(SMSGatewayConfig{URL: srv.URL, APIKey: "key-1", From: "BMS"}, srv.Client())
	id, err := p.SendSMS(context.Background(), "+15551234567", "[HIGH] Temp: details")

	require.NoError(t, err)
	assert.Equal(t, "sms-7", id)
	assert.Equal(t, "Bearer key-1", gotAuth)
	assert.Equal(t, "+15551234567", gotReq.To)
	assert.Equal(t, "BMS", gotReq.From)
	assert.Equal(t, "[HIGH] Temp: details", gotReq.Body)
}

func TestHTTPSMSProvider_NotConfigured(t *testing.T) {
	p := NewHTTPSMSProvider(SMSGatewayConfig{}, nil)
	_, err := p.SendSMS(context.Background(), "+15551234567", "body")
	assert.Error(t, err)
}
