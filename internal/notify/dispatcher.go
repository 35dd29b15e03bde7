package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/atrium-ops/bms-backend-go/internal/alerting"
)

// DeliveryResult is the outcome of one channel delivery call.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Message is a rendered notification ready for delivery.
type Message struct {
	Subject string
	Body    string
	HTML    bool
}

// ChannelDispatcher performs the delivery call for one channel type.
// Implementations must honor the context deadline; a timed-out call is a
// failure eligible for retry, never a success.
type ChannelDispatcher interface {
	Type() alerting.ChannelType
	Deliver(ctx context.Context, target string, msg Message, alert *alerting.AlertInstance, config map[string]string) DeliveryResult
}

// DispatcherRegistry maps channel types to dispatcher implementations. New
// channels register here instead of growing conditional chains in the router.
type DispatcherRegistry struct {
	mu          sync.RWMutex
	dispatchers map[alerting.ChannelType]ChannelDispatcher
}

// NewDispatcherRegistry creates an empty registry.
func NewDispatcherRegistry() *DispatcherRegistry {
	return &DispatcherRegistry{dispatchers: make(map[alerting.ChannelType]ChannelDispatcher)}
}

// Register adds or replaces a dispatcher for its channel type.
func (r *DispatcherRegistry) Register(d ChannelDispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchers[d.Type()] = d
}

// Get returns the dispatcher for a channel type. An unknown type is a
// configuration error that must be fixed, not retried.
func (r *DispatcherRegistry) Get(t alerting.ChannelType) (ChannelDispatcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dispatchers[t]
	if !ok {
		return nil, fmt.Errorf("unsupported channel type %q", t)
	}
	return d, nil
}

// EmailProvider is the external email gateway consumed by the email dispatcher.
type EmailProvider interface {
	SendEmail(ctx context.Context, to, subject, body string, html bool) (messageID string, err error)
}

// SMSProvider is the external SMS gateway consumed by the SMS dispatcher.
type SMSProvider interface {
	SendSMS(ctx context.Context, to, body string) (messageID string, err error)
}

// EmailDispatcher delivers alert notifications via an email provider.
type EmailDispatcher struct {
	provider EmailProvider
}

func NewEmailDispatcher(provider EmailProvider) *EmailDispatcher {
	return &EmailDispatcher{provider: provider}
}

func (d *EmailDispatcher) Type() alerting.ChannelType { return alerting.ChannelEmail }

func (d *EmailDispatcher) Deliver(ctx context.Context, target string, msg Message, _ *alerting.AlertInstance, _ map[string]string) DeliveryResult {
	id, err := d.provider.SendEmail(ctx, target, msg.Subject, msg.Body, msg.HTML)
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	return DeliveryResult{Success: true, MessageID: id}
}

// SMSDispatcher delivers alert notifications via an SMS provider. The subject
// is prepended to keep the short message self-contained.
type SMSDispatcher struct {
	provider SMSProvider
}

func NewSMSDispatcher(provider SMSProvider) *SMSDispatcher {
	return &SMSDispatcher{provider: provider}
}

func (d *SMSDispatcher) Type() alerting.ChannelType { return alerting.ChannelSMS }

func (d *SMSDispatcher) Deliver(ctx context.Context, target string, msg Message, _ *alerting.AlertInstance, _ map[string]string) DeliveryResult {
	id, err := d.provider.SendSMS(ctx, target, msg.Subject+": "+msg.Body)
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	return DeliveryResult{Success: true, MessageID: id}
}

// WebhookPayload is the JSON body posted to external systems.
type WebhookPayload struct {
	AlertID      string                    `json:"alert_id"`
	AlertTitle   string                    `json:"alert_title"`
	Severity     alerting.Severity         `json:"severity"`
	TriggeredAt  time.Time                 `json:"triggered_at"`
	Description  string                    `json:"description"`
	MetricValues []alerting.MetricSnapshot `json:"metric_values"`
	DashboardURL string                    `json:"dashboard_url,omitempty"`
	CustomFields WebhookCustomFields       `json:"custom_fields"`
}

// WebhookCustomFields carries routing metadata for the receiving system.
type WebhookCustomFields struct {
	ConfigurationID string `json:"configuration_id"`
	RuleID          string `json:"rule_id"`
	EscalationLevel int    `json:"escalation_level"`
}

// WebhookDispatcher posts the alert payload to the channel's configured URL.
type WebhookDispatcher struct {
	client *http.Client
}

func NewWebhookDispatcher(client *http.Client) *WebhookDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookDispatcher{client: client}
}

func (d *WebhookDispatcher) Type() alerting.ChannelType { return alerting.ChannelWebhook }

func (d *WebhookDispatcher) Deliver(ctx context.Context, target string, _ Message, alert *alerting.AlertInstance, config map[string]string) DeliveryResult {
	url := target
	if url == "" {
		url = config["url"]
	}
	if url == "" {
		return DeliveryResult{Error: "webhook url not configured"}
	}

	payload := WebhookPayload{
		AlertID:      alert.ID,
		AlertTitle:   alert.Title,
		Severity:     alert.Severity,
		TriggeredAt:  alert.TriggeredAt,
		Description:  alert.Description,
		MetricValues: alert.MetricValues,
		DashboardURL: config["dashboard_url"],
		CustomFields: WebhookCustomFields{
			ConfigurationID: alert.ConfigurationID,
			RuleID:          alert.RuleID,
			EscalationLevel: alert.EscalationLevel,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return DeliveryResult{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return DeliveryResult{Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DeliveryResult{Error: fmt.Sprintf("webhook returned status %d", resp.StatusCode)}
	}
	return DeliveryResult{Success: true, MessageID: resp.Header.Get("X-Request-Id")}
}
