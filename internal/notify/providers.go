package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig configures the SMTP email provider.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// SMTPEmailProvider sends email through a plain SMTP relay.
type SMTPEmailProvider struct {
	cfg SMTPConfig
}

// NewSMTPEmailProvider creates an SMTP-backed email provider.
func NewSMTPEmailProvider(cfg SMTPConfig) *SMTPEmailProvider {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPEmailProvider{cfg: cfg}
}

// SendEmail delivers one message. net/smtp has no context support, so the
// deadline is enforced by the caller's dispatch timeout; a hung relay
// surfaces as a failed, retryable delivery.
func (p *SMTPEmailProvider) SendEmail(ctx context.Context, to, subject, body string, html bool) (string, error) {
	if p.cfg.Host == "" {
		return "", fmt.Errorf("smtp host not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	contentType := "text/plain; charset=utf-8"
	if html {
		contentType = "text/html; charset=utf-8"
	}
	messageID := uuid.New().String()

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", p.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", messageID, p.cfg.Host)
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
	b.WriteString("\r\n")
	b.WriteString(body)

	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)
	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, p.cfg.From, []string{to}, []byte(b.String())); err != nil {
		return "", fmt.Errorf("send mail: %w", err)
	}
	return messageID, nil
}

// SMSGatewayConfig configures the HTTP SMS gateway provider.
type SMSGatewayConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
}

// HTTPSMSProvider sends SMS through a JSON HTTP gateway.
type HTTPSMSProvider struct {
	cfg    SMSGatewayConfig
	client *http.Client
}

// NewHTTPSMSProvider creates a gateway-backed SMS provider.
func NewHTTPSMSProvider(cfg SMSGatewayConfig, client *http.Client) *HTTPSMSProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSMSProvider{cfg: cfg, client: client}
}

type smsGatewayRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

type smsGatewayResponse struct {
	MessageID string `json:"message_id"`
}

// SendSMS posts one message to the gateway.
func (p *HTTPSMSProvider) SendSMS(ctx context.Context, to, body string) (string, error) {
	if p.cfg.URL == "" {
		return "", fmt.Errorf("sms gateway url not configured")
	}

	payload, err := json.Marshal(smsGatewayRequest{To: to, From: p.cfg.From, Body: body})
	if err != nil {
		return "", fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var out smsGatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}
	return out.MessageID, nil
}
