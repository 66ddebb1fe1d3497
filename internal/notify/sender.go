package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"signbridge-server/internal/config"
	"signbridge-server/internal/logger"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NewSender picks the transport from configuration. A nil Sender means
// email is disabled.
func NewSender(cfg config.MailerConfig, development bool, log *logger.Logger) (Sender, error) {
	switch cfg.Transport {
	case "none":
		return nil, nil
	case "log":
		return NewLogSender(log), nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			if development {
				log.WithComponent("notify").Warn("RESEND_API_KEY not set, logging emails instead")
				return NewLogSender(log), nil
			}
			return nil, fmt.Errorf("RESEND_API_KEY is required for the resend transport")
		}
		return NewResendSender(cfg.ResendBaseURL, cfg.ResendAPIKey, cfg.DefaultFrom, nil), nil
	}
	return nil, fmt.Errorf("unknown mailer transport %q", cfg.Transport)
}

// ResendSender posts messages to the Resend HTTP API.
type ResendSender struct {
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
}

// NewResendSender creates a sender. A nil client gets a 10 second timeout.
func NewResendSender(baseURL, apiKey, from string, client *http.Client) *ResendSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ResendSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		from:    from,
		client:  client,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

func (s *ResendSender) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" || msg.Subject == "" || msg.HTML == "" {
		return "", fmt.Errorf("resend: recipient, subject and html body are required")
	}

	body, err := json.Marshal(resendRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", fmt.Errorf("resend: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("resend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("resend: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("resend: decode response: %w", err)
	}
	return out.ID, nil
}

// LogSender writes messages to the log. Development only.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) (string, error) {
	id := "log-" + uuid.New().String()
	s.log.WithComponent("notify").WithFields(map[string]any{
		"to":         msg.To,
		"subject":    msg.Subject,
		"message_id": id,
	}).Info("email (development mode)\n" + msg.Text)
	return id, nil
}
