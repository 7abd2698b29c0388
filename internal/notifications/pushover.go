// internal/notifications/pushover.go - Pushover notification sink
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"

	"github.com/sirupsen/logrus"
	"netsentry/internal/config"
)

const UserAgent = "netsentry/1.0"

// PushoverSink posts events to the Pushover messages API.
type PushoverSink struct {
	config     config.PushoverConfig
	httpClient *http.Client
	title      *template.Template
	message    *template.Template
}

// PushoverMessage represents a message sent to Pushover API
type PushoverMessage struct {
	Token     string `json:"token"`
	User      string `json:"user"`
	Message   string `json:"message"`
	Title     string `json:"title,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Retry     int    `json:"retry,omitempty"`
	Expire    int    `json:"expire,omitempty"`
	Sound     string `json:"sound,omitempty"`
	Device    string `json:"device,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// PushoverResponse represents the API response
type PushoverResponse struct {
	Status int      `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

func NewPushoverSink(cfg config.PushoverConfig, httpClient *http.Client) (*PushoverSink, error) {
	title, err := template.New("title").Parse(cfg.Title)
	if err != nil {
		return nil, fmt.Errorf("failed to parse title template: %w", err)
	}
	message, err := template.New("message").Parse(cfg.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message template: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &PushoverSink{
		config:     cfg,
		httpClient: httpClient,
		title:      title,
		message:    message,
	}, nil
}

func (p *PushoverSink) Name() string { return "pushover" }

func (p *PushoverSink) Send(ctx context.Context, event Event) error {
	message, err := p.buildMessage(event)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}
	return p.post(ctx, message)
}

func (p *PushoverSink) buildMessage(event Event) (*PushoverMessage, error) {
	var title, body bytes.Buffer
	if err := p.title.Execute(&title, event); err != nil {
		return nil, fmt.Errorf("failed to render title: %w", err)
	}
	if err := p.message.Execute(&body, event); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	priority := p.config.Priorities[string(event.Severity)]
	message := &PushoverMessage{
		Token:     p.config.APIToken,
		User:      p.config.UserKey,
		Title:     title.String(),
		Message:   body.String(),
		Priority:  priority,
		Sound:     p.config.Sound,
		Device:    p.config.Device,
		Timestamp: event.Timestamp.Unix(),
	}

	// Emergency priority requires retry and expire
	if priority == 2 {
		message.Retry = p.config.Retry
		message.Expire = p.config.Expire
	}

	return message, nil
}

func (p *PushoverSink) post(ctx context.Context, message *PushoverMessage) error {
	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var pushoverResp PushoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&pushoverResp); err != nil {
		return fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if pushoverResp.Status != 1 {
		return fmt.Errorf("pushover API error (HTTP %d): %v", resp.StatusCode, pushoverResp.Errors)
	}

	logrus.WithFields(logrus.Fields{
		"title":    message.Title,
		"priority": message.Priority,
	}).Debug("Pushover notification sent")

	return nil
}
