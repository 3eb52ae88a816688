// Package notify publishes push notifications through ntfy so persistent
// device errors reach someone even when no dashboard is open.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ntfy.sh"

type Publisher struct {
	client  *http.Client
	baseURL string
	topic   string
}

type Option func(*Publisher)

// WithBaseURL points the publisher at a self-hosted ntfy instance.
func WithBaseURL(baseURL string) Option {
	return func(p *Publisher) { p.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithClient overrides the HTTP client.
func WithClient(client *http.Client) Option {
	return func(p *Publisher) { p.client = client }
}

func New(topic string, opts ...Option) *Publisher {
	p := &Publisher{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
		topic:   topic,
	}
	for _, opt := range opts {
		opt(p)
	}
	log.Info().Str("topic", topic).Msg("Ntfy notifications enabled")
	return p
}

// Send publishes one notification to the configured topic.
func (p *Publisher) Send(title, message string) error {
	payload := map[string]any{
		"topic":   p.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, p.baseURL+"/"+p.topic, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")
	return nil
}
