package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink posts each event as a JSON document to an HTTP endpoint.
type WebhookSink struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// NewWebhookSink creates a sink posting to url. Extra headers are sent
// with every request.
func NewWebhookSink(url string, timeout time.Duration, headers map[string]string) *WebhookSink {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		headers: headers,
	}
}

// Record posts the event. Any non-2xx response is an error.
func (s *WebhookSink) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post to %s failed: %w", s.url, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", s.url, resp.StatusCode)
	}
	return nil
}
