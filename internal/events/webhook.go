package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier posts completed audits as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	client     *http.Client
	url        string
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, maxRetries int, logger *slog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &WebhookNotifier{
		client:     &http.Client{Timeout: timeout},
		url:        url,
		maxRetries: maxRetries,
		backoff:    time.Second,
		logger:     logger.With("component", "webhook_notifier"),
	}
}

// Notify delivers payload, retrying on transport errors and non-2xx
// responses with a linearly growing pause.
func (n *WebhookNotifier) Notify(ctx context.Context, payload *AuditCompletedPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.maxRetries; attempt++ {
		lastErr = n.post(ctx, body)
		if lastErr == nil {
			n.logger.Info("audit forwarded", "run_id", payload.RunID, "attempt", attempt)
			return nil
		}

		n.logger.Warn("webhook delivery failed", "run_id", payload.RunID, "attempt", attempt, "error", lastErr)
		if attempt == n.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * n.backoff):
		}
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", n.maxRetries, lastErr)
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
