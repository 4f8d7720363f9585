package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"batchplane/internal/batch"
	"batchplane/pkg/api"
)

// WebhookNotifier posts the execution event as JSON, retrying failed
// deliveries with exponential backoff.
type WebhookNotifier struct {
	url         string
	client      *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

func NewWebhookNotifier(url string, timeout time.Duration, maxRetries int) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 3
	}
	return &WebhookNotifier{
		url:         url,
		client:      &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		baseBackoff: 500 * time.Millisecond,
	}
}

func (w *WebhookNotifier) SetRecipientEmail(string) {}

func (w *WebhookNotifier) Notify(ctx context.Context, definition *batch.JobDefinition, execution *batch.JobExecution) error {
	body, err := json.Marshal(api.NewExecutionEvent(execution))
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			lastErr = errors.New(resp.Status)
		} else {
			lastErr = err
		}

		if attempt == w.maxRetries {
			break
		}
		// exponential backoff with a small linear jitter
		backoff := w.baseBackoff*(1<<attempt) + time.Duration(attempt*50)*time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
