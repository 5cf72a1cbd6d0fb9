package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fairlead/disclosure-backend/internal/logger"
	"github.com/fairlead/disclosure-backend/internal/pkg/httpx"
	"github.com/fairlead/disclosure-backend/internal/repos"
	"github.com/fairlead/disclosure-backend/internal/types"
)

// SubmissionNotifier is called after a form transitions to submitted.
// Failures are logged, never propagated to the submitter: the submission
// itself already committed.
type SubmissionNotifier interface {
	NotifySubmitted(ctx context.Context, record *types.FormRecord) error
}

type webhookNotifier struct {
	log          *logger.Logger
	client       *http.Client
	url          string
	deliveryRepo repos.WebhookDeliveryRepo
}

// NewWebhookNotifier posts a submission event to the configured URL with
// bounded retries. An empty URL yields a no-op notifier.
func NewWebhookNotifier(log *logger.Logger, url string, deliveryRepo repos.WebhookDeliveryRepo) SubmissionNotifier {
	if url == "" {
		return noopNotifier{}
	}
	return &webhookNotifier{
		log:          log.With("service", "WebhookNotifier"),
		client:       &http.Client{Timeout: 10 * time.Second},
		url:          url,
		deliveryRepo: deliveryRepo,
	}
}

type noopNotifier struct{}

func (noopNotifier) NotifySubmitted(context.Context, *types.FormRecord) error { return nil }

func (w *webhookNotifier) NotifySubmitted(ctx context.Context, record *types.FormRecord) error {
	payload, err := json.Marshal(map[string]any{
		"event":        "form.submitted",
		"record_id":    record.ID.String(),
		"form_type":    record.FormType,
		"submitted_at": record.SubmittedAt,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	delivery := &types.WebhookDelivery{
		RecordID: record.ID,
		URL:      w.url,
		Status:   types.DeliveryPending,
	}
	if created, cErr := w.deliveryRepo.Create(ctx, nil, []*types.WebhookDelivery{delivery}); cErr != nil {
		w.log.Warn("Failed to record webhook delivery", "record_id", record.ID.String(), "error", cErr)
	} else {
		delivery = created[0]
	}

	var lastErr error
	attempts := 0
	backoff := 300 * time.Millisecond
	for attempt := 1; attempt <= 3; attempt++ {
		attempts = attempt
		lastErr = w.post(ctx, payload)
		if lastErr == nil {
			now := time.Now().UTC()
			_ = w.deliveryRepo.UpdateFields(ctx, nil, delivery.ID, map[string]interface{}{
				"status":       types.DeliveryDelivered,
				"attempts":     attempt,
				"delivered_at": now,
				"updated_at":   now,
			})
			return nil
		}
		if attempt == 3 || !httpx.IsRetryableError(lastErr) {
			break
		}
		// Honor an explicit Retry-After over our own backoff schedule.
		wait := httpx.JitterSleep(backoff)
		var se *webhookStatusError
		if errors.As(lastErr, &se) && se.retryAfter > 0 {
			wait = se.retryAfter
		}
		select {
		case <-ctx.Done():
			attempt = 3
		case <-time.After(wait):
			backoff *= 2
		}
	}

	_ = w.deliveryRepo.UpdateFields(ctx, nil, delivery.ID, map[string]interface{}{
		"status":     types.DeliveryFailed,
		"attempts":   attempts,
		"last_error": lastErr.Error(),
		"updated_at": time.Now().UTC(),
	})
	return fmt.Errorf("webhook delivery to %s failed: %w", w.url, lastErr)
}

type webhookStatusError struct {
	status     int
	retryAfter time.Duration
}

func (e *webhookStatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d", e.status)
}

func (e *webhookStatusError) HTTPStatusCode() int { return e.status }

func (w *webhookNotifier) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &webhookStatusError{
		status:     resp.StatusCode,
		retryAfter: httpx.RetryAfterDuration(resp, 0, 30*time.Second),
	}
}
