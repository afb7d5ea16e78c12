package worker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/models"
)

// TestResult is the synchronous outcome of a manual test delivery.
type TestResult struct {
	Success        bool    `json:"success"`
	StatusCode     *int    `json:"status_code"`
	ResponseTimeMs int     `json:"response_time_ms"`
	ResponseBody   string  `json:"response_body"`
	ErrorMessage   *string `json:"error_message"`
}

// SendTest performs exactly one signed POST against the webhook's endpoint
// for configuration validation. Nothing is persisted and no counter moves;
// the raw outcome is returned to the caller.
func (e *Executor) SendTest(webhook *models.Webhook, eventType string, data json.RawMessage) *TestResult {
	now := time.Now().UTC()

	if len(data) == 0 {
		data = json.RawMessage(`{"test":true}`)
	}

	body, err := BuildPayload(eventType, webhook.ID.String(), data, now)
	if err != nil {
		msg := err.Error()
		return &TestResult{ErrorMessage: &msg}
	}

	signature, err := Sign(body, webhook.Secret)
	if err != nil {
		msg := err.Error()
		return &TestResult{ErrorMessage: &msg}
	}

	// A throwaway delivery id: test deliveries have no row, but receivers
	// still get a unique X-Webhook-Delivery value.
	result := postPayload(
		e.client,
		webhook.URL,
		body,
		signature,
		eventType,
		uuid.New().String(),
		e.cfg.MaxResponseBodySize,
		e.logger.With(zap.String("webhook_id", webhook.ID.String())),
	)

	return &TestResult{
		Success:        result.Succeeded(),
		StatusCode:     result.HTTPStatus,
		ResponseTimeMs: result.LatencyMs,
		ResponseBody:   result.ResponseBody,
		ErrorMessage:   result.ErrorText(),
	}
}
