package worker

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeliveryPayload is the canonical outbound body. The signature is computed
// over exactly these serialized bytes; receivers recompute the HMAC over the
// raw body they read off the wire.
type DeliveryPayload struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	WebhookID string          `json:"webhook_id"`
	Data      json.RawMessage `json:"data"`
}

// BuildPayload serializes the canonical payload for one outbound attempt.
// The timestamp is the generation time of this attempt, RFC3339 UTC.
func BuildPayload(eventType, webhookID string, data json.RawMessage, now time.Time) ([]byte, error) {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	payload := DeliveryPayload{
		Event:     eventType,
		Timestamp: now.UTC().Format(time.RFC3339),
		WebhookID: webhookID,
		Data:      data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal delivery payload: %w", err)
	}
	return body, nil
}
