package models

import (
	"encoding/json"
	"time"
)

// SourceEvent is an incoming platform event from an upstream producer
// (query engine, dashboard service, alert engine), whether received over
// the message-queue ingress or triggered in-process.
type SourceEvent struct {
	EventType EventType       `json:"event_type"`
	TenantID  string          `json:"tenant_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}
