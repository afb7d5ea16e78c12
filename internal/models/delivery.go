package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Delivery statuses. A delivery is created pending, moves to retrying after a
// failed attempt with retry budget left, and ends in success or failed. The
// terminal states are never mutated again.
const (
	DeliveryStatusPending  = "pending"
	DeliveryStatusRetrying = "retrying"
	DeliveryStatusSuccess  = "success"
	DeliveryStatusFailed   = "failed"
)

// Delivery is one attempt-series record for sending a single event to a
// single webhook. The payload is captured at trigger time and immutable.
type Delivery struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	WebhookID uuid.UUID       `gorm:"type:uuid;not null;index" json:"webhook_id"`
	EventType string          `gorm:"not null" json:"event_type"`
	Payload   json.RawMessage `gorm:"type:jsonb" json:"payload"`

	Status       string `gorm:"not null;default:'pending';index" json:"status"`
	AttemptCount int    `gorm:"not null;default:0" json:"attempt_count"`
	MaxAttempts  int    `gorm:"not null" json:"max_attempts"`

	// Outcome of the most recent attempt.
	ResponseStatusCode *int    `json:"response_status_code"`
	ResponseBody       *string `gorm:"type:text" json:"response_body"`
	ResponseTimeMs     *int    `json:"response_time_ms"`
	ErrorMessage       *string `json:"error_message"`

	// NextRetryAt is non-null iff status is retrying.
	NextRetryAt *time.Time `gorm:"index" json:"next_retry_at"`

	// Claim marker. A poller instance that wins the conditional claim update
	// stamps these; they are cleared by the post-attempt transition so an
	// expired lease lets another instance reclaim the row.
	ClaimedAt *time.Time `json:"-"`
	LeaseID   *uuid.UUID `gorm:"type:uuid" json:"-"`

	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
}

func (Delivery) TableName() string {
	return "deliveries"
}

// IsTerminal reports whether the delivery reached a final state.
func (d *Delivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusFailed
}
