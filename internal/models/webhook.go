package models

import (
	"time"

	"github.com/google/uuid"
)

// Webhook is a tenant-owned subscription: which events to deliver, where to
// deliver them, and how hard to retry.
type Webhook struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;index" json:"tenant_id"`
	UserID      uuid.UUID `gorm:"type:uuid;not null" json:"user_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	URL         string    `gorm:"not null" json:"url"`
	Secret      string    `gorm:"not null" json:"-"` // shared HMAC key, returned only on create
	Events      []string  `gorm:"serializer:json;not null" json:"events"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`

	// Retry policy. MaxRetries is the number of retries after the first
	// attempt, so a delivery gets max_retries+1 attempts in total.
	MaxRetries          int `gorm:"not null;default:3" json:"max_retries"`
	RetryBackoffSeconds int `gorm:"not null;default:60" json:"retry_backoff_seconds"`

	// Aggregate counters, bumped atomically at the store level.
	TotalDeliveries      int64      `gorm:"not null;default:0" json:"total_deliveries"`
	SuccessfulDeliveries int64      `gorm:"not null;default:0" json:"successful_deliveries"`
	FailedDeliveries     int64      `gorm:"not null;default:0" json:"failed_deliveries"`
	LastTriggeredAt      *time.Time `json:"last_triggered_at"`
	LastSuccessAt        *time.Time `json:"last_success_at"`
	LastFailureAt        *time.Time `json:"last_failure_at"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Webhook) TableName() string {
	return "webhooks"
}

// SubscribesTo reports whether the webhook's event set contains eventType.
func (w *Webhook) SubscribesTo(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
