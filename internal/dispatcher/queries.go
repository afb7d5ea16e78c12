package dispatcher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/models"
)

// findSubscribedWebhooks loads the tenant's active webhooks whose event set
// contains eventType. The events column is a JSON document, so the set
// membership check runs in application code over the tenant's active rows;
// the subscriber list is bounded, tenant-owned configuration.
func findSubscribedWebhooks(db *gorm.DB, tenantID uuid.UUID, eventType string) ([]models.Webhook, error) {
	var active []models.Webhook
	err := db.Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Find(&active).Error
	if err != nil {
		return nil, err
	}

	matched := make([]models.Webhook, 0, len(active))
	for _, webhook := range active {
		if webhook.SubscribesTo(eventType) {
			matched = append(matched, webhook)
		}
	}
	return matched, nil
}

// createPendingDelivery inserts one pending delivery row and, in the same
// transaction, bumps the webhook's total counter and trigger timestamp. The
// counter bump is an atomic store-level increment so concurrent fan-outs of
// the same webhook stay correct.
func createPendingDelivery(db *gorm.DB, webhook *models.Webhook, eventType string, payload json.RawMessage) (*models.Delivery, error) {
	now := time.Now().UTC()
	delivery := &models.Delivery{
		ID:           uuid.New(),
		WebhookID:    webhook.ID,
		EventType:    eventType,
		Payload:      payload,
		Status:       models.DeliveryStatusPending,
		AttemptCount: 0,
		MaxAttempts:  webhook.MaxRetries + 1,
		CreatedAt:    now,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(delivery).Error; err != nil {
			return fmt.Errorf("failed to insert delivery: %w", err)
		}

		err := tx.Model(&models.Webhook{}).
			Where("id = ?", webhook.ID).
			Updates(map[string]interface{}{
				"total_deliveries":  gorm.Expr("total_deliveries + 1"),
				"last_triggered_at": now,
				"updated_at":        now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update webhook trigger counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return delivery, nil
}
