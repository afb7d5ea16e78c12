package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/metrics"
	"github.com/insightops/webhook-engine/internal/models"
)

// Dispatcher fans a platform event out to every active webhook subscribed to
// its event type, creating one pending delivery row per match. The rows are
// independent: a failed insert for one webhook never rolls back the others.
type Dispatcher struct {
	db      *gorm.DB
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(db *gorm.DB, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{db: db, logger: logger, metrics: m}
}

// TriggerEvent creates pending deliveries for every active, subscribed
// webhook of the tenant. Producers never learn delivery outcomes from this
// call; failures during fan-out are logged and the remaining targets proceed.
// The dispatcher performs no deduplication.
func (d *Dispatcher) TriggerEvent(tenantID uuid.UUID, eventType models.EventType, payload json.RawMessage) ([]models.Delivery, error) {
	webhooks, err := findSubscribedWebhooks(d.db, tenantID, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribed webhooks: %w", err)
	}

	if len(webhooks) == 0 {
		d.logger.Debug("No active webhooks subscribed to event",
			zap.String("tenant_id", tenantID.String()),
			zap.String("event_type", string(eventType)),
		)
		return nil, nil
	}

	deliveries := make([]models.Delivery, 0, len(webhooks))
	for _, webhook := range webhooks {
		delivery, err := createPendingDelivery(d.db, &webhook, string(eventType), payload)
		if err != nil {
			// Partial fan-out is acceptable; each target is independent.
			d.logger.Error("Failed to create delivery during fan-out",
				zap.String("webhook_id", webhook.ID.String()),
				zap.String("event_type", string(eventType)),
				zap.Error(err),
			)
			continue
		}
		if d.metrics != nil {
			d.metrics.DeliveriesCreated.Inc()
		}
		deliveries = append(deliveries, *delivery)
	}

	d.logger.Info("Event dispatched",
		zap.String("tenant_id", tenantID.String()),
		zap.String("event_type", string(eventType)),
		zap.Int("matched_webhooks", len(webhooks)),
		zap.Int("created_deliveries", len(deliveries)),
	)
	return deliveries, nil
}

// HandleEvent implements the consumer.EventHandler interface for the
// message-queue ingress: upstream producers publish SourceEvent JSON and the
// dispatcher turns each message into a fan-out.
func (d *Dispatcher) HandleEvent(message []byte) error {
	var event models.SourceEvent
	if err := json.Unmarshal(message, &event); err != nil {
		d.logger.Error("Failed to unmarshal source event",
			zap.Error(err),
			zap.ByteString("message", message),
		)
		// Malformed messages are not retryable.
		return nil
	}

	eventType, err := models.ParseEventType(string(event.EventType))
	if err != nil {
		d.logger.Error("Source event has unknown event type",
			zap.String("event_type", string(event.EventType)),
		)
		return nil
	}

	tenantID, err := uuid.Parse(event.TenantID)
	if err != nil {
		d.logger.Error("Source event has invalid tenant id",
			zap.String("tenant_id", event.TenantID),
		)
		return nil
	}

	if _, err := d.TriggerEvent(tenantID, eventType, event.Payload); err != nil {
		return fmt.Errorf("failed to dispatch source event: %w", err)
	}
	return nil
}
