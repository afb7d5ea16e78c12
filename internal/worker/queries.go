package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/models"
)

// activeStatuses are the non-terminal delivery states a claim can act on.
var activeStatuses = []string{models.DeliveryStatusPending, models.DeliveryStatusRetrying}

// findDueDeliveries returns deliveries that are ready for an attempt: pending
// rows, or retrying rows whose next_retry_at has passed. Rows under a live
// lease are excluded; an expired lease (crashed worker) makes the row
// claimable again.
func findDueDeliveries(db *gorm.DB, now time.Time, leaseTTL time.Duration, limit int) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	leaseCutoff := now.Add(-leaseTTL)

	due := db.
		Where("status = ?", models.DeliveryStatusPending).
		Or("status = ? AND next_retry_at <= ?", models.DeliveryStatusRetrying, now)

	err := db.
		Where(due).
		Where("claimed_at IS NULL OR claimed_at <= ?", leaseCutoff).
		Order("created_at").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select due deliveries: %w", err)
	}

	return deliveries, nil
}

// claimDelivery attempts the atomic claim: stamp the lease iff the row is
// still due and not leased. Exactly one concurrent caller sees a row
// affected; everyone else observes zero rows and moves on.
func claimDelivery(db *gorm.DB, deliveryID, leaseID uuid.UUID, now time.Time, leaseTTL time.Duration) (bool, error) {
	leaseCutoff := now.Add(-leaseTTL)

	res := db.Model(&models.Delivery{}).
		Where("id = ?", deliveryID).
		Where("status IN ?", activeStatuses).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Where("claimed_at IS NULL OR claimed_at <= ?", leaseCutoff).
		Updates(map[string]interface{}{
			"claimed_at": now,
			"lease_id":   leaseID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", res.Error)
	}

	return res.RowsAffected == 1, nil
}

// loadWebhook loads the webhook a delivery targets. Returns (nil, nil) when
// the webhook was deleted out from under the delivery.
func loadWebhook(db *gorm.DB, webhookID uuid.UUID) (*models.Webhook, error) {
	var webhook models.Webhook
	err := db.Where("id = ?", webhookID).First(&webhook).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load webhook: %w", err)
	}
	return &webhook, nil
}

// markSuccess finalizes a delivery as succeeded and bumps the webhook's
// success counters in the same transaction.
func markSuccess(db *gorm.DB, delivery *models.Delivery, result *AttemptResult, attemptCount int, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Delivery{}).
			Where("id = ? AND status IN ?", delivery.ID, activeStatuses).
			Updates(map[string]interface{}{
				"status":               models.DeliveryStatusSuccess,
				"attempt_count":        attemptCount,
				"response_status_code": result.HTTPStatus,
				"response_body":        result.ResponseBody,
				"response_time_ms":     result.LatencyMs,
				"error_message":        nil,
				"next_retry_at":        nil,
				"claimed_at":           nil,
				"lease_id":             nil,
				"delivered_at":         now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark delivery succeeded: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Already terminal; counters must not move.
			return nil
		}

		err := tx.Model(&models.Webhook{}).
			Where("id = ?", delivery.WebhookID).
			Updates(map[string]interface{}{
				"successful_deliveries": gorm.Expr("successful_deliveries + 1"),
				"last_success_at":       now,
				"updated_at":            now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update webhook success counters: %w", err)
		}
		return nil
	})
}

// markRetrying records a failed attempt that still has retry budget and
// schedules the next one.
func markRetrying(db *gorm.DB, delivery *models.Delivery, result *AttemptResult, attemptCount int, nextRetryAt time.Time, errorMessage *string) error {
	err := db.Model(&models.Delivery{}).
		Where("id = ? AND status IN ?", delivery.ID, activeStatuses).
		Updates(map[string]interface{}{
			"status":               models.DeliveryStatusRetrying,
			"attempt_count":        attemptCount,
			"response_status_code": result.HTTPStatus,
			"response_body":        result.ResponseBody,
			"response_time_ms":     result.LatencyMs,
			"error_message":        errorMessage,
			"next_retry_at":        nextRetryAt,
			"claimed_at":           nil,
			"lease_id":             nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark delivery retrying: %w", err)
	}
	return nil
}

// markFailed finalizes a delivery whose retry budget is exhausted and bumps
// the webhook's failure counters in the same transaction.
func markFailed(db *gorm.DB, delivery *models.Delivery, result *AttemptResult, attemptCount int, errorMessage *string, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Delivery{}).
			Where("id = ? AND status IN ?", delivery.ID, activeStatuses).
			Updates(map[string]interface{}{
				"status":               models.DeliveryStatusFailed,
				"attempt_count":        attemptCount,
				"response_status_code": result.HTTPStatus,
				"response_body":        result.ResponseBody,
				"response_time_ms":     result.LatencyMs,
				"error_message":        errorMessage,
				"next_retry_at":        nil,
				"claimed_at":           nil,
				"lease_id":             nil,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark delivery failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		err := tx.Model(&models.Webhook{}).
			Where("id = ?", delivery.WebhookID).
			Updates(map[string]interface{}{
				"failed_deliveries": gorm.Expr("failed_deliveries + 1"),
				"last_failure_at":   now,
				"updated_at":        now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update webhook failure counters: %w", err)
		}
		return nil
	})
}

// markCancelled terminates a delivery whose webhook was deactivated or
// deleted before dispatch. No HTTP attempt was consumed and the webhook's
// failure counter is deliberately left alone.
func markCancelled(db *gorm.DB, delivery *models.Delivery, reason string) error {
	err := db.Model(&models.Delivery{}).
		Where("id = ? AND status IN ?", delivery.ID, activeStatuses).
		Updates(map[string]interface{}{
			"status":        models.DeliveryStatusFailed,
			"error_message": reason,
			"next_retry_at": nil,
			"claimed_at":    nil,
			"lease_id":      nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel delivery: %w", err)
	}
	return nil
}
