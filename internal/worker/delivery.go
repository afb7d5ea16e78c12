package worker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/metrics"
	"github.com/insightops/webhook-engine/internal/models"
)

// Executor performs delivery attempts: it signs the canonical payload, POSTs
// it to the webhook's endpoint and applies the resulting state transition.
type Executor struct {
	db      *gorm.DB
	cfg     *config.WorkerConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
	client  *http.Client
}

// NewExecutor creates an executor sharing one HTTP client with the configured
// hard request timeout.
func NewExecutor(db *gorm.DB, cfg *config.WorkerConfig, logger *zap.Logger, m *metrics.Metrics) *Executor {
	return &Executor{
		db:      db,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}
}

// Deliver runs one attempt for a claimed delivery. The claim guarantees no
// other worker touches the row while this runs; the post-attempt transition
// releases the lease.
func (e *Executor) Deliver(delivery models.Delivery) {
	log := e.logger.With(
		zap.String("delivery_id", delivery.ID.String()),
		zap.String("webhook_id", delivery.WebhookID.String()),
		zap.String("event_type", delivery.EventType),
	)

	webhook, err := loadWebhook(e.db, delivery.WebhookID)
	if err != nil {
		// Leave the row leased; the lease expires and another poll retries.
		log.Error("Failed to load webhook for delivery", zap.Error(err))
		return
	}

	// Deactivation or deletion mid-flight cancels the delivery without
	// consuming an HTTP attempt or counting as an outbound failure.
	if webhook == nil {
		log.Info("Webhook deleted, cancelling delivery")
		if err := markCancelled(e.db, &delivery, "webhook deleted"); err != nil {
			log.Error("Failed to cancel delivery", zap.Error(err))
		}
		e.metrics.ObserveAttempt("cancelled", 0)
		return
	}
	if !webhook.IsActive {
		log.Info("Webhook deactivated, cancelling delivery")
		if err := markCancelled(e.db, &delivery, "webhook deactivated"); err != nil {
			log.Error("Failed to cancel delivery", zap.Error(err))
		}
		e.metrics.ObserveAttempt("cancelled", 0)
		return
	}

	now := time.Now().UTC()
	body, err := BuildPayload(delivery.EventType, webhook.ID.String(), delivery.Payload, now)
	if err != nil {
		log.Error("Failed to build delivery payload", zap.Error(err))
		return
	}

	signature, err := Sign(body, webhook.Secret)
	if err != nil {
		log.Error("Failed to sign delivery payload", zap.Error(err))
		return
	}

	result := postPayload(
		e.client,
		webhook.URL,
		body,
		signature,
		delivery.EventType,
		delivery.ID.String(),
		e.cfg.MaxResponseBodySize,
		log,
	)

	attemptCount := delivery.AttemptCount + 1
	transition := ProcessResult(result, attemptCount, delivery.MaxAttempts, webhook.RetryBackoffSeconds, time.Now().UTC())
	e.applyTransition(log, &delivery, result, attemptCount, transition)
}

func (e *Executor) applyTransition(log *zap.Logger, delivery *models.Delivery, result *AttemptResult, attemptCount int, transition Transition) {
	now := time.Now().UTC()

	switch transition.Status {
	case models.DeliveryStatusSuccess:
		if err := markSuccess(e.db, delivery, result, attemptCount, now); err != nil {
			log.Error("Failed to record delivery success", zap.Error(err))
			return
		}
		e.metrics.ObserveAttempt("success", result.LatencyMs)
		log.Info("Webhook delivery succeeded",
			zap.Int("attempt_count", attemptCount),
			zap.Intp("http_status", result.HTTPStatus),
			zap.Int("latency_ms", result.LatencyMs),
		)

	case models.DeliveryStatusRetrying:
		if err := markRetrying(e.db, delivery, result, attemptCount, *transition.NextRetryAt, transition.ErrorMessage); err != nil {
			log.Error("Failed to record delivery retry", zap.Error(err))
			return
		}
		e.metrics.ObserveAttempt("retrying", result.LatencyMs)
		log.Info("Webhook delivery will be retried",
			zap.Int("attempt_count", attemptCount),
			zap.Time("next_retry_at", *transition.NextRetryAt),
			zap.Stringp("last_error", transition.ErrorMessage),
		)

	case models.DeliveryStatusFailed:
		if err := markFailed(e.db, delivery, result, attemptCount, transition.ErrorMessage, now); err != nil {
			log.Error("Failed to record delivery failure", zap.Error(err))
			return
		}
		e.metrics.ObserveAttempt("failed", result.LatencyMs)
		log.Warn("Webhook delivery failed (max attempts reached)",
			zap.Int("attempt_count", attemptCount),
			zap.Stringp("last_error", transition.ErrorMessage),
		)
	}
}
