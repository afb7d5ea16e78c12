package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/models"
)

// Caller-visible failures, mapped to HTTP statuses by the handlers.
var (
	ErrNotFound           = errors.New("webhook not found")
	ErrDeliveriesInFlight = errors.New("webhook has pending or retrying deliveries")
)

// ValidationError is a registration-time input error. It is returned
// synchronously and never persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	secretBytes       = 32
	minSecretLength   = 16
	maxRetriesLimit   = 10
	minBackoffSeconds = 1
	maxBackoffSeconds = 3600
)

// Registry is tenant-scoped CRUD over webhook definitions.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRegistry(db *gorm.DB, logger *zap.Logger) *Registry {
	return &Registry{db: db, logger: logger}
}

// CreateInput carries the caller-supplied fields for a new webhook.
// Secret is optional; one is generated when omitted.
type CreateInput struct {
	Name                string
	Description         string
	URL                 string
	Events              []string
	MaxRetries          *int
	RetryBackoffSeconds *int
	Secret              string
}

// UpdateInput allows partial mutation. Secret and counters are deliberately
// absent: the secret is immutable outside an explicit rotate operation and
// counters belong to the delivery pipeline.
type UpdateInput struct {
	Name                *string
	Description         *string
	URL                 *string
	Events              []string
	IsActive            *bool
	MaxRetries          *int
	RetryBackoffSeconds *int
}

// Create validates the input, generates a secret if none was supplied and
// persists the webhook active.
func (r *Registry) Create(tenantID, userID uuid.UUID, input CreateInput) (*models.Webhook, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if err := validateURL(input.URL); err != nil {
		return nil, err
	}
	events, err := validateEvents(input.Events)
	if err != nil {
		return nil, err
	}

	maxRetries := 3
	if input.MaxRetries != nil {
		if *input.MaxRetries < 0 || *input.MaxRetries > maxRetriesLimit {
			return nil, &ValidationError{Field: "max_retries", Message: fmt.Sprintf("must be between 0 and %d", maxRetriesLimit)}
		}
		maxRetries = *input.MaxRetries
	}

	backoffSeconds := 60
	if input.RetryBackoffSeconds != nil {
		if *input.RetryBackoffSeconds < minBackoffSeconds || *input.RetryBackoffSeconds > maxBackoffSeconds {
			return nil, &ValidationError{Field: "retry_backoff_seconds", Message: fmt.Sprintf("must be between %d and %d", minBackoffSeconds, maxBackoffSeconds)}
		}
		backoffSeconds = *input.RetryBackoffSeconds
	}

	secret := input.Secret
	if secret == "" {
		secret, err = generateSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate webhook secret: %w", err)
		}
	} else if len(secret) < minSecretLength {
		return nil, &ValidationError{Field: "secret", Message: fmt.Sprintf("must be at least %d characters", minSecretLength)}
	}

	now := time.Now().UTC()
	webhook := &models.Webhook{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		UserID:              userID,
		Name:                strings.TrimSpace(input.Name),
		Description:         input.Description,
		URL:                 input.URL,
		Secret:              secret,
		Events:              events,
		IsActive:            true,
		MaxRetries:          maxRetries,
		RetryBackoffSeconds: backoffSeconds,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := r.db.Create(webhook).Error; err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}

	r.logger.Info("Webhook created",
		zap.String("webhook_id", webhook.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.Strings("events", events),
	)
	return webhook, nil
}

// Get loads one webhook scoped to the tenant.
func (r *Registry) Get(tenantID, webhookID uuid.UUID) (*models.Webhook, error) {
	var webhook models.Webhook
	err := r.db.Where("id = ? AND tenant_id = ?", webhookID, tenantID).First(&webhook).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load webhook: %w", err)
	}
	return &webhook, nil
}

// List returns the tenant's webhooks, newest first.
func (r *Registry) List(tenantID uuid.UUID) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := r.db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&webhooks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}

// Update applies a partial mutation of configuration fields. The secret and
// the aggregate counters can never change through this path.
func (r *Registry) Update(tenantID, webhookID uuid.UUID, input UpdateInput) (*models.Webhook, error) {
	webhook, err := r.Get(tenantID, webhookID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, &ValidationError{Field: "name", Message: "must not be empty"}
		}
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.URL != nil {
		if err := validateURL(*input.URL); err != nil {
			return nil, err
		}
		updates["url"] = *input.URL
	}
	if input.Events != nil {
		events, err := validateEvents(input.Events)
		if err != nil {
			return nil, err
		}
		webhook.Events = events
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.MaxRetries != nil {
		if *input.MaxRetries < 0 || *input.MaxRetries > maxRetriesLimit {
			return nil, &ValidationError{Field: "max_retries", Message: fmt.Sprintf("must be between 0 and %d", maxRetriesLimit)}
		}
		updates["max_retries"] = *input.MaxRetries
	}
	if input.RetryBackoffSeconds != nil {
		if *input.RetryBackoffSeconds < minBackoffSeconds || *input.RetryBackoffSeconds > maxBackoffSeconds {
			return nil, &ValidationError{Field: "retry_backoff_seconds", Message: fmt.Sprintf("must be between %d and %d", minBackoffSeconds, maxBackoffSeconds)}
		}
		updates["retry_backoff_seconds"] = *input.RetryBackoffSeconds
	}

	if input.Events != nil {
		// The events set goes through the model so the JSON serializer runs.
		if err := r.db.Model(webhook).Updates(models.Webhook{Events: webhook.Events}).Error; err != nil {
			return nil, fmt.Errorf("failed to update webhook events: %w", err)
		}
	}
	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := r.db.Model(webhook).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update webhook: %w", err)
		}
	}

	return r.Get(tenantID, webhookID)
}

// Delete hard-deletes a webhook. It refuses while pending or retrying
// deliveries still reference the webhook so no in-flight delivery is
// orphaned; callers retry once those drain or are cancelled.
func (r *Registry) Delete(tenantID, webhookID uuid.UUID) error {
	webhook, err := r.Get(tenantID, webhookID)
	if err != nil {
		return err
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var inFlight int64
		err := tx.Model(&models.Delivery{}).
			Where("webhook_id = ? AND status IN ?", webhook.ID,
				[]string{models.DeliveryStatusPending, models.DeliveryStatusRetrying}).
			Count(&inFlight).Error
		if err != nil {
			return fmt.Errorf("failed to count in-flight deliveries: %w", err)
		}
		if inFlight > 0 {
			return ErrDeliveriesInFlight
		}

		if err := tx.Delete(&models.Webhook{}, "id = ?", webhook.ID).Error; err != nil {
			return fmt.Errorf("failed to delete webhook: %w", err)
		}

		r.logger.Info("Webhook deleted",
			zap.String("webhook_id", webhook.ID.String()),
			zap.String("tenant_id", tenantID.String()),
		)
		return nil
	})
}

func validateURL(url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return &ValidationError{Field: "url", Message: "must start with http:// or https://"}
	}
	return nil
}

func validateEvents(events []string) ([]string, error) {
	if len(events) == 0 {
		return nil, &ValidationError{Field: "events", Message: "must contain at least one event type"}
	}

	seen := make(map[string]bool, len(events))
	validated := make([]string, 0, len(events))
	for _, raw := range events {
		eventType, err := models.ParseEventType(raw)
		if err != nil {
			return nil, &ValidationError{Field: "events", Message: err.Error()}
		}
		if seen[string(eventType)] {
			continue
		}
		seen[string(eventType)] = true
		validated = append(validated, string(eventType))
	}
	return validated, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
