package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/models"
	"github.com/insightops/webhook-engine/internal/registry"
	"github.com/insightops/webhook-engine/internal/service"
)

// WebhookHandler serves the tenant-scoped webhook management API.
type WebhookHandler struct {
	svc *service.Service
}

func NewWebhookHandler(svc *service.Service) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// createRequest is the body of POST /webhooks.
type createRequest struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	URL                 string   `json:"url"`
	Events              []string `json:"events"`
	MaxRetries          *int     `json:"max_retries"`
	RetryBackoffSeconds *int     `json:"retry_backoff_seconds"`
	Secret              string   `json:"secret"`
}

// createResponse returns the webhook plus the secret; this is the only
// response that ever carries the secret.
type createResponse struct {
	models.Webhook
	Secret string `json:"secret"`
}

// updateRequest is the body of PUT /webhooks/:id. Nil fields stay unchanged.
type updateRequest struct {
	Name                *string  `json:"name"`
	Description         *string  `json:"description"`
	URL                 *string  `json:"url"`
	Events              []string `json:"events"`
	IsActive            *bool    `json:"is_active"`
	MaxRetries          *int     `json:"max_retries"`
	RetryBackoffSeconds *int     `json:"retry_backoff_seconds"`
}

// Create handles POST /webhooks
func (h *WebhookHandler) Create(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	userID, err := userFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	webhook, err := h.svc.Registry.Create(tenantID, userID, registry.CreateInput{
		Name:                req.Name,
		Description:         req.Description,
		URL:                 req.URL,
		Events:              req.Events,
		MaxRetries:          req.MaxRetries,
		RetryBackoffSeconds: req.RetryBackoffSeconds,
		Secret:              req.Secret,
	})
	if err != nil {
		return h.mapRegistryError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(createResponse{
		Webhook: *webhook,
		Secret:  webhook.Secret,
	})
}

// List handles GET /webhooks
func (h *WebhookHandler) List(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	webhooks, err := h.svc.Registry.List(tenantID)
	if err != nil {
		return h.mapRegistryError(c, err)
	}

	return c.JSON(fiber.Map{
		"webhooks": webhooks,
	})
}

// Get handles GET /webhooks/:id
func (h *WebhookHandler) Get(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	webhookID, err := parseIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	webhook, err := h.svc.Registry.Get(tenantID, webhookID)
	if err != nil {
		return h.mapRegistryError(c, err)
	}

	return c.JSON(webhook)
}

// Update handles PUT /webhooks/:id
func (h *WebhookHandler) Update(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	webhookID, err := parseIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	webhook, err := h.svc.Registry.Update(tenantID, webhookID, registry.UpdateInput{
		Name:                req.Name,
		Description:         req.Description,
		URL:                 req.URL,
		Events:              req.Events,
		IsActive:            req.IsActive,
		MaxRetries:          req.MaxRetries,
		RetryBackoffSeconds: req.RetryBackoffSeconds,
	})
	if err != nil {
		return h.mapRegistryError(c, err)
	}

	return c.JSON(webhook)
}

// Delete handles DELETE /webhooks/:id
func (h *WebhookHandler) Delete(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	webhookID, err := parseIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.svc.Registry.Delete(tenantID, webhookID); err != nil {
		return h.mapRegistryError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Test handles POST /webhooks/:id/test. It sends one synchronous signed
// POST and persists nothing.
func (h *WebhookHandler) Test(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	webhookID, err := parseIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req struct {
		EventType string          `json:"event_type"`
		TestData  json.RawMessage `json:"test_data"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	if req.EventType == "" {
		req.EventType = string(models.QueryExecuted)
	}
	if _, err := models.ParseEventType(req.EventType); err != nil {
		return badRequest(c, err.Error())
	}

	webhook, err := h.svc.Registry.Get(tenantID, webhookID)
	if err != nil {
		return h.mapRegistryError(c, err)
	}

	result := h.svc.Executor.SendTest(webhook, req.EventType, req.TestData)
	return c.JSON(result)
}

func (h *WebhookHandler) mapRegistryError(c *fiber.Ctx, err error) error {
	return mapRegistryError(c, h.svc.Logger, err)
}

// mapRegistryError translates registry failures into the API's error
// taxonomy: validation → 400, unknown webhook → 404, in-flight deliveries
// blocking a delete → 409, anything else → 500.
func mapRegistryError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	var validationErr *registry.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return badRequest(c, validationErr.Error())
	case errors.Is(err, registry.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "webhook not found",
		})
	case errors.Is(err, registry.ErrDeliveriesInFlight):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "webhook has pending or retrying deliveries",
		})
	default:
		logger.Error("Webhook registry operation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

// tenantFromHeaders extracts the tenant identity the auth layer in front of
// this service injects.
func tenantFromHeaders(c *fiber.Ctx) (uuid.UUID, error) {
	tenantID, err := uuid.Parse(c.Get("X-Tenant-ID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("X-Tenant-ID header is required and must be a UUID")
	}
	return tenantID, nil
}

func userFromHeaders(c *fiber.Ctx) (uuid.UUID, error) {
	userID, err := uuid.Parse(c.Get("X-User-ID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("X-User-ID header is required and must be a UUID")
	}
	return userID, nil
}

func parseIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	webhookID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("webhook id must be a UUID")
	}
	return webhookID, nil
}
