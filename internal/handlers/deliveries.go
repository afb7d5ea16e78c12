package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/models"
	"github.com/insightops/webhook-engine/internal/service"
)

// DeliveriesHandler serves the delivery log and stats read surface. All
// delivery failure information is pull-based through these endpoints;
// producers never learn outcomes.
type DeliveriesHandler struct {
	svc *service.Service
}

func NewDeliveriesHandler(svc *service.Service) *DeliveriesHandler {
	return &DeliveriesHandler{svc: svc}
}

// List handles GET /webhooks/:id/deliveries
// Query parameters: status (optional filter), limit (default 25), offset.
func (h *DeliveriesHandler) List(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	webhookID, err := parseIDParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	// The webhook lookup both authorizes (tenant scope) and 404s early.
	if _, err := h.svc.Registry.Get(tenantID, webhookID); err != nil {
		return mapRegistryError(c, h.svc.Logger, err)
	}

	limit := 25
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > 200 {
			return badRequest(c, "limit must be a positive integer up to 200")
		}
		limit = parsed
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "offset must be a non-negative integer")
		}
		offset = parsed
	}

	status := c.Query("status")
	if status != "" {
		switch status {
		case models.DeliveryStatusPending, models.DeliveryStatusRetrying,
			models.DeliveryStatusSuccess, models.DeliveryStatusFailed:
		default:
			return badRequest(c, "unknown delivery status")
		}
	}

	query := h.svc.DB.Where("webhook_id = ?", webhookID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var deliveries []models.Delivery
	err = query.Order("created_at DESC").
		Limit(limit + 1). // one extra row decides has_more
		Offset(offset).
		Find(&deliveries).Error
	if err != nil {
		h.svc.Logger.Error("Failed to list deliveries",
			zap.String("webhook_id", webhookID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch deliveries",
		})
	}

	hasMore := len(deliveries) > limit
	if hasMore {
		deliveries = deliveries[:limit]
	}

	return c.JSON(fiber.Map{
		"deliveries": deliveries,
		"has_more":   hasMore,
	})
}

// Stats handles GET /webhooks/:id/stats
func (h *DeliveriesHandler) Stats(c *fiber.Ctx) error {
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
		return mapRegistryError(c, h.svc.Logger, err)
	}

	stats, err := h.svc.Stats.ForWebhook(webhook, 10)
	if err != nil {
		h.svc.Logger.Error("Failed to compute webhook stats",
			zap.String("webhook_id", webhookID.String()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute stats",
		})
	}

	return c.JSON(stats)
}
