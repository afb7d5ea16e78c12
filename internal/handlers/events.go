package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/models"
	"github.com/insightops/webhook-engine/internal/service"
)

// EventsHandler serves the event catalog and the internal trigger endpoint
// used by upstream platform services that are not wired to the queue ingress.
type EventsHandler struct {
	svc *service.Service
}

func NewEventsHandler(svc *service.Service) *EventsHandler {
	return &EventsHandler{svc: svc}
}

// Catalog handles GET /webhooks/events
func (h *EventsHandler) Catalog(c *fiber.Ctx) error {
	events := make([]string, 0, len(models.EventCatalog))
	for _, eventType := range models.EventCatalog {
		events = append(events, string(eventType))
	}
	return c.JSON(fiber.Map{
		"events": events,
	})
}

// Trigger handles POST /events/trigger. The response only acknowledges
// fan-out; delivery outcomes are never pushed back to the producer.
func (h *EventsHandler) Trigger(c *fiber.Ctx) error {
	tenantID, err := tenantFromHeaders(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	eventType, err := models.ParseEventType(req.EventType)
	if err != nil {
		return badRequest(c, err.Error())
	}

	deliveries, err := h.svc.Dispatcher.TriggerEvent(tenantID, eventType, req.Payload)
	if err != nil {
		h.svc.Logger.Error("Failed to trigger event",
			zap.String("event_type", req.EventType),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to trigger event",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"created_deliveries": len(deliveries),
	})
}
