package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/insightops/webhook-engine/internal/database"
	"github.com/insightops/webhook-engine/internal/service"
)

type HealthHandler struct {
	svc *service.Service
}

func NewHealthHandler(svc *service.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)
	status := "healthy"

	// Check database
	if err := database.HealthCheck(ctx, h.svc.DB); err != nil {
		services["database"] = "unhealthy: " + err.Error()
		status = "unhealthy"
	} else {
		services["database"] = "healthy"
	}

	// Check RabbitMQ only when the ingress is configured
	if h.svc.RMQ != nil {
		if h.svc.RMQ.IsHealthy() {
			services["rabbitmq"] = "healthy"
		} else {
			services["rabbitmq"] = "unhealthy: connection closed"
			status = "unhealthy"
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	}

	if status == "unhealthy" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response)
	}

	return c.JSON(response)
}
