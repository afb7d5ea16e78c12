package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightops/webhook-engine/internal/handlers"
	"github.com/insightops/webhook-engine/internal/service"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(app *fiber.App, svc *service.Service, registry *prometheus.Registry) {
	healthHandler := handlers.NewHealthHandler(svc)
	webhookHandler := handlers.NewWebhookHandler(svc)
	deliveriesHandler := handlers.NewDeliveriesHandler(svc)
	eventsHandler := handlers.NewEventsHandler(svc)

	app.Get("/health", healthHandler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := app.Group("/api/v1")

	api.Get("/webhooks/events", eventsHandler.Catalog)
	api.Post("/events/trigger", eventsHandler.Trigger)

	api.Post("/webhooks", webhookHandler.Create)
	api.Get("/webhooks", webhookHandler.List)
	api.Get("/webhooks/:id", webhookHandler.Get)
	api.Put("/webhooks/:id", webhookHandler.Update)
	api.Delete("/webhooks/:id", webhookHandler.Delete)
	api.Post("/webhooks/:id/test", webhookHandler.Test)

	api.Get("/webhooks/:id/deliveries", deliveriesHandler.List)
	api.Get("/webhooks/:id/stats", deliveriesHandler.Stats)
}
