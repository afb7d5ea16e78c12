package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/consumer"
	"github.com/insightops/webhook-engine/internal/database"
	"github.com/insightops/webhook-engine/internal/dispatcher"
	"github.com/insightops/webhook-engine/internal/logger"
	"github.com/insightops/webhook-engine/internal/metrics"
	"github.com/insightops/webhook-engine/internal/rabbitmq"
	"github.com/insightops/webhook-engine/internal/registry"
	"github.com/insightops/webhook-engine/internal/retention"
	"github.com/insightops/webhook-engine/internal/routes"
	"github.com/insightops/webhook-engine/internal/service"
	"github.com/insightops/webhook-engine/internal/stats"
	"github.com/insightops/webhook-engine/internal/worker"
)

func main() {
	if err := logger.Init(os.Getenv("LOG_LEVEL")); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()
	log := logger.Logger

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to PostgreSQL and apply migrations
	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := database.RunMigrations(&cfg.Database, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Metrics registry with the engine's collectors
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	engineMetrics := metrics.New(promRegistry)

	// Core engine components
	disp := dispatcher.NewDispatcher(db, log, engineMetrics)
	executor := worker.NewExecutor(db, &cfg.Worker, log, engineMetrics)
	poller := worker.NewPoller(db, &cfg.Poller, &cfg.Worker, executor, log, engineMetrics)
	poller.Start()
	defer poller.Stop()

	// Retention of terminal delivery rows
	janitor := retention.NewJanitor(db, &cfg.Retention, log)
	if err := janitor.Start(); err != nil {
		log.Fatal("Failed to start retention janitor", zap.Error(err))
	}
	defer janitor.Stop()

	// Optional message-queue event ingress
	var rmq *rabbitmq.Connection
	if cfg.RabbitMQ.IngressEnabled() {
		rmq = rabbitmq.NewConnection(&cfg.RabbitMQ, log)
		if err := rmq.Connect(); err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rmq.Close()

		ingress := consumer.NewConsumer(&cfg.RabbitMQ, rmq, disp, log)
		if err := ingress.Start(); err != nil {
			log.Fatal("Failed to start event ingress", zap.Error(err))
		}
		defer ingress.Stop()
	} else {
		log.Info("Event ingress disabled, events arrive via the trigger endpoint only")
	}

	svc := &service.Service{
		DB:         db,
		Logger:     log,
		Registry:   registry.NewRegistry(db, log),
		Dispatcher: disp,
		Executor:   executor,
		Stats:      stats.NewAggregator(db),
		RMQ:        rmq,
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "Webhook Engine",
		ServerHeader: "Fiber",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Tenant-ID,X-User-ID",
	}))

	// Setup routes
	routes.SetupRoutes(app, svc, promRegistry)

	// Start server in a goroutine
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Server starting",
			zap.String("address", addr),
		)
		if err := app.Listen(addr); err != nil {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		log.Error("Error during server shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
