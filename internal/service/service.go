package service

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/dispatcher"
	"github.com/insightops/webhook-engine/internal/rabbitmq"
	"github.com/insightops/webhook-engine/internal/registry"
	"github.com/insightops/webhook-engine/internal/stats"
	"github.com/insightops/webhook-engine/internal/worker"
)

// Service holds all application dependencies for the HTTP layer.
// This eliminates global state and enables proper dependency injection.
type Service struct {
	DB         *gorm.DB
	Logger     *zap.Logger
	Registry   *registry.Registry
	Dispatcher *dispatcher.Dispatcher
	Executor   *worker.Executor
	Stats      *stats.Aggregator
	RMQ        *rabbitmq.Connection // nil when the ingress is disabled
}
