package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/metrics"
	"github.com/insightops/webhook-engine/internal/models"
)

// Poller drives the at-least-once loop: it periodically selects due
// deliveries, claims each one with a conditional update, and hands winners to
// a fixed-size pool of workers. The Delivery Store is the durable queue, so
// any number of poller instances can run the same loop against it; the claim
// decides which instance dispatches a given row.
type Poller struct {
	db         *gorm.DB
	cfg        *config.PollerConfig
	workerCfg  *config.WorkerConfig
	executor   *Executor
	logger     *zap.Logger
	metrics    *metrics.Metrics
	instanceID uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan models.Delivery
	wg     sync.WaitGroup
}

// NewPoller creates a poller with its own lease identity.
func NewPoller(
	db *gorm.DB,
	cfg *config.PollerConfig,
	workerCfg *config.WorkerConfig,
	executor *Executor,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		db:         db,
		cfg:        cfg,
		workerCfg:  workerCfg,
		executor:   executor,
		logger:     logger,
		metrics:    m,
		instanceID: uuid.New(),
		ctx:        ctx,
		cancel:     cancel,
		tasks:      make(chan models.Delivery, cfg.BatchSize),
	}
}

// Start launches the worker pool and the poll loop.
func (p *Poller) Start() {
	for i := 0; i < p.workerCfg.PoolSize; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}

	p.wg.Add(1)
	go p.runPollLoop()

	p.logger.Info("Delivery poller started",
		zap.String("instance_id", p.instanceID.String()),
		zap.Int("pool_size", p.workerCfg.PoolSize),
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("batch_size", p.cfg.BatchSize),
	)
}

// Stop cancels the loop and waits for in-flight attempts to finish. An
// attempt already on the wire runs to completion or timeout.
func (p *Poller) Stop() {
	p.logger.Info("Stopping delivery poller",
		zap.String("instance_id", p.instanceID.String()),
	)
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Delivery poller stopped")
}

func (p *Poller) runPollLoop() {
	defer p.wg.Done()
	defer close(p.tasks)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			claimed := p.pollOnce(time.Now().UTC())
			if claimed > 0 {
				p.logger.Debug("Claimed due deliveries",
					zap.Int("claimed", claimed),
				)
			}
		}
	}
}

// pollOnce selects one batch of due rows and tries to claim each. Losing a
// claim is normal under multiple instances and is not an error.
func (p *Poller) pollOnce(now time.Time) int {
	due, err := findDueDeliveries(p.db, now, p.workerCfg.LeaseTTL, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("Failed to poll for due deliveries", zap.Error(err))
		return 0
	}

	claimed := 0
	for _, delivery := range due {
		won, err := claimDelivery(p.db, delivery.ID, p.instanceID, now, p.workerCfg.LeaseTTL)
		if err != nil {
			p.logger.Error("Failed to claim delivery",
				zap.String("delivery_id", delivery.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if !won {
			if p.metrics != nil {
				p.metrics.ClaimsLost.Inc()
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.ClaimsWon.Inc()
		}

		select {
		case p.tasks <- delivery:
			claimed++
		case <-p.ctx.Done():
			return claimed
		}
	}

	return claimed
}

func (p *Poller) runWorker() {
	defer p.wg.Done()

	for delivery := range p.tasks {
		p.executor.Deliver(delivery)
	}
}
