package retention

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/models"
)

// Janitor deletes terminal delivery rows past the configured age on a cron
// schedule. This is the only path that deletes deliveries; business logic
// never does.
type Janitor struct {
	db     *gorm.DB
	cfg    *config.RetentionConfig
	logger *zap.Logger
	cron   *cron.Cron
}

func NewJanitor(db *gorm.DB, cfg *config.RetentionConfig, logger *zap.Logger) *Janitor {
	return &Janitor{
		db:     db,
		cfg:    cfg,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules the cleanup job.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.cfg.CronSpec, func() {
		deleted, err := j.Sweep(time.Now().UTC())
		if err != nil {
			j.logger.Error("Delivery retention sweep failed", zap.Error(err))
			return
		}
		j.logger.Info("Delivery retention sweep completed",
			zap.Int64("deleted", deleted),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}

	j.cron.Start()
	j.logger.Info("Retention janitor started",
		zap.String("cron", j.cfg.CronSpec),
		zap.Duration("max_age", j.cfg.MaxAge),
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("Retention janitor stopped")
}

// Sweep deletes success/failed deliveries created before now minus the
// retention age. Pending and retrying rows are never touched.
func (j *Janitor) Sweep(now time.Time) (int64, error) {
	cutoff := now.Add(-j.cfg.MaxAge)

	res := j.db.Where("status IN ? AND created_at < ?",
		[]string{models.DeliveryStatusSuccess, models.DeliveryStatusFailed}, cutoff).
		Delete(&models.Delivery{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired deliveries: %w", res.Error)
	}
	return res.RowsAffected, nil
}
