package stats

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/insightops/webhook-engine/internal/models"
)

// WebhookStats is the read-only aggregate view served by the stats endpoint.
type WebhookStats struct {
	WebhookID            uuid.UUID         `json:"webhook_id"`
	TotalDeliveries      int64             `json:"total_deliveries"`
	SuccessfulDeliveries int64             `json:"successful_deliveries"`
	FailedDeliveries     int64             `json:"failed_deliveries"`
	SuccessRate          float64           `json:"success_rate"`
	LastTriggeredAt      *time.Time        `json:"last_triggered_at"`
	LastSuccessAt        *time.Time        `json:"last_success_at"`
	LastFailureAt        *time.Time        `json:"last_failure_at"`
	Deliveries24h        int64             `json:"deliveries_24h"`
	Deliveries7d         int64             `json:"deliveries_7d"`
	Deliveries30d        int64             `json:"deliveries_30d"`
	AvgResponseTimeMs    *float64          `json:"avg_response_time_ms"`
	RecentDeliveries     []models.Delivery `json:"recent_deliveries"`
}

// Aggregator computes windowed statistics over webhook counters and
// delivery rows. It never mutates either table.
type Aggregator struct {
	db *gorm.DB
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// ForWebhook builds the stats view for one webhook. Window counts come from
// delivery rows by created_at; the average response time covers successful
// attempts of the last 7 days; recent deliveries are the latest recentLimit
// rows newest first.
func (a *Aggregator) ForWebhook(webhook *models.Webhook, recentLimit int) (*WebhookStats, error) {
	now := time.Now().UTC()

	stats := &WebhookStats{
		WebhookID:            webhook.ID,
		TotalDeliveries:      webhook.TotalDeliveries,
		SuccessfulDeliveries: webhook.SuccessfulDeliveries,
		FailedDeliveries:     webhook.FailedDeliveries,
		LastTriggeredAt:      webhook.LastTriggeredAt,
		LastSuccessAt:        webhook.LastSuccessAt,
		LastFailureAt:        webhook.LastFailureAt,
	}
	if webhook.TotalDeliveries > 0 {
		stats.SuccessRate = float64(webhook.SuccessfulDeliveries) / float64(webhook.TotalDeliveries)
	}

	windows := []struct {
		since time.Time
		dest  *int64
	}{
		{now.Add(-24 * time.Hour), &stats.Deliveries24h},
		{now.Add(-7 * 24 * time.Hour), &stats.Deliveries7d},
		{now.Add(-30 * 24 * time.Hour), &stats.Deliveries30d},
	}
	for _, window := range windows {
		err := a.db.Model(&models.Delivery{}).
			Where("webhook_id = ? AND created_at >= ?", webhook.ID, window.since).
			Count(window.dest).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count windowed deliveries: %w", err)
		}
	}

	avg, err := a.averageResponseTime(webhook.ID, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, err
	}
	stats.AvgResponseTimeMs = avg

	recent, err := a.RecentDeliveries(webhook.ID, recentLimit)
	if err != nil {
		return nil, err
	}
	stats.RecentDeliveries = recent

	return stats, nil
}

// RecentDeliveries returns the webhook's last limit delivery rows, newest
// first.
func (a *Aggregator) RecentDeliveries(webhookID uuid.UUID, limit int) ([]models.Delivery, error) {
	deliveries := make([]models.Delivery, 0, limit)
	err := a.db.Where("webhook_id = ?", webhookID).
		Order("created_at DESC").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent deliveries: %w", err)
	}
	return deliveries, nil
}

func (a *Aggregator) averageResponseTime(webhookID uuid.UUID, since time.Time) (*float64, error) {
	var row struct {
		Avg *float64
	}
	err := a.db.Model(&models.Delivery{}).
		Select("AVG(response_time_ms) as avg").
		Where("webhook_id = ? AND status = ? AND response_time_ms IS NOT NULL AND created_at >= ?",
			webhookID, models.DeliveryStatusSuccess, since).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute average response time: %w", err)
	}
	return row.Avg, nil
}
