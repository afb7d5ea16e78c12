package retention

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "engine.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Delivery{}))
	return db
}

func seedDelivery(t *testing.T, db *gorm.DB, status string, createdAt time.Time) uuid.UUID {
	t.Helper()
	delivery := &models.Delivery{
		ID:          uuid.New(),
		WebhookID:   uuid.New(),
		EventType:   "query.executed",
		Status:      status,
		MaxAttempts: 4,
		CreatedAt:   createdAt,
	}
	require.NoError(t, db.Create(delivery).Error)
	return delivery.ID
}

func TestSweep_DeletesOnlyOldTerminalRows(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	oldSuccess := seedDelivery(t, db, models.DeliveryStatusSuccess, now.Add(-40*24*time.Hour))
	oldFailed := seedDelivery(t, db, models.DeliveryStatusFailed, now.Add(-31*24*time.Hour))
	oldPending := seedDelivery(t, db, models.DeliveryStatusPending, now.Add(-40*24*time.Hour))
	oldRetrying := seedDelivery(t, db, models.DeliveryStatusRetrying, now.Add(-40*24*time.Hour))
	freshSuccess := seedDelivery(t, db, models.DeliveryStatusSuccess, now.Add(-1*24*time.Hour))

	janitor := NewJanitor(db, &config.RetentionConfig{
		MaxAge:   30 * 24 * time.Hour,
		CronSpec: "0 3 * * *",
	}, zap.NewNop())

	deleted, err := janitor.Sweep(now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining []models.Delivery
	require.NoError(t, db.Find(&remaining).Error)
	ids := make(map[uuid.UUID]bool, len(remaining))
	for _, d := range remaining {
		ids[d.ID] = true
	}
	assert.False(t, ids[oldSuccess])
	assert.False(t, ids[oldFailed])
	assert.True(t, ids[oldPending])
	assert.True(t, ids[oldRetrying])
	assert.True(t, ids[freshSuccess])
}

func TestSweep_NothingToDelete(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	seedDelivery(t, db, models.DeliveryStatusSuccess, now.Add(-1*time.Hour))

	janitor := NewJanitor(db, &config.RetentionConfig{
		MaxAge:   30 * 24 * time.Hour,
		CronSpec: "0 3 * * *",
	}, zap.NewNop())

	deleted, err := janitor.Sweep(now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}
