package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/dispatcher"
	"github.com/insightops/webhook-engine/internal/metrics"
	"github.com/insightops/webhook-engine/internal/models"
	"github.com/insightops/webhook-engine/internal/registry"
	"github.com/insightops/webhook-engine/internal/routes"
	"github.com/insightops/webhook-engine/internal/service"
	"github.com/insightops/webhook-engine/internal/stats"
	"github.com/insightops/webhook-engine/internal/worker"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "engine.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Webhook{}, &models.Delivery{}))

	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	svc := &service.Service{
		DB:         db,
		Logger:     logger,
		Registry:   registry.NewRegistry(db, logger),
		Dispatcher: dispatcher.NewDispatcher(db, logger, m),
		Executor: worker.NewExecutor(db, &config.WorkerConfig{
			PoolSize:            1,
			HTTPTimeout:         2 * time.Second,
			MaxResponseBodySize: 4096,
			LeaseTTL:            time.Minute,
		}, logger, m),
		Stats: stats.NewAggregator(db),
	}

	app := fiber.New()
	routes.SetupRoutes(app, svc, prometheus.NewRegistry())
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, tenantID, userID uuid.UUID, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != uuid.Nil {
		req.Header.Set("X-Tenant-ID", tenantID.String())
	}
	if userID != uuid.Nil {
		req.Header.Set("X-User-ID", userID.String())
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &fields), "body: %s", raw)
	}
	return resp, fields
}

func createWebhook(t *testing.T, app *fiber.App, tenantID, userID uuid.UUID) (uuid.UUID, string) {
	t.Helper()
	resp, fields := doJSON(t, app, http.MethodPost, "/api/v1/webhooks", tenantID, userID, fiber.Map{
		"name":   "query monitor",
		"url":    "https://receiver.example.com/hook",
		"events": []string{"query.executed"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var id uuid.UUID
	require.NoError(t, json.Unmarshal(fields["id"], &id))
	var secret string
	require.NoError(t, json.Unmarshal(fields["secret"], &secret))
	return id, secret
}

func TestCreateWebhook_ReturnsSecretOnce(t *testing.T) {
	app, _ := newTestApp(t)
	tenantID, userID := uuid.New(), uuid.New()

	id, secret := createWebhook(t, app, tenantID, userID)
	assert.Len(t, secret, 64)

	// Subsequent reads never expose the secret.
	resp, fields := doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+id.String(), tenantID, uuid.Nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, hasSecret := fields["secret"]
	assert.False(t, hasSecret)
}

func TestCreateWebhook_ValidationMapsTo400(t *testing.T) {
	app, _ := newTestApp(t)

	resp, fields := doJSON(t, app, http.MethodPost, "/api/v1/webhooks", uuid.New(), uuid.New(), fiber.Map{
		"name":   "bad",
		"url":    "ftp://example.com",
		"events": []string{"query.executed"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(fields["error"]), "url")
}

func TestWebhookRoutes_RequireTenantHeader(t *testing.T) {
	app, _ := newTestApp(t)

	resp, fields := doJSON(t, app, http.MethodGet, "/api/v1/webhooks", uuid.Nil, uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(fields["error"]), "X-Tenant-ID")
}

func TestGetWebhook_UnknownIs404(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+uuid.NewString(), uuid.New(), uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateWebhook_Partial(t *testing.T) {
	app, _ := newTestApp(t)
	tenantID, userID := uuid.New(), uuid.New()
	id, _ := createWebhook(t, app, tenantID, userID)

	resp, fields := doJSON(t, app, http.MethodPut, "/api/v1/webhooks/"+id.String(), tenantID, uuid.Nil, fiber.Map{
		"is_active": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "false", string(fields["is_active"]))
	assert.Equal(t, `"query monitor"`, string(fields["name"]))
}

func TestDeleteWebhook_ConflictWithInFlightDelivery(t *testing.T) {
	app, db := newTestApp(t)
	tenantID, userID := uuid.New(), uuid.New()
	id, _ := createWebhook(t, app, tenantID, userID)

	require.NoError(t, db.Create(&models.Delivery{
		ID:          uuid.New(),
		WebhookID:   id,
		EventType:   "query.executed",
		Status:      models.DeliveryStatusPending,
		MaxAttempts: 4,
		CreatedAt:   time.Now().UTC(),
	}).Error)

	resp, _ := doJSON(t, app, http.MethodDelete, "/api/v1/webhooks/"+id.String(), tenantID, uuid.Nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, db.Where("webhook_id = ?", id).Delete(&models.Delivery{}).Error)
	resp, _ = doJSON(t, app, http.MethodDelete, "/api/v1/webhooks/"+id.String(), tenantID, uuid.Nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestEventCatalog(t *testing.T) {
	app, _ := newTestApp(t)

	resp, fields := doJSON(t, app, http.MethodGet, "/api/v1/webhooks/events", uuid.Nil, uuid.Nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []string
	require.NoError(t, json.Unmarshal(fields["events"], &events))
	assert.Contains(t, events, "query.executed")
	assert.Contains(t, events, "alert.resolved")
	assert.Len(t, events, len(models.EventCatalog))
}

func TestTriggerEvent_CreatesDeliveries(t *testing.T) {
	app, db := newTestApp(t)
	tenantID, userID := uuid.New(), uuid.New()
	createWebhook(t, app, tenantID, userID)

	resp, fields := doJSON(t, app, http.MethodPost, "/api/v1/events/trigger", tenantID, uuid.Nil, fiber.Map{
		"event_type": "query.executed",
		"payload":    fiber.Map{"query_id": "q-1"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "1", string(fields["created_deliveries"]))

	var count int64
	require.NoError(t, db.Model(&models.Delivery{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTriggerEvent_UnknownType(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/events/trigger", uuid.New(), uuid.Nil, fiber.Map{
		"event_type": "user.sneezed",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListDeliveries_StatusFilterAndPaging(t *testing.T) {
	app, db := newTestApp(t)
	tenantID, userID := uuid.New(), uuid.New()
	id, _ := createWebhook(t, app, tenantID, userID)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		status := models.DeliveryStatusSuccess
		if i == 0 {
			status = models.DeliveryStatusFailed
		}
		require.NoError(t, db.Create(&models.Delivery{
			ID:          uuid.New(),
			WebhookID:   id,
			EventType:   "query.executed",
			Status:      status,
			MaxAttempts: 4,
			CreatedAt:   now.Add(time.Duration(-i) * time.Hour),
		}).Error)
	}

	path := fmt.Sprintf("/api/v1/webhooks/%s/deliveries?status=success&limit=1", id)
	resp, fields := doJSON(t, app, http.MethodGet, path, tenantID, uuid.Nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var deliveries []models.Delivery
	require.NoError(t, json.Unmarshal(fields["deliveries"], &deliveries))
	require.Len(t, deliveries, 1)
	assert.Equal(t, models.DeliveryStatusSuccess, deliveries[0].Status)
	assert.Equal(t, "true", string(fields["has_more"]))

	resp, _ = doJSON(t, app, http.MethodGet,
		fmt.Sprintf("/api/v1/webhooks/%s/deliveries?status=bogus", id), tenantID, uuid.Nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookStatsEndpoint(t *testing.T) {
	app, _ := newTestApp(t)
	tenantID, userID := uuid.New(), uuid.New()
	id, _ := createWebhook(t, app, tenantID, userID)

	resp, fields := doJSON(t, app, http.MethodGet, "/api/v1/webhooks/"+id.String()+"/stats", tenantID, uuid.Nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", string(fields["total_deliveries"]))
	assert.Equal(t, "0", string(fields["success_rate"]))
}
