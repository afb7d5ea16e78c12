package registry

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

	"github.com/insightops/webhook-engine/internal/models"
)

func newTestRegistry(t *testing.T) (*Registry, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "engine.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Webhook{}, &models.Delivery{}))
	return NewRegistry(db, zap.NewNop()), db
}

func validInput() CreateInput {
	return CreateInput{
		Name:   "query monitor",
		URL:    "https://receiver.example.com/hook",
		Events: []string{"query.executed"},
	}
}

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

func TestCreate_GeneratesSecretAndDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tenantID, userID := uuid.New(), uuid.New()

	webhook, err := reg.Create(tenantID, userID, validInput())
	require.NoError(t, err)

	assert.Len(t, webhook.Secret, 64) // 32 random bytes hex encoded
	assert.True(t, webhook.IsActive)
	assert.Equal(t, 3, webhook.MaxRetries)
	assert.Equal(t, 60, webhook.RetryBackoffSeconds)
	assert.Equal(t, tenantID, webhook.TenantID)
	assert.Equal(t, userID, webhook.UserID)
}

func TestCreate_KeepsCallerSecret(t *testing.T) {
	reg, _ := newTestRegistry(t)

	input := validInput()
	input.Secret = "my-shared-secret"
	webhook, err := reg.Create(uuid.New(), uuid.New(), input)
	require.NoError(t, err)
	assert.Equal(t, "my-shared-secret", webhook.Secret)
}

func TestCreate_ValidationErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	cases := []struct {
		name   string
		mutate func(*CreateInput)
		field  string
	}{
		{"empty name", func(in *CreateInput) { in.Name = "  " }, "name"},
		{"bad scheme", func(in *CreateInput) { in.URL = "ftp://example.com" }, "url"},
		{"no scheme", func(in *CreateInput) { in.URL = "example.com/hook" }, "url"},
		{"empty events", func(in *CreateInput) { in.Events = nil }, "events"},
		{"unknown event", func(in *CreateInput) { in.Events = []string{"user.sneezed"} }, "events"},
		{"negative retries", func(in *CreateInput) { in.MaxRetries = intPtr(-1) }, "max_retries"},
		{"too many retries", func(in *CreateInput) { in.MaxRetries = intPtr(11) }, "max_retries"},
		{"backoff too small", func(in *CreateInput) { in.RetryBackoffSeconds = intPtr(0) }, "retry_backoff_seconds"},
		{"backoff too large", func(in *CreateInput) { in.RetryBackoffSeconds = intPtr(3601) }, "retry_backoff_seconds"},
		{"short secret", func(in *CreateInput) { in.Secret = "hunter2" }, "secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			_, err := reg.Create(uuid.New(), uuid.New(), input)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestCreate_DeduplicatesEvents(t *testing.T) {
	reg, _ := newTestRegistry(t)

	input := validInput()
	input.Events = []string{"query.executed", "QUERY.EXECUTED", "alert.triggered"}
	webhook, err := reg.Create(uuid.New(), uuid.New(), input)
	require.NoError(t, err)
	assert.Equal(t, []string{"query.executed", "alert.triggered"}, webhook.Events)
}

func TestGetAndList_TenantScoped(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tenantA, tenantB := uuid.New(), uuid.New()

	created, err := reg.Create(tenantA, uuid.New(), validInput())
	require.NoError(t, err)

	_, err = reg.Get(tenantB, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := reg.Get(tenantA, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	listB, err := reg.List(tenantB)
	require.NoError(t, err)
	assert.Empty(t, listB)

	listA, err := reg.List(tenantA)
	require.NoError(t, err)
	require.Len(t, listA, 1)
}

func TestUpdate_PartialMutation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tenantID := uuid.New()

	created, err := reg.Create(tenantID, uuid.New(), validInput())
	require.NoError(t, err)
	originalSecret := created.Secret

	inactive := false
	updated, err := reg.Update(tenantID, created.ID, UpdateInput{
		Name:       strPtr("renamed"),
		IsActive:   &inactive,
		MaxRetries: intPtr(5),
		Events:     []string{"alert.triggered", "alert.resolved"},
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 5, updated.MaxRetries)
	assert.Equal(t, []string{"alert.triggered", "alert.resolved"}, updated.Events)
	// Untouched fields survive, and the secret never changes on update.
	assert.Equal(t, created.URL, updated.URL)
	assert.Equal(t, originalSecret, updated.Secret)
}

func TestUpdate_RejectsInvalidInput(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tenantID := uuid.New()

	created, err := reg.Create(tenantID, uuid.New(), validInput())
	require.NoError(t, err)

	_, err = reg.Update(tenantID, created.ID, UpdateInput{URL: strPtr("gopher://hole")})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = reg.Update(tenantID, uuid.New(), UpdateInput{Name: strPtr("ghost")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_RefusesWithInFlightDeliveries(t *testing.T) {
	reg, db := newTestRegistry(t)
	tenantID := uuid.New()

	created, err := reg.Create(tenantID, uuid.New(), validInput())
	require.NoError(t, err)

	delivery := models.Delivery{
		ID:          uuid.New(),
		WebhookID:   created.ID,
		EventType:   "query.executed",
		Status:      models.DeliveryStatusRetrying,
		MaxAttempts: 4,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, db.Create(&delivery).Error)

	err = reg.Delete(tenantID, created.ID)
	assert.ErrorIs(t, err, ErrDeliveriesInFlight)

	// Still there.
	_, err = reg.Get(tenantID, created.ID)
	assert.NoError(t, err)

	// Once the delivery reaches a terminal state the delete goes through.
	require.NoError(t, db.Model(&models.Delivery{}).
		Where("id = ?", delivery.ID).
		Update("status", models.DeliveryStatusFailed).Error)

	require.NoError(t, reg.Delete(tenantID, created.ID))
	_, err = reg.Get(tenantID, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_TenantScoped(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tenantID := uuid.New()

	created, err := reg.Create(tenantID, uuid.New(), validInput())
	require.NoError(t, err)

	assert.ErrorIs(t, reg.Delete(uuid.New(), created.ID), ErrNotFound)
}
