package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightops/webhook-engine/internal/config"
	"github.com/insightops/webhook-engine/internal/metrics"
)

func TestPollOnce_ClaimsDueRowsOnce(t *testing.T) {
	db := newTestDB(t)
	webhook := seedWebhook(t, db, nil)
	first := seedDelivery(t, db, webhook, nil)
	second := seedDelivery(t, db, webhook, nil)

	executor := newTestExecutor(t, db)
	pollerCfg := &config.PollerConfig{Interval: time.Second, BatchSize: 10}
	poller := NewPoller(db, pollerCfg, executor.cfg, executor, zap.NewNop(), metrics.New(prometheus.NewRegistry()))

	now := time.Now().UTC()
	claimed := poller.pollOnce(now)
	assert.Equal(t, 2, claimed)

	// Both rows are leased by this instance now.
	gotIDs := map[uuid.UUID]bool{}
	for i := 0; i < claimed; i++ {
		delivery := <-poller.tasks
		gotIDs[delivery.ID] = true
	}
	assert.True(t, gotIDs[first.ID])
	assert.True(t, gotIDs[second.ID])

	for _, id := range []uuid.UUID{first.ID, second.ID} {
		row := reloadDelivery(t, db, id)
		require.NotNil(t, row.ClaimedAt)
		require.NotNil(t, row.LeaseID)
		assert.Equal(t, poller.instanceID, *row.LeaseID)
	}

	// A second poll within the lease TTL finds nothing to dispatch.
	assert.Equal(t, 0, poller.pollOnce(now.Add(time.Second)))
}

func TestPollOnce_CompetingInstances(t *testing.T) {
	db := newTestDB(t)
	webhook := seedWebhook(t, db, nil)
	delivery := seedDelivery(t, db, webhook, nil)

	executor := newTestExecutor(t, db)
	pollerCfg := &config.PollerConfig{Interval: time.Second, BatchSize: 10}
	m := metrics.New(prometheus.NewRegistry())
	a := NewPoller(db, pollerCfg, executor.cfg, executor, zap.NewNop(), m)
	b := NewPoller(db, pollerCfg, executor.cfg, executor, zap.NewNop(), m)

	now := time.Now().UTC()
	total := a.pollOnce(now) + b.pollOnce(now)
	assert.Equal(t, 1, total, "exactly one instance wins the claim")

	row := reloadDelivery(t, db, delivery.ID)
	require.NotNil(t, row.LeaseID)
	winner := *row.LeaseID
	assert.True(t, winner == a.instanceID || winner == b.instanceID)
}
