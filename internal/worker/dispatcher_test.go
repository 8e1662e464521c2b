package worker

import (
	"context"
	"testing"
	"time"

	"github.com/creator-rewards/internal/models"
	"github.com/creator-rewards/internal/retry"
	"github.com/creator-rewards/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcherFixture(t *testing.T) (*Dispatcher, *fakeActionStore, *fakeTipStore, *Pool) {
	t.Helper()

	actions := newFakeActionStore()
	tips := newFakeTipStore()

	pool, err := NewPool(&PoolConfig{
		Actions: actions,
		Executors: map[types.RewardKind]Executor{
			types.RewardLoyaltyIncrement: &fakeExecutor{},
		},
		Policy:    retry.DefaultPolicy(),
		Logger:    testLogger(),
		PoolSize:  1,
		QueueSize: 8,
	})
	require.NoError(t, err)

	d := NewDispatcher(&DispatcherConfig{
		Actions:      actions,
		Tips:         tips,
		Pool:         pool,
		Interval:     time.Second,
		ReclaimAfter: 5 * time.Minute,
		Logger:       testLogger(),
	})
	return d, actions, tips, pool
}

func TestDispatcher_Tick_EnqueuesDueActions(t *testing.T) {
	d, actions, tips, pool := newDispatcherFixture(t)
	ctx := context.Background()

	_, err := tips.Insert(ctx, &models.TipRecord{TxID: "TIP-1", AmountMicro: 1_000_000})
	require.NoError(t, err)

	due := models.NewRewardAction("TIP-1", types.RewardLoyaltyIncrement)
	due.NextRetryAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, actions.CreateBatch(ctx, []*models.RewardAction{due}))

	d.tick(ctx)

	select {
	case task := <-pool.queue:
		assert.Equal(t, due.ID, task.Action.ID)
		assert.Equal(t, "TIP-1", task.Tip.TxID)
	default:
		t.Fatal("expected a task on the queue")
	}
}

func TestDispatcher_Tick_IgnoresFutureActions(t *testing.T) {
	d, actions, tips, pool := newDispatcherFixture(t)
	ctx := context.Background()

	_, err := tips.Insert(ctx, &models.TipRecord{TxID: "TIP-1"})
	require.NoError(t, err)

	future := models.NewRewardAction("TIP-1", types.RewardLoyaltyIncrement)
	future.NextRetryAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, actions.CreateBatch(ctx, []*models.RewardAction{future}))

	d.tick(ctx)

	assert.Empty(t, pool.queue)
}

func TestDispatcher_Tick_ReclaimsStaleInProgress(t *testing.T) {
	d, actions, tips, pool := newDispatcherFixture(t)
	ctx := context.Background()

	_, err := tips.Insert(ctx, &models.TipRecord{TxID: "TIP-1"})
	require.NoError(t, err)

	stale := models.NewRewardAction("TIP-1", types.RewardLoyaltyIncrement)
	require.NoError(t, actions.CreateBatch(ctx, []*models.RewardAction{stale}))

	claimed, err := actions.Claim(ctx, stale.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	// Make the in-progress row look abandoned
	actions.mu.Lock()
	actions.actions[stale.ID].UpdatedAt = time.Now().UTC().Add(-time.Hour)
	actions.mu.Unlock()

	d.tick(ctx)

	got := actions.get(stale.ID)
	require.NotNil(t, got)
	assert.Equal(t, types.ActionPending, got.Status)
	// The consumed attempt still counts
	assert.Equal(t, 1, got.Attempts)

	// The next scan picks the reclaimed action up
	d.tick(ctx)
	assert.NotEmpty(t, pool.queue)
}
