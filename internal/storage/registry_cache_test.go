package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/creator-rewards/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRegistryCache(t *testing.T) (*RegistryCache, *RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewRedisCacheFromClient(client)

	return NewRegistryCache(nil, cache, 30*time.Second), cache, mr
}

func TestRegistryCache_GetContract_CacheHit(t *testing.T) {
	rc, cache, _ := setupTestRegistryCache(t)
	ctx := testContext(t)

	want := &models.CreatorContract{
		AppID:         741,
		CreatorWallet: "CREATORWALLET",
		Active:        true,
		DeployedAt:    time.Now().UTC().Truncate(time.Second),
	}
	data, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, contractKey(741), data, time.Minute))

	got, err := rc.GetContract(ctx, 741)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.AppID, got.AppID)
	assert.Equal(t, want.CreatorWallet, got.CreatorWallet)
	assert.True(t, got.Active)
}

func TestRegistryCache_GetCreatorConfig_CacheHit(t *testing.T) {
	rc, cache, _ := setupTestRegistryCache(t)
	ctx := testContext(t)

	want := &models.CreatorConfig{
		CreatorWallet: "CREATORWALLET",
		Templates: []models.RewardTemplate{
			{ID: 1, CreatorWallet: "CREATORWALLET", Name: "gold", ThresholdMicro: 5_000_000},
		},
		Tiers: []models.MembershipTier{
			{ID: 1, CreatorWallet: "CREATORWALLET", Name: "GOLD", PriceMicro: 10_000_000, DurationDays: 30},
		},
	}
	data, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, configKey("CREATORWALLET"), data, time.Minute))

	got, err := rc.GetCreatorConfig(ctx, "CREATORWALLET")
	require.NoError(t, err)
	require.Len(t, got.Templates, 1)
	require.Len(t, got.Tiers, 1)
	assert.Equal(t, uint64(5_000_000), got.Templates[0].ThresholdMicro)
	assert.Equal(t, "GOLD", got.Tiers[0].Name)
}

func TestRegistryCache_Invalidate(t *testing.T) {
	rc, cache, _ := setupTestRegistryCache(t)
	ctx := testContext(t)

	require.NoError(t, cache.Set(ctx, configKey("CREATORWALLET"), []byte(`{}`), time.Minute))

	require.NoError(t, rc.Invalidate(ctx, "CREATORWALLET"))

	exists, err := cache.Exists(ctx, configKey("CREATORWALLET"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestContractSnapshot_ResolveContract(t *testing.T) {
	snap := NewContractSnapshot([]*models.CreatorContract{
		{AppID: 1, CreatorWallet: "A"},
		{AppID: 2, CreatorWallet: "B"},
	})

	c, ok := snap.ResolveContract(2)
	require.True(t, ok)
	assert.Equal(t, "B", c.CreatorWallet)

	_, ok = snap.ResolveContract(99)
	assert.False(t, ok)

	assert.Len(t, snap.AppIDs(), 2)
}
