package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/creator-rewards/internal/models"
	"github.com/redis/go-redis/v9"
)

// RegistryCache is a read-through Redis cache over the registry repository.
// The registry changes rarely but is consulted for every decoded transaction,
// so a short TTL keeps the hot path off Postgres while still picking up new
// contract deployments and template edits within seconds.
type RegistryCache struct {
	registry *RegistryRepository
	cache    *RedisCache
	ttl      time.Duration
}

// NewRegistryCache creates a registry cache. A nil cache degrades to direct
// repository reads.
func NewRegistryCache(registry *RegistryRepository, cache *RedisCache, ttl time.Duration) *RegistryCache {
	return &RegistryCache{
		registry: registry,
		cache:    cache,
		ttl:      ttl,
	}
}

func contractKey(appID uint64) string {
	return "registry:contract:" + strconv.FormatUint(appID, 10)
}

func configKey(creatorWallet string) string {
	return "registry:config:" + creatorWallet
}

// GetContract retrieves a contract instance by application id, consulting the
// cache first. Unknown app ids are not negatively cached; an unknown id is a
// decode error upstream and should stay visible as one.
func (c *RegistryCache) GetContract(ctx context.Context, appID uint64) (*models.CreatorContract, error) {
	key := contractKey(appID)

	var contract models.CreatorContract
	if hit, err := c.get(ctx, key, &contract); err == nil && hit {
		return &contract, nil
	}

	fresh, err := c.registry.GetContract(ctx, appID)
	if err != nil || fresh == nil {
		return fresh, err
	}

	c.set(ctx, key, fresh)
	return fresh, nil
}

// GetCreatorConfig retrieves a creator's planner configuration, consulting
// the cache first.
func (c *RegistryCache) GetCreatorConfig(ctx context.Context, creatorWallet string) (*models.CreatorConfig, error) {
	key := configKey(creatorWallet)

	var cfg models.CreatorConfig
	if hit, err := c.get(ctx, key, &cfg); err == nil && hit {
		return &cfg, nil
	}

	fresh, err := c.registry.GetCreatorConfig(ctx, creatorWallet)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, fresh)
	return fresh, nil
}

// Invalidate drops the cached entries for a creator. Called when the
// creator-facing surface edits templates or tiers.
func (c *RegistryCache) Invalidate(ctx context.Context, creatorWallet string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Del(ctx, configKey(creatorWallet))
}

func (c *RegistryCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if c.cache == nil {
		return false, nil
	}

	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get from cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return true, nil
}

// set is best effort: a cache write failure never fails the read path.
func (c *RegistryCache) set(ctx context.Context, key string, value interface{}) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, data, c.ttl)
}

// ContractSnapshot is an immutable point-in-time view of the active contract
// registry. The supervisor rebuilds it each tick and hands it to the
// normalizer, which needs synchronous lookups.
type ContractSnapshot struct {
	byAppID map[uint64]*models.CreatorContract
}

// LoadContractSnapshot builds a snapshot of all active contracts.
func LoadContractSnapshot(ctx context.Context, registry *RegistryRepository) (*ContractSnapshot, error) {
	contracts, err := registry.ListActiveContracts(ctx)
	if err != nil {
		return nil, err
	}

	byAppID := make(map[uint64]*models.CreatorContract, len(contracts))
	for _, c := range contracts {
		byAppID[c.AppID] = c
	}
	return &ContractSnapshot{byAppID: byAppID}, nil
}

// NewContractSnapshot builds a snapshot from an explicit contract list.
func NewContractSnapshot(contracts []*models.CreatorContract) *ContractSnapshot {
	byAppID := make(map[uint64]*models.CreatorContract, len(contracts))
	for _, c := range contracts {
		byAppID[c.AppID] = c
	}
	return &ContractSnapshot{byAppID: byAppID}
}

// ResolveContract looks up a contract by application id.
func (s *ContractSnapshot) ResolveContract(appID uint64) (*models.CreatorContract, bool) {
	c, ok := s.byAppID[appID]
	return c, ok
}

// AppIDs returns the watched application ids in unspecified order.
func (s *ContractSnapshot) AppIDs() []uint64 {
	ids := make([]uint64, 0, len(s.byAppID))
	for id := range s.byAppID {
		ids = append(ids, id)
	}
	return ids
}
