package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arenax/settlement-engine/internal/model"
)

// CachedRegistry wraps a primary Registry (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary and invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedRegistry struct {
	primary Registry
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedRegistry creates a cached wrapper around a primary registry.
func NewCachedRegistry(primary Registry, rdb *redis.Client, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{primary: primary, rdb: rdb, ttl: ttl}
}

func poolKey(id string) string  { return "pool:" + id }
func entryKey(id string) string { return "entry:" + id }

// --- Writes (primary first, then invalidate) ---

func (c *CachedRegistry) CreatePool(ctx context.Context, pool *model.PrizePool) error {
	if err := c.primary.CreatePool(ctx, pool); err != nil {
		return err
	}
	c.cachePool(ctx, pool)
	return nil
}

func (c *CachedRegistry) UpdateStatus(ctx context.Context, poolID, from, to string) error {
	if err := c.primary.UpdateStatus(ctx, poolID, from, to); err != nil {
		return err
	}
	c.rdb.Del(ctx, poolKey(poolID))
	return nil
}

func (c *CachedRegistry) ApplyStake(ctx context.Context, poolID string, contribution, burn int64) error {
	if err := c.primary.ApplyStake(ctx, poolID, contribution, burn); err != nil {
		return err
	}
	c.rdb.Del(ctx, poolKey(poolID))
	return nil
}

func (c *CachedRegistry) ApplyRefund(ctx context.Context, poolID string, contribution int64) error {
	if err := c.primary.ApplyRefund(ctx, poolID, contribution); err != nil {
		return err
	}
	c.rdb.Del(ctx, poolKey(poolID))
	return nil
}

func (c *CachedRegistry) SetSettlement(ctx context.Context, poolID string, houseCut, prizePool int64, settledAt time.Time) error {
	if err := c.primary.SetSettlement(ctx, poolID, houseCut, prizePool, settledAt); err != nil {
		return err
	}
	c.rdb.Del(ctx, poolKey(poolID))
	return nil
}

func (c *CachedRegistry) InsertEntry(ctx context.Context, entry *model.StakeEntry) error {
	if err := c.primary.InsertEntry(ctx, entry); err != nil {
		return err
	}
	c.cacheEntry(ctx, entry)
	return nil
}

func (c *CachedRegistry) UpdateEntryStatus(ctx context.Context, id, status, hashID string, settledAt *time.Time) error {
	if err := c.primary.UpdateEntryStatus(ctx, id, status, hashID, settledAt); err != nil {
		return err
	}
	c.rdb.Del(ctx, entryKey(id))
	return nil
}

// --- Reads (cache first) ---

func (c *CachedRegistry) GetPool(ctx context.Context, id string) (*model.PrizePool, error) {
	data, err := c.rdb.Get(ctx, poolKey(id)).Bytes()
	if err == nil {
		var p model.PrizePool
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := c.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cachePool(ctx, p)
	return p, nil
}

func (c *CachedRegistry) GetEntry(ctx context.Context, id string) (*model.StakeEntry, error) {
	data, err := c.rdb.Get(ctx, entryKey(id)).Bytes()
	if err == nil {
		var e model.StakeEntry
		if json.Unmarshal(data, &e) == nil {
			return &e, nil
		}
	}

	e, err := c.primary.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cacheEntry(ctx, e)
	return e, nil
}

// --- Passthrough (not cached) ---

func (c *CachedRegistry) ListPools(ctx context.Context) ([]model.PrizePool, error) {
	return c.primary.ListPools(ctx)
}

func (c *CachedRegistry) ListEntriesByPool(ctx context.Context, poolID string) ([]model.StakeEntry, error) {
	return c.primary.ListEntriesByPool(ctx, poolID)
}

func (c *CachedRegistry) ListEntriesByUser(ctx context.Context, userID string) ([]model.StakeEntry, error) {
	return c.primary.ListEntriesByUser(ctx, userID)
}

// --- Cache helpers ---

func (c *CachedRegistry) cachePool(ctx context.Context, p *model.PrizePool) {
	if data, err := json.Marshal(p); err == nil {
		c.rdb.Set(ctx, poolKey(p.ID), data, c.ttl)
	}
}

func (c *CachedRegistry) cacheEntry(ctx context.Context, e *model.StakeEntry) {
	if data, err := json.Marshal(e); err == nil {
		c.rdb.Set(ctx, entryKey(e.ID), data, c.ttl)
	}
}
