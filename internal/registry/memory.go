package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arenax/settlement-engine/internal/model"
)

// MemoryRegistry implements Registry with mutex-guarded maps. Used for
// testing and development; data does not persist.
type MemoryRegistry struct {
	mu      sync.RWMutex
	pools   map[string]*model.PrizePool
	entries map[string]*model.StakeEntry
	order   []string // entry insertion order
}

// NewMemoryRegistry creates an in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		pools:   make(map[string]*model.PrizePool),
		entries: make(map[string]*model.StakeEntry),
	}
}

func (r *MemoryRegistry) CreatePool(_ context.Context, pool *model.PrizePool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pools[pool.ID]; ok {
		return fmt.Errorf("registry: pool %s already exists", pool.ID)
	}
	cp := *pool
	r.pools[pool.ID] = &cp
	return nil
}

func (r *MemoryRegistry) GetPool(_ context.Context, id string) (*model.PrizePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRegistry) ListPools(_ context.Context) ([]model.PrizePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pools := make([]model.PrizePool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, *p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].CreatedAt.After(pools[j].CreatedAt)
	})
	return pools, nil
}

func (r *MemoryRegistry) UpdateStatus(_ context.Context, poolID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	if p.Status != from {
		return fmt.Errorf("%w: %s is %s, expected %s", ErrStatusConflict, poolID, p.Status, from)
	}
	p.Status = to
	return nil
}

func (r *MemoryRegistry) ApplyStake(_ context.Context, poolID string, contribution, burn int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	// Aggregates freeze once settlement takes the pool out of the open
	// states; a stake racing that transition is rejected here.
	if p.Status != model.PoolRegistering && p.Status != model.PoolActive {
		return fmt.Errorf("%w: %s is %s, not accepting stakes", ErrStatusConflict, poolID, p.Status)
	}
	p.TotalPool += contribution
	p.TotalBurned += burn
	p.Entrants++
	return nil
}

func (r *MemoryRegistry) ApplyRefund(_ context.Context, poolID string, contribution int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	p.TotalPool -= contribution
	p.Entrants--
	return nil
}

func (r *MemoryRegistry) SetSettlement(_ context.Context, poolID string, houseCut, prizePool int64, settledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[poolID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	p.HouseCut = houseCut
	p.PrizePool = prizePool
	ts := settledAt
	p.SettledAt = &ts
	return nil
}

func (r *MemoryRegistry) InsertEntry(_ context.Context, entry *model.StakeEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.ID]; ok {
		return fmt.Errorf("registry: entry %s already exists", entry.ID)
	}
	cp := *entry
	r.entries[entry.ID] = &cp
	r.order = append(r.order, entry.ID)
	return nil
}

func (r *MemoryRegistry) GetEntry(_ context.Context, id string) (*model.StakeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryRegistry) UpdateEntryStatus(_ context.Context, id, status, hashID string, settledAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	e.Status = status
	if hashID != "" {
		e.HashID = hashID
	}
	if settledAt != nil {
		ts := *settledAt
		e.SettledAt = &ts
	}
	return nil
}

func (r *MemoryRegistry) ListEntriesByPool(_ context.Context, poolID string) ([]model.StakeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []model.StakeEntry
	for _, id := range r.order {
		if e := r.entries[id]; e.PoolID == poolID {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (r *MemoryRegistry) ListEntriesByUser(_ context.Context, userID string) ([]model.StakeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []model.StakeEntry
	for _, id := range r.order {
		if e := r.entries[id]; e.UserID == userID {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}
