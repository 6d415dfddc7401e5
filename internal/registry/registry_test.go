package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/arenax/settlement-engine/internal/model"
)

func seedPool(t *testing.T, r *MemoryRegistry, status string) *model.PrizePool {
	t.Helper()
	pool := &model.PrizePool{ID: "pool-1", Type: model.TypeDaily, Status: status}
	if err := r.CreatePool(context.Background(), pool); err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	return pool
}

func TestUpdateStatusCompareAndSet(t *testing.T) {
	r := NewMemoryRegistry()
	pool := seedPool(t, r, model.PoolActive)
	ctx := context.Background()

	if err := r.UpdateStatus(ctx, pool.ID, model.PoolActive, model.PoolCalculating); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// The same transition cannot fire twice.
	if err := r.UpdateStatus(ctx, pool.ID, model.PoolActive, model.PoolCalculating); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("second CAS: err = %v, want ErrStatusConflict", err)
	}

	if err := r.UpdateStatus(ctx, "missing", model.PoolActive, model.PoolCalculating); !errors.Is(err, ErrPoolNotFound) {
		t.Fatalf("unknown pool: err = %v, want ErrPoolNotFound", err)
	}
}

func TestApplyStakeOnlyWhileOpen(t *testing.T) {
	r := NewMemoryRegistry()
	pool := seedPool(t, r, model.PoolRegistering)
	ctx := context.Background()

	// Accepted in both open states.
	if err := r.ApplyStake(ctx, pool.ID, 75, 25); err != nil {
		t.Fatalf("ApplyStake while REGISTERING: %v", err)
	}
	if err := r.UpdateStatus(ctx, pool.ID, model.PoolRegistering, model.PoolActive); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := r.ApplyStake(ctx, pool.ID, 75, 25); err != nil {
		t.Fatalf("ApplyStake while ACTIVE: %v", err)
	}

	// Once settlement takes the soft lock the aggregates freeze: a stake
	// racing the transition is rejected, not silently stranded outside
	// the settlement snapshot.
	if err := r.UpdateStatus(ctx, pool.ID, model.PoolActive, model.PoolCalculating); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := r.ApplyStake(ctx, pool.ID, 75, 25); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("ApplyStake while CALCULATING: err = %v, want ErrStatusConflict", err)
	}

	got, err := r.GetPool(ctx, pool.ID)
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if got.TotalPool != 150 || got.TotalBurned != 50 || got.Entrants != 2 {
		t.Errorf("aggregates = %d/%d/%d, want 150/50/2 (rejected stake must not count)",
			got.TotalPool, got.TotalBurned, got.Entrants)
	}
}
