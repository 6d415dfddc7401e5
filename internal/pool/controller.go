// Package pool drives a prize pool through its lifecycle and runs
// settlement: REGISTERING → ACTIVE → CALCULATING → DISTRIBUTING → SETTLED,
// with CANCELLED reachable from the first two states and CALCULATING →
// ACTIVE as the only rollback, taken when distribution fails.
//
// Settlement treats the CALCULATING status as a soft lock: the registry's
// compare-and-set transition stops a second concurrent attempt, and the
// ledger rejecting a duplicate bulk distribution backs it up.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arenax/settlement-engine/internal/leaderboard"
	"github.com/arenax/settlement-engine/internal/ledger"
	"github.com/arenax/settlement-engine/internal/metrics"
	"github.com/arenax/settlement-engine/internal/model"
	"github.com/arenax/settlement-engine/internal/payout"
	"github.com/arenax/settlement-engine/internal/registry"
	"github.com/arenax/settlement-engine/internal/stake"
)

var (
	// ErrDistributionFailed wraps any failure between CALCULATING and a
	// confirmed ledger distribution. The pool is rolled back to ACTIVE and
	// remains re-attemptable.
	ErrDistributionFailed = errors.New("pool: distribution failed")

	// ErrRollbackFailed means a failed settlement could not restore the
	// pool to ACTIVE. The pool's true state is ambiguous; operator
	// intervention is required.
	ErrRollbackFailed = errors.New("pool: settlement rollback failed")

	// ErrNotCancellable is returned when cancelling a pool past ACTIVE.
	ErrNotCancellable = errors.New("pool: not cancellable in current status")

	// ErrInvalidPoolType is returned for unknown pool types at creation.
	ErrInvalidPoolType = errors.New("pool: invalid pool type")

	// ErrNoReport is returned when no distribution report exists yet.
	ErrNoReport = errors.New("pool: no distribution report")
)

// CreateRequest describes a new prize pool.
type CreateRequest struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	EntryFee    int64     `json:"entry_fee"`
	MaxEntrants int       `json:"max_entrants"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
}

// Controller owns pool status transitions. It is the sole writer of
// PrizePool status.
type Controller struct {
	registry registry.Registry
	ledger   ledger.Ledger
	board    leaderboard.Provider
	engine   *payout.Engine
	stakes   *stake.Service
	hub      *stake.Hub

	mu      sync.RWMutex
	reports map[string]*model.DistributionReport // write-once per settled pool
}

// NewController creates a pool lifecycle controller. Pass nil for hub if
// event broadcasting is not needed.
func NewController(reg registry.Registry, led ledger.Ledger, board leaderboard.Provider, engine *payout.Engine, stakes *stake.Service, hub *stake.Hub) *Controller {
	return &Controller{
		registry: reg,
		ledger:   led,
		board:    board,
		engine:   engine,
		stakes:   stakes,
		hub:      hub,
		reports:  make(map[string]*model.DistributionReport),
	}
}

// Create registers a new pool in REGISTERING status.
func (c *Controller) Create(ctx context.Context, req CreateRequest) (*model.PrizePool, error) {
	if !model.ValidPoolType(req.Type) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPoolType, req.Type)
	}

	pool := &model.PrizePool{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Type:        req.Type,
		Status:      model.PoolRegistering,
		EntryFee:    req.EntryFee,
		MaxEntrants: req.MaxEntrants,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.registry.CreatePool(ctx, pool); err != nil {
		return nil, err
	}

	metrics.ActivePools.Inc()
	slog.Info("pool created", "pool", pool.ID, "name", pool.Name, "type", pool.Type)
	return pool, nil
}

// Activate moves a pool from REGISTERING to ACTIVE.
func (c *Controller) Activate(ctx context.Context, poolID string) error {
	if err := c.registry.UpdateStatus(ctx, poolID, model.PoolRegistering, model.PoolActive); err != nil {
		return err
	}
	slog.Info("pool activated", "pool", poolID)
	return nil
}

// Cancel terminates a pool from REGISTERING or ACTIVE and refunds every
// active entry's pool contribution. Burned units stay burned.
func (c *Controller) Cancel(ctx context.Context, poolID string) error {
	pool, err := c.registry.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.Status != model.PoolRegistering && pool.Status != model.PoolActive {
		return fmt.Errorf("%w: %s is %s", ErrNotCancellable, poolID, pool.Status)
	}

	if err := c.registry.UpdateStatus(ctx, poolID, pool.Status, model.PoolCancelled); err != nil {
		return err
	}
	metrics.ActivePools.Dec()

	entries, err := c.registry.ListEntriesByPool(ctx, poolID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Status != model.StakeActive {
			continue
		}
		if _, err := c.stakes.Refund(ctx, e.ID, "pool cancelled"); err != nil {
			slog.Error("cancel refund failed", "pool", poolID, "entry", e.ID, "err", err)
		}
	}

	slog.Info("pool cancelled", "pool", poolID, "refunded_entries", len(entries))
	return nil
}

// Get returns one pool.
func (c *Controller) Get(ctx context.Context, poolID string) (*model.PrizePool, error) {
	return c.registry.GetPool(ctx, poolID)
}

// List returns all pools, newest first.
func (c *Controller) List(ctx context.Context) ([]model.PrizePool, error) {
	return c.registry.ListPools(ctx)
}

// Report returns the distribution report of a settled (or failed) pool.
func (c *Controller) Report(poolID string) (*model.DistributionReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rep, ok := c.reports[poolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoReport, poolID)
	}
	return rep, nil
}

// Settle runs the full settlement sequence and returns the distribution
// report. On any failure after CALCULATING the pool is rolled back to
// ACTIVE and the returned report carries success:false; the pool stays
// re-attemptable.
func (c *Controller) Settle(ctx context.Context, poolID string) (*model.DistributionReport, error) {
	// Soft lock: only one attempt can win this transition.
	if err := c.registry.UpdateStatus(ctx, poolID, model.PoolActive, model.PoolCalculating); err != nil {
		return nil, err
	}

	// Snapshot after the lock. Stakes are rejected once the pool leaves
	// ACTIVE, so the aggregates read here cannot move underneath the
	// settlement math.
	pool, err := c.registry.GetPool(ctx, poolID)
	if err != nil {
		return c.fail(ctx, poolID, model.PoolCalculating, err)
	}

	standings, err := c.board.FetchStandings(ctx, poolID, 0, 0)
	if err != nil {
		return c.fail(ctx, poolID, model.PoolCalculating, fmt.Errorf("fetch standings: %w", err))
	}

	houseCut, err := c.engine.HouseCut(pool.Type, pool.TotalPool)
	if err != nil {
		return c.fail(ctx, poolID, model.PoolCalculating, err)
	}
	distributable := pool.TotalPool - houseCut

	payouts, err := c.engine.ComputePayouts(pool.Type, standings, distributable)
	if err != nil {
		return c.fail(ctx, poolID, model.PoolCalculating, err)
	}
	remainder := payout.ApplyRemainder(payouts, distributable)

	remainderPolicy := model.RemainderNone
	if remainder > 0 {
		remainderPolicy = model.RemainderToFirst
		if len(payouts) == 0 {
			remainderPolicy = model.RemainderBurned
		}
	}

	if err := c.registry.UpdateStatus(ctx, poolID, model.PoolCalculating, model.PoolDistributing); err != nil {
		return c.fail(ctx, poolID, model.PoolCalculating, err)
	}

	awards := make([]ledger.Award, len(payouts))
	awarded := make(map[string]bool, len(payouts))
	var total int64
	for i, p := range payouts {
		awards[i] = ledger.Award{
			Identity:   p.UserID,
			Amount:     p.Amount,
			Rank:       p.Rank,
			Percentile: p.Percentile,
		}
		awarded[p.UserID] = true
		total += p.Amount
	}

	if err := c.ledger.BulkDistribute(ctx, poolID, awards, houseCut); err != nil {
		return c.fail(ctx, poolID, model.PoolDistributing, fmt.Errorf("bulk distribute: %w", err))
	}

	now := time.Now().UTC()
	if err := c.registry.SetSettlement(ctx, poolID, houseCut, distributable, now); err != nil {
		slog.Error("settlement record failed after distribution", "pool", poolID, "err", err)
	}
	if err := c.registry.UpdateStatus(ctx, poolID, model.PoolDistributing, model.PoolSettled); err != nil {
		// The distribution is committed; only the status write lagged.
		slog.Error("settled status write failed", "pool", poolID, "err", err)
	}
	if err := c.stakes.FinalizePoolEntries(ctx, poolID, awarded); err != nil {
		slog.Error("entry finalize failed", "pool", poolID, "err", err)
	}

	metrics.ActivePools.Dec()
	metrics.SettlementsTotal.WithLabelValues("success").Inc()

	report := &model.DistributionReport{
		Success:          true,
		PoolID:           poolID,
		TotalDistributed: total,
		HouseCut:         houseCut,
		Payouts:          payouts,
		RemainderPolicy:  remainderPolicy,
		SettledAt:        now,
	}
	c.storeReport(report)

	slog.Info("pool settled",
		"pool", poolID,
		"distributed", total,
		"house_cut", houseCut,
		"winners", len(payouts),
		"remainder", remainder,
		"remainder_policy", remainderPolicy,
	)

	if c.hub != nil {
		c.hub.Broadcast(stake.Event{
			Type:        "pool_settled",
			PoolID:      poolID,
			Distributed: total,
			Winners:     len(payouts),
		})
	}

	return report, nil
}

// fail rolls the pool back to ACTIVE from the given phase and returns a
// failure report. A rollback failure is fatal: the pool's true state is
// ambiguous and an operator must reconcile against the ledger.
func (c *Controller) fail(ctx context.Context, poolID, from string, cause error) (*model.DistributionReport, error) {
	metrics.SettlementsTotal.WithLabelValues("failure").Inc()
	slog.Error("settlement failed", "pool", poolID, "phase", from, "err", cause)

	if err := c.registry.UpdateStatus(ctx, poolID, from, model.PoolActive); err != nil {
		slog.Error("FATAL: settlement rollback failed, pool state ambiguous",
			"pool", poolID, "phase", from, "err", err)
		return nil, fmt.Errorf("%w: %s (after: %v)", ErrRollbackFailed, poolID, cause)
	}

	report := &model.DistributionReport{
		Success:         false,
		PoolID:          poolID,
		RemainderPolicy: model.RemainderNone,
		SettledAt:       time.Now().UTC(),
		Error:           cause.Error(),
	}
	c.storeReport(report)

	return report, fmt.Errorf("%w: %v", ErrDistributionFailed, cause)
}

// storeReport keeps the latest report per pool. A successful report is
// final and never overwritten.
func (c *Controller) storeReport(rep *model.DistributionReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.reports[rep.PoolID]; ok && existing.Success {
		return
	}
	c.reports[rep.PoolID] = rep
}
