// Package rateguard implements the per-identity transaction guardrails:
// a cooldown between consecutive stakes and a velocity flag for unusually
// large single stakes.
//
// Both checks run before any persistence, so a rejected request leaves no
// partial state. The cooldown map lives behind a small store interface so a
// single process can run on an in-memory map and a multi-instance deployment
// can swap in Redis without touching policy logic.
package rateguard

import (
	"context"
	"errors"
	"time"

	"github.com/arenax/settlement-engine/internal/config"
)

// ErrCooldownActive is returned when an identity transacted within the
// cooldown window. Callers unwrap the remaining duration via CheckCooldown.
var ErrCooldownActive = errors.New("rateguard: cooldown active")

// FlagVelocityGuardian tags stake outcomes held for manual approval because
// the single-stake amount reached the velocity threshold.
const FlagVelocityGuardian = "VELOCITY_GUARDIAN"

// CooldownStore persists last-transaction timestamps per identity.
type CooldownStore interface {
	// Last returns the identity's last transaction time, or ok=false when
	// the identity has no recorded transaction.
	Last(ctx context.Context, identity string) (ts time.Time, ok bool, err error)

	// Record stores the identity's last transaction time.
	Record(ctx context.Context, identity string, ts time.Time) error
}

// Guard enforces the cooldown and velocity policies.
type Guard struct {
	store     CooldownStore
	cooldown  time.Duration
	threshold int64
	now       func() time.Time
}

// New creates a guard from the validated guard config.
func New(store CooldownStore, cfg config.GuardConfig) *Guard {
	return &Guard{
		store:     store,
		cooldown:  time.Duration(cfg.CooldownMs) * time.Millisecond,
		threshold: cfg.VelocityThreshold,
		now:       time.Now,
	}
}

// CheckCooldown reports whether the identity may transact now. When blocked,
// remaining is the time left until the cooldown expires.
func (g *Guard) CheckCooldown(ctx context.Context, identity string) (allowed bool, remaining time.Duration, err error) {
	last, ok, err := g.store.Last(ctx, identity)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return true, 0, nil
	}

	elapsed := g.now().Sub(last)
	if elapsed < g.cooldown {
		return false, g.cooldown - elapsed, nil
	}
	return true, 0, nil
}

// RecordTransaction stores ts as the identity's last transaction time.
// Called only after a successful ledger commit.
func (g *Guard) RecordTransaction(ctx context.Context, identity string, ts time.Time) error {
	return g.store.Record(ctx, identity, ts)
}

// VelocityFlagged reports whether a single stake of the given amount must be
// held for manual approval. The check is independent of cooldown state.
func (g *Guard) VelocityFlagged(amount int64) bool {
	return amount >= g.threshold
}
