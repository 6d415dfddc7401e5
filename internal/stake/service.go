// Package stake implements the stake ledger core: the atomic stake, refund,
// and settlement operations with their guardrail checks. It validates
// through the tier classifier and rate guard, computes the burn/pool split,
// delegates the atomic commit to the external ledger, and mirrors the
// resulting entry locally.
//
// The service is the sole writer of stake-entry status. Its own checks are
// advisory pre-flight; the external ledger's atomic commit is the single
// source of truth, and a failed commit leaves no local state behind.
package stake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arenax/settlement-engine/internal/ledger"
	"github.com/arenax/settlement-engine/internal/metrics"
	"github.com/arenax/settlement-engine/internal/model"
	"github.com/arenax/settlement-engine/internal/rateguard"
	"github.com/arenax/settlement-engine/internal/registry"
	"github.com/arenax/settlement-engine/internal/tier"
)

var (
	// ErrLedgerCommitFailed wraps any external ledger error. The engine
	// never retries; the ledger owns idempotent retry.
	ErrLedgerCommitFailed = errors.New("stake: ledger commit failed")

	// ErrEntryNotActive is returned when refunding or settling an entry
	// that is no longer ACTIVE.
	ErrEntryNotActive = errors.New("stake: entry not active")

	// ErrPoolNotOpen is returned when staking into a pool that is not
	// accepting entries.
	ErrPoolNotOpen = errors.New("stake: pool not open for entries")

	// ErrPoolFull is returned when the pool's entrant cap is reached.
	ErrPoolFull = errors.New("stake: pool entrant cap reached")

	// ErrInvalidWalletSource is returned for an unknown wallet tag.
	ErrInvalidWalletSource = errors.New("stake: invalid wallet source")

	// ErrAlreadyEntered is returned when a user already holds an ACTIVE
	// entry in the target pool. One entry per user per pool; settlement
	// awards are keyed by user.
	ErrAlreadyEntered = errors.New("stake: user already entered in pool")
)

// CooldownError carries the remaining cooldown time back to the caller.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("stake: cooldown active, %dms remaining", e.Remaining.Milliseconds())
}

// Unwrap lets errors.Is match rateguard.ErrCooldownActive.
func (e *CooldownError) Unwrap() error { return rateguard.ErrCooldownActive }

// Stake request outcomes.
const (
	OutcomeAccepted        = "ACCEPTED"
	OutcomePendingApproval = "PENDING_ADMIN_APPROVAL"
)

// StakeRequest is one stake attempt.
type StakeRequest struct {
	UserID         string `json:"user_id"`
	PoolID         string `json:"pool_id"`
	Amount         int64  `json:"amount"`
	WalletSource   string `json:"wallet_source"`
	BypassCooldown bool   `json:"bypass_cooldown,omitempty"` // administrative override
}

// StakeOutcome is the result of a stake attempt that did not error. A
// velocity-flagged stake is a non-error outcome with no entry created.
type StakeOutcome struct {
	Status       string            `json:"status"`
	Flag         string            `json:"flag,omitempty"`
	Tier         tier.Tier         `json:"tier"`
	Entry        *model.StakeEntry `json:"entry,omitempty"`
	BalanceAfter int64             `json:"balance_after,omitempty"`
}

// SettleResult is the result of one refund or settle operation.
type SettleResult struct {
	Entry        *model.StakeEntry `json:"entry"`
	HashID       string            `json:"hash_id"`
	BalanceAfter int64             `json:"balance_after"`
}

// Service orchestrates stake operations. Safe for concurrent use across
// identities; per-entry serialization is the external ledger's job.
type Service struct {
	registry   registry.Registry
	ledger     ledger.Ledger
	guard      *rateguard.Guard
	classifier *tier.Classifier
	hub        *Hub // optional event hub
}

// NewService creates a stake service. Pass nil for hub if event
// broadcasting is not needed.
func NewService(reg registry.Registry, led ledger.Ledger, guard *rateguard.Guard, classifier *tier.Classifier, hub *Hub) *Service {
	return &Service{
		registry:   reg,
		ledger:     led,
		guard:      guard,
		classifier: classifier,
		hub:        hub,
	}
}

// PlaceStake runs the full guardrail pipeline and, on pass, commits the
// stake atomically through the external ledger. Validation failures return
// with no side effects; a velocity flag returns a pending outcome with no
// state created anywhere.
func (s *Service) PlaceStake(ctx context.Context, req StakeRequest) (*StakeOutcome, error) {
	if !model.ValidWalletSource(req.WalletSource) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWalletSource, req.WalletSource)
	}

	pool, err := s.registry.GetPool(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}
	if pool.Status != model.PoolRegistering && pool.Status != model.PoolActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrPoolNotOpen, pool.ID, pool.Status)
	}
	if pool.MaxEntrants > 0 && pool.Entrants >= pool.MaxEntrants {
		return nil, fmt.Errorf("%w: %s at %d entrants", ErrPoolFull, pool.ID, pool.Entrants)
	}

	stakeTier, err := s.classifier.Classify(req.Amount)
	if err != nil {
		return nil, err
	}

	// The velocity guardian outranks the cooldown: a flagged amount is
	// held for approval even when the identity is mid-cooldown.
	if s.guard.VelocityFlagged(req.Amount) {
		metrics.VelocityFlags.Inc()
		slog.Warn("stake held for manual approval",
			"user", req.UserID,
			"pool", req.PoolID,
			"amount", req.Amount,
			"flag", rateguard.FlagVelocityGuardian,
		)
		return &StakeOutcome{
			Status: OutcomePendingApproval,
			Flag:   rateguard.FlagVelocityGuardian,
			Tier:   stakeTier,
		}, nil
	}

	if !req.BypassCooldown {
		allowed, remaining, err := s.guard.CheckCooldown(ctx, req.UserID)
		if err != nil {
			return nil, err
		}
		if !allowed {
			metrics.CooldownRejections.Inc()
			return nil, &CooldownError{Remaining: remaining}
		}
	}

	existing, err := s.registry.ListEntriesByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.PoolID == req.PoolID && e.Status == model.StakeActive {
			return nil, fmt.Errorf("%w: %s in %s (entry %s)", ErrAlreadyEntered, req.UserID, req.PoolID, e.ID)
		}
	}

	burn, contribution := model.SplitStake(req.Amount)

	receipt, err := s.ledger.AtomicStake(ctx, ledger.StakeParams{
		Identity:         req.UserID,
		PoolID:           req.PoolID,
		Gross:            req.Amount,
		Burn:             burn,
		PoolContribution: contribution,
		WalletSource:     req.WalletSource,
		Metadata:         map[string]string{"tier": stakeTier.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerCommitFailed, err)
	}

	entry := &model.StakeEntry{
		ID:               receipt.EntryID,
		UserID:           req.UserID,
		PoolID:           req.PoolID,
		Gross:            req.Amount,
		Burn:             burn,
		PoolContribution: contribution,
		Status:           model.StakeActive,
		WalletSource:     req.WalletSource,
		HashID:           receipt.HashID,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.registry.InsertEntry(ctx, entry); err != nil {
		// The ledger commit stands; the mirror is repairable from it.
		slog.Error("entry mirror insert failed", "entry", entry.ID, "err", err)
		return nil, fmt.Errorf("stake: record entry %s: %w", entry.ID, err)
	}
	if err := s.registry.ApplyStake(ctx, req.PoolID, contribution, burn); err != nil {
		slog.Error("pool aggregate update failed", "pool", req.PoolID, "err", err)
		return nil, err
	}

	if err := s.guard.RecordTransaction(ctx, req.UserID, time.Now()); err != nil {
		slog.Error("cooldown record failed", "user", req.UserID, "err", err)
	}

	metrics.StakesTotal.WithLabelValues(stakeTier.Name).Inc()
	metrics.BurnedUnits.Add(float64(burn))

	slog.Info("stake placed",
		"entry", entry.ID,
		"user", req.UserID,
		"pool", req.PoolID,
		"gross", req.Amount,
		"burn", burn,
		"contribution", contribution,
		"tier", stakeTier.Name,
		"hash", receipt.HashID,
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:   "stake_placed",
			PoolID: req.PoolID,
			UserID: req.UserID,
			Amount: req.Amount,
			Burn:   burn,
			Tier:   stakeTier.Name,
		})
	}

	return &StakeOutcome{
		Status:       OutcomeAccepted,
		Tier:         stakeTier,
		Entry:        entry,
		BalanceAfter: receipt.BalanceAfter,
	}, nil
}

// Refund returns an entry's pool contribution through the ledger's
// compensating operation. The burned portion is never refunded.
func (s *Service) Refund(ctx context.Context, entryID, reason string) (*SettleResult, error) {
	entry, err := s.registry.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.StakeActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrEntryNotActive, entryID, entry.Status)
	}

	receipt, err := s.ledger.AtomicRefund(ctx, entryID, reason)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerCommitFailed, err)
	}

	now := time.Now().UTC()
	if err := s.registry.UpdateEntryStatus(ctx, entryID, model.StakeRefunded, receipt.HashID, &now); err != nil {
		return nil, err
	}
	if err := s.registry.ApplyRefund(ctx, entry.PoolID, entry.PoolContribution); err != nil {
		slog.Error("pool aggregate rollback failed", "pool", entry.PoolID, "err", err)
	}

	metrics.RefundsTotal.Inc()

	slog.Info("stake refunded",
		"entry", entryID,
		"user", entry.UserID,
		"pool", entry.PoolID,
		"returned", entry.PoolContribution,
		"burn_kept", entry.Burn,
		"reason", reason,
		"hash", receipt.HashID,
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:   "stake_refunded",
			PoolID: entry.PoolID,
			UserID: entry.UserID,
			Amount: entry.PoolContribution,
		})
	}

	entry.Status = model.StakeRefunded
	entry.HashID = receipt.HashID
	entry.SettledAt = &now
	return &SettleResult{Entry: entry, HashID: receipt.HashID, BalanceAfter: receipt.BalanceAfter}, nil
}

// Settle credits a computed payout for one entry through the ledger.
// This is the per-entrant integration point for payout results.
func (s *Service) Settle(ctx context.Context, entryID string, payout int64) (*SettleResult, error) {
	entry, err := s.registry.GetEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.StakeActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrEntryNotActive, entryID, entry.Status)
	}

	receipt, err := s.ledger.AtomicSettle(ctx, entryID, payout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerCommitFailed, err)
	}

	now := time.Now().UTC()
	if err := s.registry.UpdateEntryStatus(ctx, entryID, model.StakeSettled, receipt.HashID, &now); err != nil {
		return nil, err
	}

	metrics.DistributedUnits.Add(float64(payout))

	slog.Info("entry settled",
		"entry", entryID,
		"user", entry.UserID,
		"pool", entry.PoolID,
		"payout", payout,
		"hash", receipt.HashID,
	)

	entry.Status = model.StakeSettled
	entry.HashID = receipt.HashID
	entry.SettledAt = &now
	return &SettleResult{Entry: entry, HashID: receipt.HashID, BalanceAfter: receipt.BalanceAfter}, nil
}

// FinalizePoolEntries marks every ACTIVE entry of a distributed pool:
// awarded entrants SETTLED, the rest VOID. Called by the pool controller
// after a successful bulk distribution; the ledger credits were already
// committed in that single operation.
func (s *Service) FinalizePoolEntries(ctx context.Context, poolID string, awarded map[string]bool) error {
	entries, err := s.registry.ListEntriesByPool(ctx, poolID)
	if err != nil {
		return err
	}

	// Each award settles at most one entry; any further ACTIVE entries of
	// the same user are voided like everyone else's.
	remaining := make(map[string]bool, len(awarded))
	for id := range awarded {
		remaining[id] = true
	}

	now := time.Now().UTC()
	for _, e := range entries {
		if e.Status != model.StakeActive {
			continue
		}
		status := model.StakeVoid
		if remaining[e.UserID] {
			status = model.StakeSettled
			delete(remaining, e.UserID)
		}
		if err := s.registry.UpdateEntryStatus(ctx, e.ID, status, "", &now); err != nil {
			return fmt.Errorf("stake: finalize entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// Entry returns one stake entry.
func (s *Service) Entry(ctx context.Context, entryID string) (*model.StakeEntry, error) {
	return s.registry.GetEntry(ctx, entryID)
}

// UserEntries returns all of a user's stake entries, oldest first.
func (s *Service) UserEntries(ctx context.Context, userID string) ([]model.StakeEntry, error) {
	return s.registry.ListEntriesByUser(ctx, userID)
}
