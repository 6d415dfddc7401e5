package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/arenax/settlement-engine/internal/model"
)

func stakeParams(identity string, gross int64) StakeParams {
	burn, contribution := model.SplitStake(gross)
	return StakeParams{
		Identity:         identity,
		PoolID:           "pool1",
		Gross:            gross,
		Burn:             burn,
		PoolContribution: contribution,
		WalletSource:     model.WalletPersonal,
	}
}

func TestAtomicStake_DebitsGross(t *testing.T) {
	l := NewMemoryLedger(1000)

	r, err := l.AtomicStake(context.Background(), stakeParams("user1", 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.BalanceAfter != 900 {
		t.Errorf("balance after = %d, want 900", r.BalanceAfter)
	}
	if r.EntryID == "" {
		t.Error("expected non-empty entry id")
	}
}

func TestAtomicStake_InsufficientBalance(t *testing.T) {
	l := NewMemoryLedger(50)

	_, err := l.AtomicStake(context.Background(), stakeParams("user1", 100))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if l.Balance("user1", model.WalletPersonal) != 50 {
		t.Error("failed stake must not change the balance")
	}
}

func TestAtomicRefund_ReturnsContributionOnly(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(1000)

	// gross=101 → burn=25, contribution=76.
	r, err := l.AtomicStake(ctx, stakeParams("user1", 101))
	if err != nil {
		t.Fatalf("stake failed: %v", err)
	}

	refund, err := l.AtomicRefund(ctx, r.EntryID, "pool cancelled")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	// 1000 - 101 + 76 = 975: the 25 burned units are gone forever.
	if refund.BalanceAfter != 975 {
		t.Errorf("balance after refund = %d, want 975", refund.BalanceAfter)
	}
}

func TestAtomicRefund_FinalizedOnce(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(1000)

	r, _ := l.AtomicStake(ctx, stakeParams("user1", 100))
	if _, err := l.AtomicRefund(ctx, r.EntryID, "first"); err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	if _, err := l.AtomicRefund(ctx, r.EntryID, "second"); !errors.Is(err, ErrEntryFinalized) {
		t.Errorf("expected ErrEntryFinalized, got %v", err)
	}
	if _, err := l.AtomicSettle(ctx, r.EntryID, 500); !errors.Is(err, ErrEntryFinalized) {
		t.Errorf("settle after refund: expected ErrEntryFinalized, got %v", err)
	}
}

func TestAtomicSettle_CreditsPayout(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(1000)

	r, _ := l.AtomicStake(ctx, stakeParams("user1", 100))
	settle, err := l.AtomicSettle(ctx, r.EntryID, 450)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if settle.BalanceAfter != 1350 {
		t.Errorf("balance after settle = %d, want 1350", settle.BalanceAfter)
	}
}

func TestAtomicSettle_UnknownEntry(t *testing.T) {
	l := NewMemoryLedger(1000)

	_, err := l.AtomicSettle(context.Background(), "no-such-entry", 100)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestBulkDistribute_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(0)

	awards := []Award{
		{Identity: "user1", Amount: 500, Rank: 1, Percentile: 1},
		{Identity: "user2", Amount: 300, Rank: 2, Percentile: 2},
	}
	if err := l.BulkDistribute(ctx, "pool1", awards, 100); err != nil {
		t.Fatalf("distribute failed: %v", err)
	}
	if got := l.Balance("user1", model.WalletPersonal); got != 500 {
		t.Errorf("user1 balance = %d, want 500", got)
	}

	err := l.BulkDistribute(ctx, "pool1", awards, 100)
	if !errors.Is(err, ErrAlreadyDistributed) {
		t.Errorf("expected ErrAlreadyDistributed, got %v", err)
	}
	if got := l.Balance("user1", model.WalletPersonal); got != 500 {
		t.Errorf("second distribute must not credit again, balance = %d", got)
	}
}

func TestMintHash_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^STK[23456789ABCDEFGHJKLMNPQRSTUVWXYZ]{13}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		h := MintHash(PrefixStake)
		if !pattern.MatchString(h) {
			t.Fatalf("hash %q does not match receipt format", h)
		}
		if seen[h] {
			t.Fatalf("duplicate hash %q", h)
		}
		seen[h] = true
	}
}

func TestFailureInjection_LeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(1000)
	l.StakeErr = errors.New("ledger offline")

	_, err := l.AtomicStake(ctx, stakeParams("user1", 100))
	if err == nil {
		t.Fatal("expected injected error")
	}
	if l.Balance("user1", model.WalletPersonal) != 1000 {
		t.Error("failed stake must not change the balance")
	}
}
