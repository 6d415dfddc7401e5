package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arenax/settlement-engine/internal/config"
	"github.com/arenax/settlement-engine/internal/leaderboard"
	"github.com/arenax/settlement-engine/internal/ledger"
	"github.com/arenax/settlement-engine/internal/model"
	"github.com/arenax/settlement-engine/internal/payout"
	"github.com/arenax/settlement-engine/internal/rateguard"
	"github.com/arenax/settlement-engine/internal/registry"
	"github.com/arenax/settlement-engine/internal/stake"
	"github.com/arenax/settlement-engine/internal/tier"
)

type fixture struct {
	reg   *registry.MemoryRegistry
	led   *ledger.MemoryLedger
	board *leaderboard.MemoryBoard
	svc   *stake.Service
	ctrl  *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()

	reg := registry.NewMemoryRegistry()
	led := ledger.NewMemoryLedger(10_000)
	board := leaderboard.NewMemoryBoard()
	guard := rateguard.New(rateguard.NewMemoryCooldowns(), cfg.Guard)
	classifier := tier.NewClassifier(cfg.Tiers)
	engine := payout.NewEngine(cfg)
	svc := stake.NewService(reg, led, guard, classifier, nil)
	ctrl := NewController(reg, led, board, engine, svc, nil)

	return &fixture{reg: reg, led: led, board: board, svc: svc, ctrl: ctrl}
}

func (f *fixture) createActivePool(t *testing.T, poolType string) *model.PrizePool {
	t.Helper()
	pool, err := f.ctrl.Create(context.Background(), CreateRequest{
		Name:     "test pool",
		Type:     poolType,
		EntryFee: 100,
		StartsAt: time.Now(),
		EndsAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := f.ctrl.Activate(context.Background(), pool.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return pool
}

func (f *fixture) placeStake(t *testing.T, userID, poolID string, amount int64) {
	t.Helper()
	out, err := f.svc.PlaceStake(context.Background(), stake.StakeRequest{
		UserID:       userID,
		PoolID:       poolID,
		Amount:       amount,
		WalletSource: model.WalletPersonal,
	})
	if err != nil {
		t.Fatalf("PlaceStake(%s): %v", userID, err)
	}
	if out.Status != stake.OutcomeAccepted {
		t.Fatalf("PlaceStake(%s): status %s", userID, out.Status)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Create(context.Background(), CreateRequest{Name: "x", Type: "HOURLY"})
	if !errors.Is(err, ErrInvalidPoolType) {
		t.Fatalf("err = %v, want ErrInvalidPoolType", err)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pool, err := f.ctrl.Create(ctx, CreateRequest{Name: "p", Type: model.TypeDaily})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if pool.Status != model.PoolRegistering {
		t.Fatalf("new pool status = %s, want %s", pool.Status, model.PoolRegistering)
	}

	// Settling an unactivated pool must fail: the ACTIVE→CALCULATING
	// compare-and-set cannot fire from REGISTERING.
	if _, err := f.ctrl.Settle(ctx, pool.ID); !errors.Is(err, registry.ErrStatusConflict) {
		t.Fatalf("settle from REGISTERING: err = %v, want ErrStatusConflict", err)
	}

	if err := f.ctrl.Activate(ctx, pool.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	// Double activation is a conflict.
	if err := f.ctrl.Activate(ctx, pool.ID); !errors.Is(err, registry.ErrStatusConflict) {
		t.Fatalf("second Activate: err = %v, want ErrStatusConflict", err)
	}

	got, _ := f.ctrl.Get(ctx, pool.ID)
	if got.Status != model.PoolActive {
		t.Fatalf("status = %s, want %s", got.Status, model.PoolActive)
	}
}

func TestSettleDailyPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.createActivePool(t, model.TypeDaily)

	// Four entrants staking 100 each: burn 25, contribution 75 apiece.
	users := []string{"alice", "bob", "carol", "dave"}
	for _, u := range users {
		f.placeStake(t, u, pool.ID, 100)
	}
	for i, u := range users {
		f.board.SubmitScore(pool.ID, leaderboard.Score{
			UserID:    u,
			Score:     int64(1000 - i*100),
			EnteredAt: time.Now(),
		})
	}

	report, err := f.ctrl.Settle(ctx, pool.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !report.Success {
		t.Fatalf("report.Success = false, error %q", report.Error)
	}

	// Total pool 300, 10% house cut 30, distributable 270.
	// Daily table 50/30/20 → 135/81/54.
	if report.HouseCut != 30 {
		t.Errorf("house cut = %d, want 30", report.HouseCut)
	}
	if report.TotalDistributed != 270 {
		t.Errorf("distributed = %d, want 270", report.TotalDistributed)
	}
	wantAmounts := map[string]int64{"alice": 135, "bob": 81, "carol": 54}
	if len(report.Payouts) != len(wantAmounts) {
		t.Fatalf("payout count = %d, want %d", len(report.Payouts), len(wantAmounts))
	}
	for _, p := range report.Payouts {
		if p.Amount != wantAmounts[p.UserID] {
			t.Errorf("payout[%s] = %d, want %d", p.UserID, p.Amount, wantAmounts[p.UserID])
		}
	}
	if report.RemainderPolicy != model.RemainderNone {
		t.Errorf("remainder policy = %s, want %s", report.RemainderPolicy, model.RemainderNone)
	}

	// Winners credited in the ledger.
	// alice opened at 10000, staked 100, won 135.
	if got := f.led.Balance("alice", model.WalletPersonal); got != 10_035 {
		t.Errorf("alice balance = %d, want 10035", got)
	}
	// dave staked 100 and won nothing.
	if got := f.led.Balance("dave", model.WalletPersonal); got != 9_900 {
		t.Errorf("dave balance = %d, want 9900", got)
	}

	// Pool record reflects the settlement.
	settled, _ := f.ctrl.Get(ctx, pool.ID)
	if settled.Status != model.PoolSettled {
		t.Errorf("pool status = %s, want %s", settled.Status, model.PoolSettled)
	}
	if settled.HouseCut != 30 || settled.PrizePool != 270 {
		t.Errorf("pool house_cut/prize_pool = %d/%d, want 30/270", settled.HouseCut, settled.PrizePool)
	}
	if settled.SettledAt == nil {
		t.Error("pool settled_at not set")
	}

	// Entries finalized: winners SETTLED, non-winners VOID.
	entries, _ := f.reg.ListEntriesByPool(ctx, pool.ID)
	for _, e := range entries {
		want := model.StakeVoid
		if _, ok := wantAmounts[e.UserID]; ok {
			want = model.StakeSettled
		}
		if e.Status != want {
			t.Errorf("entry[%s] status = %s, want %s", e.UserID, e.Status, want)
		}
	}
}

func TestSettleRemainderGoesToFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.createActivePool(t, model.TypeDaily)

	// Three entrants, 11 units each: burn 2, contribution 9 → pool 27.
	// House cut floor(27×0.10)=2, distributable 25.
	// Daily shares: 12/7/5, sum 24, remainder 1 to rank 1.
	for i, u := range []string{"u1", "u2", "u3"} {
		f.placeStake(t, u, pool.ID, 11)
		f.board.SubmitScore(pool.ID, leaderboard.Score{UserID: u, Score: int64(30 - i)})
	}

	report, err := f.ctrl.Settle(ctx, pool.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if report.RemainderPolicy != model.RemainderToFirst {
		t.Fatalf("remainder policy = %s, want %s", report.RemainderPolicy, model.RemainderToFirst)
	}
	if report.Payouts[0].Amount != 13 {
		t.Errorf("first payout = %d, want 13 (12 + remainder 1)", report.Payouts[0].Amount)
	}
	if report.TotalDistributed != 25 {
		t.Errorf("distributed = %d, want 25", report.TotalDistributed)
	}
}

func TestSettleRollsBackOnDistributionFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.createActivePool(t, model.TypeDaily)

	f.placeStake(t, "alice", pool.ID, 100)
	f.board.SubmitScore(pool.ID, leaderboard.Score{UserID: "alice", Score: 10})

	f.led.DistributeErr = errors.New("ledger unreachable")

	report, err := f.ctrl.Settle(ctx, pool.ID)
	if !errors.Is(err, ErrDistributionFailed) {
		t.Fatalf("err = %v, want ErrDistributionFailed", err)
	}
	if report == nil || report.Success {
		t.Fatalf("report = %+v, want failure report", report)
	}
	if report.Error == "" {
		t.Error("failure report carries no error text")
	}

	// Rolled back to ACTIVE: no credits, entry untouched, re-attemptable.
	got, _ := f.ctrl.Get(ctx, pool.ID)
	if got.Status != model.PoolActive {
		t.Fatalf("pool status after rollback = %s, want %s", got.Status, model.PoolActive)
	}
	if bal := f.led.Balance("alice", model.WalletPersonal); bal != 9_900 {
		t.Errorf("alice balance = %d, want 9900 (no payout credited)", bal)
	}
	entries, _ := f.reg.ListEntriesByPool(ctx, pool.ID)
	if entries[0].Status != model.StakeActive {
		t.Errorf("entry status = %s, want %s", entries[0].Status, model.StakeActive)
	}

	// A later attempt succeeds once the ledger recovers.
	f.led.DistributeErr = nil
	report, err = f.ctrl.Settle(ctx, pool.ID)
	if err != nil {
		t.Fatalf("retry Settle: %v", err)
	}
	if !report.Success {
		t.Fatalf("retry report.Success = false, error %q", report.Error)
	}

	// The success report replaces the stored failure report.
	stored, err := f.ctrl.Report(pool.ID)
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !stored.Success {
		t.Error("stored report still the failure report after successful retry")
	}
}

func TestSettleTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.createActivePool(t, model.TypeDaily)

	f.placeStake(t, "alice", pool.ID, 50)
	f.board.SubmitScore(pool.ID, leaderboard.Score{UserID: "alice", Score: 1})

	if _, err := f.ctrl.Settle(ctx, pool.ID); err != nil {
		t.Fatalf("first Settle: %v", err)
	}
	if _, err := f.ctrl.Settle(ctx, pool.ID); !errors.Is(err, registry.ErrStatusConflict) {
		t.Fatalf("second Settle: err = %v, want ErrStatusConflict", err)
	}
}

func TestSettlePercentilePool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.createActivePool(t, model.TypePercentile)

	// 20 entrants, 100 each: contribution 75 apiece → pool 1500.
	// House cut 10% = 150, distributable 1350.
	for i := 0; i < 20; i++ {
		u := string(rune('a'+i)) + "-player"
		f.placeStake(t, u, pool.ID, 100)
		f.board.SubmitScore(pool.ID, leaderboard.Score{UserID: u, Score: int64(100 - i)})
	}

	report, err := f.ctrl.Settle(ctx, pool.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !report.Success {
		t.Fatalf("report.Success = false, error %q", report.Error)
	}
	if report.TotalDistributed != 1350 {
		t.Errorf("distributed = %d, want full distributable 1350", report.TotalDistributed)
	}
	var sum int64
	for _, p := range report.Payouts {
		sum += p.Amount
	}
	if sum != report.TotalDistributed {
		t.Errorf("payout sum %d != reported total %d", sum, report.TotalDistributed)
	}
}

func TestCancelRefundsActiveEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.createActivePool(t, model.TypeWeekly)

	f.placeStake(t, "alice", pool.ID, 100)
	f.placeStake(t, "bob", pool.ID, 40)

	if err := f.ctrl.Cancel(ctx, pool.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, _ := f.ctrl.Get(ctx, pool.ID)
	if got.Status != model.PoolCancelled {
		t.Fatalf("status = %s, want %s", got.Status, model.PoolCancelled)
	}

	// Refunds return the pool contribution only; the burn is gone.
	// alice: 10000 − 100 + 75 = 9975. bob: 10000 − 40 + 30 = 9990.
	if bal := f.led.Balance("alice", model.WalletPersonal); bal != 9_975 {
		t.Errorf("alice balance = %d, want 9975", bal)
	}
	if bal := f.led.Balance("bob", model.WalletPersonal); bal != 9_990 {
		t.Errorf("bob balance = %d, want 9990", bal)
	}

	entries, _ := f.reg.ListEntriesByPool(ctx, pool.ID)
	for _, e := range entries {
		if e.Status != model.StakeRefunded {
			t.Errorf("entry[%s] status = %s, want %s", e.UserID, e.Status, model.StakeRefunded)
		}
	}
}

func TestCancelSettledPoolRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pool := f.createActivePool(t, model.TypeDaily)

	f.placeStake(t, "alice", pool.ID, 50)
	f.board.SubmitScore(pool.ID, leaderboard.Score{UserID: "alice", Score: 1})
	if _, err := f.ctrl.Settle(ctx, pool.ID); err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if err := f.ctrl.Cancel(ctx, pool.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("Cancel settled pool: err = %v, want ErrNotCancellable", err)
	}
}

func TestReportMissing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ctrl.Report("nope"); !errors.Is(err, ErrNoReport) {
		t.Fatalf("err = %v, want ErrNoReport", err)
	}
}
