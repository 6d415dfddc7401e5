package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/arenax/settlement-engine/internal/model"
)

// MemoryLedger implements Ledger with in-memory maps. It is the development
// default and the testing fake. Error fields let tests simulate ledger
// failures on specific operations.
type MemoryLedger struct {
	mu          sync.Mutex
	opening     int64
	balances    map[string]map[string]int64 // identity → wallet → balance
	entries     map[string]*memEntry
	distributed map[string]bool

	// Failure injection for tests: when non-nil, the matching operation
	// fails without touching state.
	StakeErr      error
	RefundErr     error
	SettleErr     error
	DistributeErr error
}

type memEntry struct {
	identity     string
	poolID       string
	contribution int64
	finalized    bool
}

// NewMemoryLedger creates an in-memory ledger. Every wallet starts at the
// given opening balance the first time it is touched.
func NewMemoryLedger(opening int64) *MemoryLedger {
	return &MemoryLedger{
		opening:     opening,
		balances:    make(map[string]map[string]int64),
		entries:     make(map[string]*memEntry),
		distributed: make(map[string]bool),
	}
}

// SetBalance overrides one wallet balance. Test helper.
func (l *MemoryLedger) SetBalance(identity, wallet string, balance int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets(identity)[wallet] = balance
}

// Balance returns one wallet balance.
func (l *MemoryLedger) Balance(identity, wallet string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallets(identity)[wallet]
}

// wallets returns the identity's wallet map, initializing every wallet to
// the opening balance on first touch. Callers hold l.mu.
func (l *MemoryLedger) wallets(identity string) map[string]int64 {
	w, ok := l.balances[identity]
	if !ok {
		w = map[string]int64{
			model.WalletPersonal: l.opening,
			model.WalletStaked:   l.opening,
			model.WalletMakeup:   l.opening,
		}
		l.balances[identity] = w
	}
	return w
}

func (l *MemoryLedger) AtomicStake(_ context.Context, params StakeParams) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.StakeErr != nil {
		return nil, l.StakeErr
	}

	w := l.wallets(params.Identity)
	if w[params.WalletSource] < params.Gross {
		return nil, fmt.Errorf("%w: %s/%s has %d, need %d",
			ErrInsufficientBalance, params.Identity, params.WalletSource,
			w[params.WalletSource], params.Gross)
	}

	w[params.WalletSource] -= params.Gross

	entryID := uuid.New().String()
	l.entries[entryID] = &memEntry{
		identity:     params.Identity,
		poolID:       params.PoolID,
		contribution: params.PoolContribution,
	}

	return &Receipt{
		EntryID:      entryID,
		HashID:       MintHash(PrefixStake),
		BalanceAfter: w[params.WalletSource],
	}, nil
}

func (l *MemoryLedger) AtomicRefund(_ context.Context, entryID, _ string) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.RefundErr != nil {
		return nil, l.RefundErr
	}

	e, ok := l.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if e.finalized {
		return nil, fmt.Errorf("%w: %s", ErrEntryFinalized, entryID)
	}

	// Only the pool contribution comes back; the burn is gone.
	w := l.wallets(e.identity)
	w[model.WalletPersonal] += e.contribution
	e.finalized = true

	return &Receipt{
		EntryID:      entryID,
		HashID:       MintHash(PrefixRefund),
		BalanceAfter: w[model.WalletPersonal],
	}, nil
}

func (l *MemoryLedger) AtomicSettle(_ context.Context, entryID string, payout int64) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.SettleErr != nil {
		return nil, l.SettleErr
	}

	e, ok := l.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if e.finalized {
		return nil, fmt.Errorf("%w: %s", ErrEntryFinalized, entryID)
	}

	w := l.wallets(e.identity)
	w[model.WalletPersonal] += payout
	e.finalized = true

	return &Receipt{
		EntryID:      entryID,
		HashID:       MintHash(PrefixSettle),
		BalanceAfter: w[model.WalletPersonal],
	}, nil
}

func (l *MemoryLedger) BulkDistribute(_ context.Context, poolID string, awards []Award, _ int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.DistributeErr != nil {
		return l.DistributeErr
	}

	if l.distributed[poolID] {
		return fmt.Errorf("%w: %s", ErrAlreadyDistributed, poolID)
	}

	for _, a := range awards {
		w := l.wallets(a.Identity)
		w[model.WalletPersonal] += a.Amount
	}
	l.distributed[poolID] = true
	return nil
}
