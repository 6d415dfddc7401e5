// Package ledger defines the external transaction-ledger contract. The
// ledger is the single source of truth for balances: it performs the atomic
// debit/credit for every stake, refund, settlement, and bulk distribution,
// and returns a stable receipt hash for each commit.
//
// The settlement engine treats its own checks as advisory pre-flight and
// never retries a failed ledger call; idempotent retry is the ledger's
// responsibility. Receipt hashes are audit display strings only; the engine
// passes them through unmodified and never relies on them for correctness.
//
// Implementations: in-memory (testing fake and dev default) and PostgreSQL
// (debit/credit inside one transaction).
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrEntryNotFound is returned for refund/settle calls naming an entry
	// the ledger has no record of.
	ErrEntryNotFound = errors.New("ledger: entry not found")

	// ErrEntryFinalized is returned when refunding or settling an entry
	// that was already refunded or settled.
	ErrEntryFinalized = errors.New("ledger: entry already finalized")

	// ErrInsufficientBalance is returned when the source wallet cannot
	// cover the gross stake.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrAlreadyDistributed is returned for a second bulk distribution on
	// the same pool. This is the ledger-side half of the exactly-once
	// settlement guarantee.
	ErrAlreadyDistributed = errors.New("ledger: pool already distributed")
)

// StakeParams carries one atomic stake commit: the gross debit and its
// derived burn/contribution split, plus the wallet source tag under the
// triple-wallet isolation contract.
type StakeParams struct {
	Identity         string
	PoolID           string
	Gross            int64
	Burn             int64
	PoolContribution int64
	WalletSource     string
	Metadata         map[string]string
}

// Receipt is the ledger's commit acknowledgement. HashID is the immutable
// receipt identifier minted by the ledger.
type Receipt struct {
	EntryID      string `json:"entry_id"`
	HashID       string `json:"hash_id"`
	BalanceAfter int64  `json:"balance_after"`
}

// Award is one entrant's payout line in a bulk distribution.
type Award struct {
	Identity   string `json:"identity"`
	Amount     int64  `json:"amount"`
	Rank       int    `json:"rank"`
	Percentile int    `json:"percentile"`
}

// Ledger is the narrow external contract: exactly the four atomic
// operations the engine delegates outward.
type Ledger interface {
	// AtomicStake debits the gross amount from the identity's source
	// wallet and credits the pool, in one transaction.
	AtomicStake(ctx context.Context, params StakeParams) (*Receipt, error)

	// AtomicRefund returns an entry's pool contribution to its owner.
	// The burned portion is never returned.
	AtomicRefund(ctx context.Context, entryID, reason string) (*Receipt, error)

	// AtomicSettle credits a computed payout for one entry.
	AtomicSettle(ctx context.Context, entryID string, payout int64) (*Receipt, error)

	// BulkDistribute commits a pool's house cut and all entrant awards as
	// one operation. A second call for the same pool must fail.
	BulkDistribute(ctx context.Context, poolID string, awards []Award, houseCut int64) error
}
