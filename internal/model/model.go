// Package model defines the core domain types shared across the settlement
// engine. All monetary amounts are whole integer units; fractional rates
// (burn, house cut) are shopspring/decimal and applied with floor rounding.
// float64 is never used for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BurnRate is the fraction of every gross stake that is permanently
// destroyed. Fixed by design law, not configurable per instance.
var BurnRate = decimal.NewFromFloat(0.25)

// Stake entry statuses. Entries are append-only: status moves forward,
// rows are never deleted.
const (
	StakeActive   = "ACTIVE"
	StakeSettled  = "SETTLED"
	StakeRefunded = "REFUNDED"
	StakeVoid     = "VOID"
)

// Prize pool lifecycle statuses.
const (
	PoolRegistering  = "REGISTERING"
	PoolActive       = "ACTIVE"
	PoolCalculating  = "CALCULATING"
	PoolDistributing = "DISTRIBUTING"
	PoolSettled      = "SETTLED"
	PoolCancelled    = "CANCELLED"
)

// Pool types. All types use fixed-rank payout tables except TypePercentile,
// which splits the pool across percentile bands.
const (
	TypeDaily        = "DAILY"
	TypeWeekly       = "WEEKLY"
	TypeChampionship = "CHAMPIONSHIP"
	TypePercentile   = "PERCENTILE"
)

// Wallet source tags under the triple-wallet isolation contract. The engine
// forwards the tag to the ledger and never merges wallet balances locally.
const (
	WalletPersonal = "PERSONAL"
	WalletStaked   = "STAKED"
	WalletMakeup   = "MAKEUP"
)

// StakeEntry is one user's committed stake into one pool.
// Invariant: Gross == Burn + PoolContribution at all times.
type StakeEntry struct {
	ID               string     `json:"id" db:"id"`
	UserID           string     `json:"user_id" db:"user_id"`
	PoolID           string     `json:"pool_id" db:"pool_id"`
	Gross            int64      `json:"gross" db:"gross"`
	Burn             int64      `json:"burn" db:"burn"`
	PoolContribution int64      `json:"pool_contribution" db:"pool_contribution"`
	Status           string     `json:"status" db:"status"`
	WalletSource     string     `json:"wallet_source" db:"wallet_source"`
	HashID           string     `json:"hash_id" db:"hash_id"` // ledger receipt, passed through unmodified
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	SettledAt        *time.Time `json:"settled_at,omitempty" db:"settled_at"`
}

// PrizePool is one competition instance.
// Invariant: PrizePool == TotalPool - HouseCut.
type PrizePool struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Type        string     `json:"type" db:"type"`
	Status      string     `json:"status" db:"status"`
	EntryFee    int64      `json:"entry_fee" db:"entry_fee"`
	TotalPool   int64      `json:"total_pool" db:"total_pool"` // sum of pool contributions
	TotalBurned int64      `json:"total_burned" db:"total_burned"`
	HouseCut    int64      `json:"house_cut" db:"house_cut"`
	PrizePool   int64      `json:"prize_pool" db:"prize_pool"`
	Entrants    int        `json:"entrants" db:"entrants"`
	MaxEntrants int        `json:"max_entrants" db:"max_entrants"`
	StartsAt    time.Time  `json:"starts_at" db:"starts_at"`
	EndsAt      time.Time  `json:"ends_at" db:"ends_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty" db:"settled_at"`
}

// Standing is a ranked participant snapshot for a pool. Derived per request,
// never persisted by this engine.
type Standing struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Score       int64     `json:"score"`
	Rank        int       `json:"rank"`       // 1-based
	Percentile  int       `json:"percentile"` // ceil(rank/total*100), 100 when total is 0
	LatencyMs   int64     `json:"latency_ms"` // tie-break after score
	EnteredAt   time.Time `json:"entered_at"`
}

// PayoutResult is one computed award. Value object, produced fresh per
// calculation and never mutated.
type PayoutResult struct {
	UserID     string `json:"user_id"`
	Rank       int    `json:"rank"`
	Percentile int    `json:"percentile"`
	Tier       string `json:"tier"`
	Amount     int64  `json:"amount"`
	PoolShare  string `json:"pool_share"`
}

// DistributionReport is the write-once audit record of one settlement run.
type DistributionReport struct {
	Success          bool           `json:"success"`
	PoolID           string         `json:"pool_id"`
	TotalDistributed int64          `json:"total_distributed"`
	HouseCut         int64          `json:"house_cut"`
	Payouts          []PayoutResult `json:"payouts"`
	RemainderPolicy  string         `json:"remainder_policy"`
	SettledAt        time.Time      `json:"settled_at"`
	Error            string         `json:"error,omitempty"`
}

// Remainder policies recorded on distribution reports.
const (
	RemainderToFirst = "ADDED_TO_FIRST"
	RemainderBurned  = "BURNED" // failure paths only, never a successful run
	RemainderNone    = "NONE"
)

// Percentile returns ceil(rank/total × 100) for a 1-based rank. A total of
// zero is forced to 100 to avoid division by zero.
func Percentile(rank, total int) int {
	if total <= 0 {
		return 100
	}
	return (rank*100 + total - 1) / total
}

// FloorMul returns floor(amount × rate) in integer units. This is the single
// rounding rule for every fractional rate in the engine.
func FloorMul(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}

// SplitStake computes the burn/contribution split for a gross stake.
// burn == floor(gross × BurnRate); contribution is the exact complement,
// so burn + contribution == gross always holds.
func SplitStake(gross int64) (burn, contribution int64) {
	burn = FloorMul(gross, BurnRate)
	return burn, gross - burn
}

// ValidWalletSource reports whether tag is one of the three wallet sources.
func ValidWalletSource(tag string) bool {
	switch tag {
	case WalletPersonal, WalletStaked, WalletMakeup:
		return true
	}
	return false
}

// ValidPoolType reports whether t is a known pool type.
func ValidPoolType(t string) bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeChampionship, TypePercentile:
		return true
	}
	return false
}
