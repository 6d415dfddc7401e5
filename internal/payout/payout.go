// Package payout computes prize awards from final standings. It implements
// two distribution structures over the distributable pool D:
//
//	Fixed-rank:   amount(rank) = floor(D × percent(rank) / 100)
//	Percentile:   perEntrant   = floor(floor(D × bandShare / 100) / bandCount)
//
// All math is integer with floor rounding, so awards never exceed the pool
// and the leftover is handled by ApplyRemainder. The engine is a pure
// function of its inputs: no I/O, no randomness, safe to call concurrently
// and repeatedly for previews or real settlement.
package payout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/arenax/settlement-engine/internal/config"
	"github.com/arenax/settlement-engine/internal/model"
)

// ErrUnknownPoolType is returned when no payout structure is configured for
// the requested pool type.
var ErrUnknownPoolType = errors.New("payout: unknown pool type")

// Engine computes payouts from immutable configuration tables.
type Engine struct {
	rankTables map[string][]config.RankShare
	bands      []config.PercentileBand
	houseRates map[string]decimal.Decimal
	minPayout  int64
}

// NewEngine creates a payout engine over the validated economic config.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		rankTables: cfg.RankTables,
		bands:      cfg.PercentileBands,
		houseRates: cfg.HouseRates,
		minPayout:  cfg.MinPayout,
	}
}

// HouseCut returns floor(totalPool × houseRate) for the pool type.
func (e *Engine) HouseCut(poolType string, totalPool int64) (int64, error) {
	rate, ok := e.houseRates[poolType]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPoolType, poolType)
	}
	return model.FloorMul(totalPool, rate), nil
}

// ComputePayouts returns per-participant awards for the given standings and
// distributable amount, ordered by rank. Awards below the minimum payout are
// dropped rather than rounded up.
func (e *Engine) ComputePayouts(poolType string, standings []model.Standing, distributable int64) ([]model.PayoutResult, error) {
	if poolType == model.TypePercentile {
		return e.computePercentile(standings, distributable), nil
	}
	table, ok := e.rankTables[poolType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPoolType, poolType)
	}
	return e.computeFixedRank(table, standings, distributable), nil
}

// computeFixedRank awards each configured rank present in the standings its
// fixed percentage of the pool.
func (e *Engine) computeFixedRank(table []config.RankShare, standings []model.Standing, distributable int64) []model.PayoutResult {
	percents := make(map[int]int64, len(table))
	for _, rs := range table {
		percents[rs.Rank] = rs.Percent
	}

	results := make([]model.PayoutResult, 0, len(table))
	for _, s := range standings {
		pct, ok := percents[s.Rank]
		if !ok {
			continue
		}
		amount := share(distributable, pct)
		if amount < e.minPayout {
			continue
		}
		results = append(results, model.PayoutResult{
			UserID:     s.UserID,
			Rank:       s.Rank,
			Percentile: s.Percentile,
			Tier:       rankTierLabel(s.Rank),
			Amount:     amount,
			PoolShare:  fmt.Sprintf("%d%% of prize pool", pct),
		})
	}
	return results
}

// computePercentile splits each band's pool share equally among the
// standings whose percentile falls in that band. Band membership is
// prevMax < percentile <= bandMax, so each entrant belongs to exactly
// one band.
func (e *Engine) computePercentile(standings []model.Standing, distributable int64) []model.PayoutResult {
	var results []model.PayoutResult

	prevMax := 0
	for _, band := range e.bands {
		var members []model.Standing
		for _, s := range standings {
			if s.Percentile > prevMax && s.Percentile <= band.Max {
				members = append(members, s)
			}
		}
		if len(members) > 0 {
			bandPool := share(distributable, band.Percent)
			perEntrant := bandPool / int64(len(members))
			if perEntrant >= e.minPayout {
				for _, s := range members {
					results = append(results, model.PayoutResult{
						UserID:     s.UserID,
						Rank:       s.Rank,
						Percentile: s.Percentile,
						Tier:       band.Label,
						Amount:     perEntrant,
						PoolShare: fmt.Sprintf("%d%% band split %d way(s)",
							band.Percent, len(members)),
					})
				}
			}
		}
		prevMax = band.Max
	}
	return results
}

// ApplyRemainder adds the undistributed leftover to the first payout and
// returns it. With at least one payout, sum(amounts) == distributable holds
// exactly afterwards. A remainder with no payouts is returned untouched for
// the caller's report.
func ApplyRemainder(payouts []model.PayoutResult, distributable int64) (remainder int64) {
	var sum int64
	for _, p := range payouts {
		sum += p.Amount
	}
	remainder = distributable - sum
	if remainder > 0 && len(payouts) > 0 {
		payouts[0].Amount += remainder
	}
	return remainder
}

// Preview is the ledger-free payout projection for UI callers.
type Preview struct {
	PoolType      string               `json:"pool_type"`
	TotalPool     int64                `json:"total_pool"`
	HouseCut      int64                `json:"house_cut"`
	Distributable int64                `json:"distributable"`
	Entrants      int                  `json:"entrants"`
	Payouts       []model.PayoutResult `json:"payouts"`
}

// PreviewPayouts runs the same math as a real settlement over synthetic,
// evenly spread standings without touching the ledger. Receipt-less by
// construction, useful for "what would I win" displays.
func (e *Engine) PreviewPayouts(poolType string, totalPool int64, entrantCount int) (*Preview, error) {
	houseCut, err := e.HouseCut(poolType, totalPool)
	if err != nil {
		return nil, err
	}
	distributable := totalPool - houseCut

	standings := make([]model.Standing, entrantCount)
	for i := range standings {
		rank := i + 1
		standings[i] = model.Standing{
			UserID:     fmt.Sprintf("entrant-%d", rank),
			Rank:       rank,
			Percentile: model.Percentile(rank, entrantCount),
		}
	}

	payouts, err := e.ComputePayouts(poolType, standings, distributable)
	if err != nil {
		return nil, err
	}
	ApplyRemainder(payouts, distributable)

	return &Preview{
		PoolType:      poolType,
		TotalPool:     totalPool,
		HouseCut:      houseCut,
		Distributable: distributable,
		Entrants:      entrantCount,
		Payouts:       payouts,
	}, nil
}

// rankTierLabel is the legacy rank-to-label mapping used outside percentile
// mode. It does not scale with field size; downstream display code keys on
// these exact strings.
func rankTierLabel(rank int) string {
	switch {
	case rank == 1:
		return "ELITE_1"
	case rank <= 3:
		return "TOP_5"
	case rank <= 5:
		return "TOP_10"
	default:
		return "TOP_25"
	}
}

var hundred = decimal.NewFromInt(100)

// share returns floor(amount × percent / 100).
func share(amount, percent int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(percent)).
		Div(hundred).
		Floor().
		IntPart()
}
