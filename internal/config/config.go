// Package config defines the economic configuration for the settlement
// engine (tier bands, payout tables, house rates, and rate-guard policy)
// and validates it at startup. Values are populated from built-in defaults
// and optionally overridden by a TOML file.
//
// Connection-level settings (PORT, DATABASE_URL, REDIS_URL) stay in the
// environment; this package only owns the economic tables.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/arenax/settlement-engine/internal/model"
)

// TierBand maps an inclusive stake range to a named tier. MinLevel is an
// eligibility hint for display callers, not enforced here.
type TierBand struct {
	Name     string `toml:"name"`
	Min      int64  `toml:"min"`
	Max      int64  `toml:"max"`
	MinLevel int    `toml:"min_level"`
}

// GuardConfig holds the rate-guard policy knobs.
type GuardConfig struct {
	CooldownMs        int64 `toml:"cooldown_ms"`
	VelocityThreshold int64 `toml:"velocity_threshold"`
}

// RankShare assigns a percentage of the distributable pool to one rank.
type RankShare struct {
	Rank    int   `toml:"rank"`
	Percent int64 `toml:"percent"`
}

// PercentileBand assigns a percentage share of the pool to all entrants
// whose percentile falls at or below Max (and above the previous band's Max).
type PercentileBand struct {
	Max     int    `toml:"max"`
	Percent int64  `toml:"percent"`
	Label   string `toml:"label"`
}

// Config is the validated economic configuration.
type Config struct {
	MinPayout       int64                      `toml:"min_payout"`
	Guard           GuardConfig                `toml:"guard"`
	Tiers           []TierBand                 `toml:"tiers"`
	HouseRates      map[string]decimal.Decimal `toml:"house_rates"`
	RankTables      map[string][]RankShare     `toml:"rank_tables"`
	PercentileBands []PercentileBand           `toml:"percentile_bands"`
}

// Default returns the built-in economic tables.
func Default() *Config {
	return &Config{
		MinPayout: 1,
		Guard: GuardConfig{
			CooldownMs:        120_000,
			VelocityThreshold: 50_000,
		},
		Tiers: []TierBand{
			{Name: "MICRO", Min: 10, Max: 24, MinLevel: 1},
			{Name: "LOW", Min: 25, Max: 49, MinLevel: 3},
			{Name: "MEDIUM", Min: 50, Max: 99, MinLevel: 5},
			{Name: "HIGH", Min: 100, Max: 249, MinLevel: 10},
			{Name: "ELITE", Min: 250, Max: 100_000, MinLevel: 20},
		},
		HouseRates: map[string]decimal.Decimal{
			model.TypeDaily:        decimal.NewFromFloat(0.10),
			model.TypeWeekly:       decimal.NewFromFloat(0.08),
			model.TypeChampionship: decimal.NewFromFloat(0.05),
			model.TypePercentile:   decimal.NewFromFloat(0.10),
		},
		RankTables: map[string][]RankShare{
			model.TypeDaily: {
				{Rank: 1, Percent: 50}, {Rank: 2, Percent: 30}, {Rank: 3, Percent: 20},
			},
			model.TypeWeekly: {
				{Rank: 1, Percent: 40}, {Rank: 2, Percent: 25}, {Rank: 3, Percent: 15},
				{Rank: 4, Percent: 10}, {Rank: 5, Percent: 10},
			},
			model.TypeChampionship: {
				{Rank: 1, Percent: 30}, {Rank: 2, Percent: 20}, {Rank: 3, Percent: 15},
				{Rank: 4, Percent: 10}, {Rank: 5, Percent: 8}, {Rank: 6, Percent: 7},
				{Rank: 7, Percent: 5}, {Rank: 8, Percent: 5},
			},
		},
		PercentileBands: []PercentileBand{
			{Max: 1, Percent: 30, Label: "TOP_1"},
			{Max: 5, Percent: 20, Label: "TOP_5"},
			{Max: 10, Percent: 15, Label: "TOP_10"},
			{Max: 25, Percent: 15, Label: "TOP_25"},
			{Max: 50, Percent: 12, Label: "TOP_50"},
			{Max: 100, Percent: 8, Label: "TOP_100"},
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path, validated.
// An empty path returns validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants of the economic tables. Dynamic
// tables are rejected at startup rather than trusted at settlement time.
func (c *Config) Validate() error {
	if c.MinPayout < 1 {
		return fmt.Errorf("config: min_payout must be >= 1, got %d", c.MinPayout)
	}
	if c.Guard.CooldownMs <= 0 {
		return fmt.Errorf("config: guard cooldown_ms must be positive, got %d", c.Guard.CooldownMs)
	}
	if c.Guard.VelocityThreshold <= 0 {
		return fmt.Errorf("config: guard velocity_threshold must be positive, got %d", c.Guard.VelocityThreshold)
	}

	if len(c.Tiers) == 0 {
		return fmt.Errorf("config: at least one tier band required")
	}
	for i, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("config: tier %d has no name", i)
		}
		if t.Min > t.Max {
			return fmt.Errorf("config: tier %s has min %d > max %d", t.Name, t.Min, t.Max)
		}
		// Contiguous, non-overlapping, ascending.
		if i > 0 && t.Min != c.Tiers[i-1].Max+1 {
			return fmt.Errorf("config: tier %s starts at %d, expected %d (gap or overlap after %s)",
				t.Name, t.Min, c.Tiers[i-1].Max+1, c.Tiers[i-1].Name)
		}
	}

	one := decimal.NewFromInt(1)
	for poolType, rate := range c.HouseRates {
		if !model.ValidPoolType(poolType) {
			return fmt.Errorf("config: house rate for unknown pool type %s", poolType)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			return fmt.Errorf("config: house rate for %s must be in [0,1), got %s", poolType, rate)
		}
	}
	for _, poolType := range []string{model.TypeDaily, model.TypeWeekly, model.TypeChampionship, model.TypePercentile} {
		if _, ok := c.HouseRates[poolType]; !ok {
			return fmt.Errorf("config: missing house rate for pool type %s", poolType)
		}
	}

	for poolType, table := range c.RankTables {
		if !model.ValidPoolType(poolType) || poolType == model.TypePercentile {
			return fmt.Errorf("config: rank table for invalid pool type %s", poolType)
		}
		seen := make(map[int]bool, len(table))
		var sum int64
		for _, rs := range table {
			if rs.Rank < 1 {
				return fmt.Errorf("config: rank table %s has rank %d", poolType, rs.Rank)
			}
			if seen[rs.Rank] {
				return fmt.Errorf("config: rank table %s repeats rank %d", poolType, rs.Rank)
			}
			seen[rs.Rank] = true
			if rs.Percent <= 0 {
				return fmt.Errorf("config: rank table %s rank %d has percent %d", poolType, rs.Rank, rs.Percent)
			}
			sum += rs.Percent
		}
		if sum > 100 {
			return fmt.Errorf("config: rank table %s percentages sum to %d (> 100)", poolType, sum)
		}
	}
	for _, poolType := range []string{model.TypeDaily, model.TypeWeekly, model.TypeChampionship} {
		if len(c.RankTables[poolType]) == 0 {
			return fmt.Errorf("config: missing rank table for pool type %s", poolType)
		}
	}

	if len(c.PercentileBands) == 0 {
		return fmt.Errorf("config: at least one percentile band required")
	}
	prev := 0
	var bandSum int64
	for _, b := range c.PercentileBands {
		if b.Max <= prev {
			return fmt.Errorf("config: percentile band maxima must be strictly increasing, got %d after %d", b.Max, prev)
		}
		if b.Percent <= 0 {
			return fmt.Errorf("config: percentile band <=%d has percent %d", b.Max, b.Percent)
		}
		if b.Label == "" {
			return fmt.Errorf("config: percentile band <=%d has no label", b.Max)
		}
		prev = b.Max
		bandSum += b.Percent
	}
	if prev != 100 {
		return fmt.Errorf("config: last percentile band must end at 100, got %d", prev)
	}
	if bandSum > 100 {
		return fmt.Errorf("config: percentile band shares sum to %d (> 100)", bandSum)
	}

	return nil
}
