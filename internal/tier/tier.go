// Package tier maps stake amounts to named stake tiers. Classification is a
// pure lookup over an immutable band table validated at startup, safe for
// any number of concurrent callers.
package tier

import (
	"errors"
	"fmt"

	"github.com/arenax/settlement-engine/internal/config"
)

// ErrInvalidStakeAmount is returned for amounts outside every configured
// tier band.
var ErrInvalidStakeAmount = errors.New("tier: invalid stake amount")

// Tier is a named stake band. MinLevel is an eligibility hint surfaced to
// display callers; the classifier does not enforce it.
type Tier struct {
	Name     string `json:"name"`
	Min      int64  `json:"min"`
	Max      int64  `json:"max"`
	MinLevel int    `json:"min_level"`
}

// Classifier resolves stake amounts to tiers. Bands are ordered, contiguous
// and non-overlapping (guaranteed by config validation).
type Classifier struct {
	bands []config.TierBand
}

// NewClassifier creates a classifier over the given validated band table.
func NewClassifier(bands []config.TierBand) *Classifier {
	return &Classifier{bands: bands}
}

// Classify returns the tier for amount, or ErrInvalidStakeAmount when the
// amount falls outside every band.
func (c *Classifier) Classify(amount int64) (Tier, error) {
	for _, b := range c.bands {
		if amount >= b.Min && amount <= b.Max {
			return Tier{Name: b.Name, Min: b.Min, Max: b.Max, MinLevel: b.MinLevel}, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %d (valid range %d-%d)",
		ErrInvalidStakeAmount, amount, c.bands[0].Min, c.bands[len(c.bands)-1].Max)
}

// Bounds returns the lowest and highest stakeable amounts.
func (c *Classifier) Bounds() (min, max int64) {
	return c.bands[0].Min, c.bands[len(c.bands)-1].Max
}
