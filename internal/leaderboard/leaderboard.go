// Package leaderboard defines the standings collaborator contract and an
// in-memory implementation. Standings are derived snapshots, recomputed per
// request, ordered by the settlement tie-break: score descending, latency
// ascending, entry time ascending.
package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/arenax/settlement-engine/internal/model"
)

// Provider supplies pre-ranked standings for a pool. Rank is the 1-based
// position in the tie-break order; percentile is ceil(rank/total×100).
type Provider interface {
	FetchStandings(ctx context.Context, poolID string, limit, offset int) ([]model.Standing, error)
}

// Score is one participant's reported result for a pool.
type Score struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Score       int64     `json:"score"`
	LatencyMs   int64     `json:"latency_ms,omitempty"`
	EnteredAt   time.Time `json:"entered_at,omitempty"`
}

// MemoryBoard implements Provider over an in-memory score table. A
// re-submitted score replaces the previous one for that user.
type MemoryBoard struct {
	mu     sync.RWMutex
	scores map[string]map[string]Score // poolID → userID → score
}

// NewMemoryBoard creates an empty in-memory leaderboard.
func NewMemoryBoard() *MemoryBoard {
	return &MemoryBoard{scores: make(map[string]map[string]Score)}
}

// SubmitScore records or replaces a participant's score for a pool.
func (b *MemoryBoard) SubmitScore(poolID string, s Score) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pool, ok := b.scores[poolID]
	if !ok {
		pool = make(map[string]Score)
		b.scores[poolID] = pool
	}
	pool[s.UserID] = s
}

// FetchStandings returns the pool's standings in tie-break order with ranks
// and percentiles assigned over the full field, then paginated. limit <= 0
// returns everything from offset.
func (b *MemoryBoard) FetchStandings(_ context.Context, poolID string, limit, offset int) ([]model.Standing, error) {
	b.mu.RLock()
	scores := make([]Score, 0, len(b.scores[poolID]))
	for _, s := range b.scores[poolID] {
		scores = append(scores, s)
	}
	b.mu.RUnlock()

	sort.Slice(scores, func(i, j int) bool {
		a, c := scores[i], scores[j]
		if a.Score != c.Score {
			return a.Score > c.Score
		}
		if a.LatencyMs != c.LatencyMs {
			return a.LatencyMs < c.LatencyMs
		}
		return a.EnteredAt.Before(c.EnteredAt)
	})

	total := len(scores)
	standings := make([]model.Standing, total)
	for i, s := range scores {
		rank := i + 1
		standings[i] = model.Standing{
			UserID:      s.UserID,
			DisplayName: s.DisplayName,
			Score:       s.Score,
			Rank:        rank,
			Percentile:  model.Percentile(rank, total),
			LatencyMs:   s.LatencyMs,
			EnteredAt:   s.EnteredAt,
		}
	}

	if offset >= total {
		return []model.Standing{}, nil
	}
	standings = standings[offset:]
	if limit > 0 && limit < len(standings) {
		standings = standings[:limit]
	}
	return standings, nil
}
