package leaderboard

import (
	"context"
	"testing"
	"time"
)

func TestFetchStandings_TieBreakOrder(t *testing.T) {
	b := NewMemoryBoard()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Same score: lower latency wins; same latency: earlier entry wins.
	b.SubmitScore("pool1", Score{UserID: "slow", Score: 100, LatencyMs: 80, EnteredAt: base})
	b.SubmitScore("pool1", Score{UserID: "fast", Score: 100, LatencyMs: 20, EnteredAt: base})
	b.SubmitScore("pool1", Score{UserID: "late", Score: 100, LatencyMs: 20, EnteredAt: base.Add(time.Minute)})
	b.SubmitScore("pool1", Score{UserID: "top", Score: 200, LatencyMs: 999, EnteredAt: base})

	standings, err := b.FetchStandings(context.Background(), "pool1", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"top", "fast", "late", "slow"}
	if len(standings) != len(wantOrder) {
		t.Fatalf("expected %d standings, got %d", len(wantOrder), len(standings))
	}
	for i, want := range wantOrder {
		if standings[i].UserID != want {
			t.Errorf("position %d = %s, want %s", i, standings[i].UserID, want)
		}
		if standings[i].Rank != i+1 {
			t.Errorf("position %d rank = %d, want %d", i, standings[i].Rank, i+1)
		}
	}
}

func TestFetchStandings_Percentiles(t *testing.T) {
	b := NewMemoryBoard()
	for i := 0; i < 4; i++ {
		b.SubmitScore("pool1", Score{
			UserID: string(rune('a' + i)),
			Score:  int64(100 - i),
		})
	}

	standings, _ := b.FetchStandings(context.Background(), "pool1", 0, 0)
	want := []int{25, 50, 75, 100}
	for i, s := range standings {
		if s.Percentile != want[i] {
			t.Errorf("rank %d percentile = %d, want %d", s.Rank, s.Percentile, want[i])
		}
	}
}

func TestFetchStandings_PaginationKeepsGlobalRank(t *testing.T) {
	b := NewMemoryBoard()
	for i := 0; i < 10; i++ {
		b.SubmitScore("pool1", Score{
			UserID: string(rune('a' + i)),
			Score:  int64(100 - i),
		})
	}

	page, err := b.FetchStandings(context.Background(), "pool1", 3, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 standings, got %d", len(page))
	}
	// Ranks and percentiles are computed over the full field, not the page.
	if page[0].Rank != 6 || page[0].Percentile != 60 {
		t.Errorf("first page item: rank %d percentile %d, want 6/60", page[0].Rank, page[0].Percentile)
	}
}

func TestFetchStandings_OffsetPastEnd(t *testing.T) {
	b := NewMemoryBoard()
	b.SubmitScore("pool1", Score{UserID: "only", Score: 1})

	page, err := b.FetchStandings(context.Background(), "pool1", 10, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page) != 0 {
		t.Errorf("expected empty page, got %d", len(page))
	}
}

func TestSubmitScore_ReplacesPrevious(t *testing.T) {
	b := NewMemoryBoard()
	b.SubmitScore("pool1", Score{UserID: "user1", Score: 50})
	b.SubmitScore("pool1", Score{UserID: "user1", Score: 150})

	standings, _ := b.FetchStandings(context.Background(), "pool1", 0, 0)
	if len(standings) != 1 {
		t.Fatalf("expected 1 standing, got %d", len(standings))
	}
	if standings[0].Score != 150 {
		t.Errorf("score = %d, want replacement value 150", standings[0].Score)
	}
}
