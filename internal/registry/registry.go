// Package registry defines persistence for prize pools and the engine's
// stake-entry mirror. PostgreSQL is the source of truth; Redis provides a
// read-through cache layer; the in-memory implementation serves testing and
// development.
//
// The registry never decides anything: status transition legality belongs
// to the pool controller and stake service, which are the sole writers of
// pool and entry status respectively.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/arenax/settlement-engine/internal/model"
)

var (
	// ErrPoolNotFound is returned for operations naming an unknown pool.
	ErrPoolNotFound = errors.New("registry: pool not found")

	// ErrEntryNotFound is returned for operations naming an unknown entry.
	ErrEntryNotFound = errors.New("registry: entry not found")

	// ErrStatusConflict is returned by UpdateStatus when the pool is not in
	// the expected current status. This compare-and-set semantic backs the
	// CALCULATING soft lock during settlement.
	ErrStatusConflict = errors.New("registry: pool status conflict")
)

// Registry is the persistence interface for pools and stake entries.
type Registry interface {
	// --- Prize pools ---

	// CreatePool persists a new pool.
	CreatePool(ctx context.Context, pool *model.PrizePool) error

	// GetPool retrieves a pool by ID.
	GetPool(ctx context.Context, id string) (*model.PrizePool, error)

	// ListPools returns all pools, newest first.
	ListPools(ctx context.Context) ([]model.PrizePool, error)

	// UpdateStatus moves a pool from one status to another. Fails with
	// ErrStatusConflict when the pool is not currently in `from`.
	UpdateStatus(ctx context.Context, poolID, from, to string) error

	// ApplyStake adds one accepted stake to the pool aggregates.
	ApplyStake(ctx context.Context, poolID string, contribution, burn int64) error

	// ApplyRefund reverses one stake's aggregate effect.
	ApplyRefund(ctx context.Context, poolID string, contribution int64) error

	// SetSettlement records the house cut, prize pool and settlement time
	// computed at settlement.
	SetSettlement(ctx context.Context, poolID string, houseCut, prizePool int64, settledAt time.Time) error

	// --- Stake entries (append-only: inserts and status updates, never deletes) ---

	// InsertEntry persists a new stake entry.
	InsertEntry(ctx context.Context, entry *model.StakeEntry) error

	// GetEntry retrieves an entry by ID.
	GetEntry(ctx context.Context, id string) (*model.StakeEntry, error)

	// UpdateEntryStatus sets an entry's status and receipt fields.
	UpdateEntryStatus(ctx context.Context, id, status, hashID string, settledAt *time.Time) error

	// ListEntriesByPool returns all entries for a pool, oldest first.
	ListEntriesByPool(ctx context.Context, poolID string) ([]model.StakeEntry, error)

	// ListEntriesByUser returns all entries for a user, oldest first.
	ListEntriesByUser(ctx context.Context, userID string) ([]model.StakeEntry, error)
}
