package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arenax/settlement-engine/internal/model"
)

// PostgresRegistry implements Registry using PostgreSQL as the source of
// truth. All amounts are BIGINT integer units.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a PostgreSQL-backed registry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

const poolColumns = `id, name, type, status, entry_fee, total_pool, total_burned,
	house_cut, prize_pool, entrants, max_entrants, starts_at, ends_at, created_at, settled_at`

func (r *PostgresRegistry) CreatePool(ctx context.Context, p *model.PrizePool) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO prize_pools (`+poolColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Name, p.Type, p.Status, p.EntryFee, p.TotalPool, p.TotalBurned,
		p.HouseCut, p.PrizePool, p.Entrants, p.MaxEntrants,
		p.StartsAt, p.EndsAt, p.CreatedAt, p.SettledAt,
	)
	return err
}

func scanPool(row pgx.Row) (*model.PrizePool, error) {
	var p model.PrizePool
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Status, &p.EntryFee,
		&p.TotalPool, &p.TotalBurned, &p.HouseCut, &p.PrizePool,
		&p.Entrants, &p.MaxEntrants, &p.StartsAt, &p.EndsAt,
		&p.CreatedAt, &p.SettledAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRegistry) GetPool(ctx context.Context, id string) (*model.PrizePool, error) {
	p, err := scanPool(r.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM prize_pools WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return p, nil
}

func (r *PostgresRegistry) ListPools(ctx context.Context) ([]model.PrizePool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+poolColumns+` FROM prize_pools ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.PrizePool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (r *PostgresRegistry) UpdateStatus(ctx context.Context, poolID, from, to string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE prize_pools SET status = $3 WHERE id = $1 AND status = $2`,
		poolID, from, to)
	if err != nil {
		return fmt.Errorf("update status %s: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPool(ctx, poolID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s not in %s", ErrStatusConflict, poolID, from)
	}
	return nil
}

func (r *PostgresRegistry) ApplyStake(ctx context.Context, poolID string, contribution, burn int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE prize_pools
		 SET total_pool = total_pool + $2,
		     total_burned = total_burned + $3,
		     entrants = entrants + 1
		 WHERE id = $1 AND status IN ('REGISTERING', 'ACTIVE')`,
		poolID, contribution, burn)
	if err != nil {
		return fmt.Errorf("apply stake %s: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPool(ctx, poolID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s not accepting stakes", ErrStatusConflict, poolID)
	}
	return nil
}

func (r *PostgresRegistry) ApplyRefund(ctx context.Context, poolID string, contribution int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE prize_pools
		 SET total_pool = total_pool - $2,
		     entrants = entrants - 1
		 WHERE id = $1`,
		poolID, contribution)
	if err != nil {
		return fmt.Errorf("apply refund %s: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return nil
}

func (r *PostgresRegistry) SetSettlement(ctx context.Context, poolID string, houseCut, prizePool int64, settledAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE prize_pools
		 SET house_cut = $2, prize_pool = $3, settled_at = $4
		 WHERE id = $1`,
		poolID, houseCut, prizePool, settledAt)
	if err != nil {
		return fmt.Errorf("set settlement %s: %w", poolID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPoolNotFound, poolID)
	}
	return nil
}

const entryColumns = `id, user_id, pool_id, gross, burn, pool_contribution,
	status, wallet_source, hash_id, created_at, settled_at`

func (r *PostgresRegistry) InsertEntry(ctx context.Context, e *model.StakeEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO stake_entries (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.UserID, e.PoolID, e.Gross, e.Burn, e.PoolContribution,
		e.Status, e.WalletSource, e.HashID, e.CreatedAt, e.SettledAt,
	)
	return err
}

func scanEntry(row pgx.Row) (*model.StakeEntry, error) {
	var e model.StakeEntry
	err := row.Scan(&e.ID, &e.UserID, &e.PoolID, &e.Gross, &e.Burn,
		&e.PoolContribution, &e.Status, &e.WalletSource, &e.HashID,
		&e.CreatedAt, &e.SettledAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresRegistry) GetEntry(ctx context.Context, id string) (*model.StakeEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM stake_entries WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return e, nil
}

func (r *PostgresRegistry) UpdateEntryStatus(ctx context.Context, id, status, hashID string, settledAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stake_entries
		 SET status = $2,
		     hash_id = CASE WHEN $3 = '' THEN hash_id ELSE $3 END,
		     settled_at = COALESCE($4, settled_at)
		 WHERE id = $1`,
		id, status, hashID, settledAt)
	if err != nil {
		return fmt.Errorf("update entry %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return nil
}

func (r *PostgresRegistry) ListEntriesByPool(ctx context.Context, poolID string) ([]model.StakeEntry, error) {
	return r.listEntries(ctx,
		`SELECT `+entryColumns+` FROM stake_entries WHERE pool_id = $1 ORDER BY created_at`, poolID)
}

func (r *PostgresRegistry) ListEntriesByUser(ctx context.Context, userID string) ([]model.StakeEntry, error) {
	return r.listEntries(ctx,
		`SELECT `+entryColumns+` FROM stake_entries WHERE user_id = $1 ORDER BY created_at`, userID)
}

func (r *PostgresRegistry) listEntries(ctx context.Context, query, arg string) ([]model.StakeEntry, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.StakeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
