package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arenax/settlement-engine/internal/model"
)

// PostgresLedger implements Ledger on PostgreSQL. Every operation runs in
// one transaction so the debit/credit and its entry record commit together
// or not at all.
//
// Schema: wallets(identity, wallet, balance), ledger_entries(id, identity,
// pool_id, gross, burn, pool_contribution, wallet_source, hash_id,
// final_hash, finalized, created_at), distributions(pool_id PRIMARY KEY,
// house_cut, hash_id, distributed_at), distribution_awards(pool_id,
// identity, amount, rank, percentile).
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a PostgreSQL-backed ledger.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

func (l *PostgresLedger) AtomicStake(ctx context.Context, params StakeParams) (*Receipt, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("stake begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`UPDATE wallets SET balance = balance - $3
		 WHERE identity = $1 AND wallet = $2 AND balance >= $3
		 RETURNING balance`,
		params.Identity, params.WalletSource, params.Gross).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrInsufficientBalance, params.Identity, params.WalletSource)
	}
	if err != nil {
		return nil, fmt.Errorf("stake debit: %w", err)
	}

	receipt := &Receipt{
		HashID:       MintHash(PrefixStake),
		BalanceAfter: balance,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO ledger_entries
		   (identity, pool_id, gross, burn, pool_contribution, wallet_source, hash_id, finalized, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, now())
		 RETURNING id`,
		params.Identity, params.PoolID, params.Gross, params.Burn,
		params.PoolContribution, params.WalletSource, receipt.HashID).Scan(&receipt.EntryID)
	if err != nil {
		return nil, fmt.Errorf("stake entry insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("stake commit: %w", err)
	}
	return receipt, nil
}

func (l *PostgresLedger) AtomicRefund(ctx context.Context, entryID, reason string) (*Receipt, error) {
	return l.finalize(ctx, entryID, PrefixRefund, func(e *entryRow) int64 {
		// Only the contribution comes back; the burn is permanent.
		return e.contribution
	})
}

func (l *PostgresLedger) AtomicSettle(ctx context.Context, entryID string, payout int64) (*Receipt, error) {
	return l.finalize(ctx, entryID, PrefixSettle, func(*entryRow) int64 {
		return payout
	})
}

type entryRow struct {
	identity     string
	contribution int64
	finalized    bool
}

// finalize locks an entry, credits the owner's personal wallet and marks
// the entry finalized, all in one transaction.
func (l *PostgresLedger) finalize(ctx context.Context, entryID, prefix string, credit func(*entryRow) int64) (*Receipt, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("finalize begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var e entryRow
	err = tx.QueryRow(ctx,
		`SELECT identity, pool_contribution, finalized
		 FROM ledger_entries WHERE id = $1 FOR UPDATE`, entryID).
		Scan(&e.identity, &e.contribution, &e.finalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize lookup %s: %w", entryID, err)
	}
	if e.finalized {
		return nil, fmt.Errorf("%w: %s", ErrEntryFinalized, entryID)
	}

	receipt := &Receipt{EntryID: entryID, HashID: MintHash(prefix)}

	err = tx.QueryRow(ctx,
		`UPDATE wallets SET balance = balance + $3
		 WHERE identity = $1 AND wallet = $2
		 RETURNING balance`,
		e.identity, model.WalletPersonal, credit(&e)).Scan(&receipt.BalanceAfter)
	if err != nil {
		return nil, fmt.Errorf("finalize credit %s: %w", entryID, err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE ledger_entries SET finalized = TRUE, final_hash = $2 WHERE id = $1`,
		entryID, receipt.HashID)
	if err != nil {
		return nil, fmt.Errorf("finalize mark %s: %w", entryID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("finalize commit %s: %w", entryID, err)
	}
	return receipt, nil
}

func (l *PostgresLedger) BulkDistribute(ctx context.Context, poolID string, awards []Award, houseCut int64) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("distribute begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// The primary key on pool_id enforces exactly-once distribution.
	_, err = tx.Exec(ctx,
		`INSERT INTO distributions (pool_id, house_cut, hash_id, distributed_at)
		 VALUES ($1, $2, $3, now())`,
		poolID, houseCut, MintHash(PrefixDistribute))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrAlreadyDistributed, poolID)
		}
		return fmt.Errorf("distribute record %s: %w", poolID, err)
	}

	for _, a := range awards {
		_, err = tx.Exec(ctx,
			`UPDATE wallets SET balance = balance + $3
			 WHERE identity = $1 AND wallet = $2`,
			a.Identity, model.WalletPersonal, a.Amount)
		if err != nil {
			return fmt.Errorf("distribute credit %s: %w", a.Identity, err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO distribution_awards (pool_id, identity, amount, rank, percentile)
			 VALUES ($1, $2, $3, $4, $5)`,
			poolID, a.Identity, a.Amount, a.Rank, a.Percentile)
		if err != nil {
			return fmt.Errorf("distribute award %s: %w", a.Identity, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("distribute commit %s: %w", poolID, err)
	}
	return nil
}
