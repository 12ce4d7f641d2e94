package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	dErrors "circulation/pkg/domain-errors"
	"circulation/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner is the Postgres tx.Runner. Each call runs in one SQL transaction and
// takes a transaction-scoped advisory lock per key, in sorted order. A call
// made while a transaction is already in the context joins it.
type TxRunner struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewTxRunner(db *sqlx.DB) *TxRunner {
	return &TxRunner{db: db, timeout: defaultTxTimeout}
}

func (r *TxRunner) RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if sqlTx, ok := tx.From(ctx); ok {
		if err := lockKeys(ctx, sqlTx, keys); err != nil {
			return err
		}
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = lockKeys(ctx, sqlTx, keys); err != nil {
		return err
	}
	if err = fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func lockKeys(ctx context.Context, sqlTx *sqlx.Tx, keys []string) error {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	for _, key := range slices.Compact(sorted) {
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
	}
	return nil
}
