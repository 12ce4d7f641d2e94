// Package tx defines the transactional boundary shared by the catalog, member
// and circulation services.
//
// A Runner executes fn while holding exclusive access to every key in keys.
// Keys name the aggregates touched by the operation ("book:<id>",
// "member:<id>"), so operations on the same book serialize while operations on
// different books proceed in parallel. SQL-backed runners additionally carry a
// database transaction in the context; stores pick it up with From.
package tx

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Runner is the transactional boundary.
type Runner interface {
	RunInTx(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sqlx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sqlx.Tx)
	return tx, ok
}

// Executor is what stores need to run queries, satisfied by *sqlx.DB and *sqlx.Tx.
type Executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Exec returns the transaction in ctx, or db when there is none.
func Exec(ctx context.Context, db *sqlx.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// BookKey and MemberKey build lock keys for the two shared aggregates.
func BookKey(id string) string   { return "book:" + id }
func MemberKey(id string) string { return "member:" + id }
