// Package postgres opens the shared database handle and owns the schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
)

const uniqueViolation = "23505"

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Transactions deliberately carry no foreign keys to books or members: closed
// loans are history and outlive the records they reference. Open-loan checks
// happen in the services under the book/member lock.
const schema = `
CREATE TABLE IF NOT EXISTS books (
	id          UUID PRIMARY KEY,
	title       TEXT NOT NULL,
	author      TEXT NOT NULL,
	isbn        TEXT,
	publisher   TEXT,
	pages       INTEGER CHECK (pages >= 0),
	stock       INTEGER NOT NULL CHECK (stock >= 0),
	per_day_fee NUMERIC(12, 2) NOT NULL CHECK (per_day_fee >= 0),
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS members (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL CHECK (role IN ('librarian', 'member')),
	debt          NUMERIC(12, 2) NOT NULL DEFAULT 0 CHECK (debt >= 0),
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS members_email_lower_idx ON members (LOWER(email));

CREATE TABLE IF NOT EXISTS loan_transactions (
	id          UUID PRIMARY KEY,
	member_id   UUID NOT NULL,
	book_id     UUID NOT NULL,
	issue_date  TIMESTAMPTZ NOT NULL,
	return_date TIMESTAMPTZ,
	fee         NUMERIC(12, 2)
);

CREATE UNIQUE INDEX IF NOT EXISTS loan_transactions_open_pair_idx
	ON loan_transactions (member_id, book_id) WHERE return_date IS NULL;
CREATE INDEX IF NOT EXISTS loan_transactions_member_idx ON loan_transactions (member_id);
CREATE INDEX IF NOT EXISTS loan_transactions_book_idx ON loan_transactions (book_id);

CREATE TABLE IF NOT EXISTS token_revocations (
	jti        TEXT PRIMARY KEY,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// Migrate applies the schema. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
