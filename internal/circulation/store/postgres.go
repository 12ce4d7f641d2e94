package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"circulation/internal/circulation/models"
	"circulation/internal/platform/postgres"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
	"circulation/pkg/platform/tx"
)

// PostgresStore persists loan transactions. The open-pair rule is backed by
// a partial unique index so it holds even for writers outside this process.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txnColumns = `id, member_id, book_id, issue_date, return_date, fee`

func (s *PostgresStore) Create(ctx context.Context, txn *models.Transaction) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO loan_transactions (id, member_id, book_id, issue_date, return_date, fee)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		txn.ID, txn.MemberID, txn.BookID, txn.IssueDate, txn.ReturnDate, txn.Fee,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.TransactionID) (*models.Transaction, error) {
	var txn models.Transaction
	err := tx.Exec(ctx, s.db).GetContext(ctx, &txn, `SELECT `+txnColumns+` FROM loan_transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &txn, nil
}

func (s *PostgresStore) FindOpenByPair(ctx context.Context, memberID domain.MemberID, bookID domain.BookID) (*models.Transaction, error) {
	var txn models.Transaction
	err := tx.Exec(ctx, s.db).GetContext(ctx, &txn, `
		SELECT `+txnColumns+` FROM loan_transactions
		WHERE member_id = $1 AND book_id = $2 AND return_date IS NULL`, memberID, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find open transaction: %w", err)
	}
	return &txn, nil
}

// Close is guarded by return_date IS NULL; of two racing returns only one
// updates the row.
func (s *PostgresStore) Close(ctx context.Context, id domain.TransactionID, returnedAt time.Time, fee decimal.Decimal) (*models.Transaction, error) {
	var txn models.Transaction
	err := tx.Exec(ctx, s.db).GetContext(ctx, &txn, `
		UPDATE loan_transactions SET return_date = $2, fee = $3
		WHERE id = $1 AND return_date IS NULL
		RETURNING `+txnColumns, id, returnedAt, fee)
	if err == nil {
		return &txn, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("close transaction: %w", err)
	}
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) ListOpen(ctx context.Context, memberID *domain.MemberID) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	query := `SELECT ` + txnColumns + ` FROM loan_transactions WHERE return_date IS NULL`
	args := []any{}
	if memberID != nil {
		query += ` AND member_id = $1`
		args = append(args, *memberID)
	}
	query += ` ORDER BY issue_date, id`
	if err := tx.Exec(ctx, s.db).SelectContext(ctx, &txns, query, args...); err != nil {
		return nil, fmt.Errorf("list open transactions: %w", err)
	}
	return txns, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	if err := tx.Exec(ctx, s.db).SelectContext(ctx, &txns,
		`SELECT `+txnColumns+` FROM loan_transactions ORDER BY issue_date DESC, id`); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}

func (s *PostgresStore) HasOpenLoansForBook(ctx context.Context, bookID domain.BookID) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM loan_transactions WHERE book_id = $1 AND return_date IS NULL)`, bookID)
}

func (s *PostgresStore) HasOpenLoansForMember(ctx context.Context, memberID domain.MemberID) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM loan_transactions WHERE member_id = $1 AND return_date IS NULL)`, memberID)
}

func (s *PostgresStore) exists(ctx context.Context, query string, arg any) (bool, error) {
	var found bool
	if err := tx.Exec(ctx, s.db).GetContext(ctx, &found, query, arg); err != nil {
		return false, fmt.Errorf("check open loans: %w", err)
	}
	return found, nil
}
