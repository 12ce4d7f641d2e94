package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"circulation/internal/catalog/models"
	"circulation/internal/platform/postgres"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
	"circulation/pkg/platform/tx"
)

// PostgresStore persists books in Postgres. Calls join the transaction
// carried in ctx when there is one.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const bookColumns = `id, title, author, COALESCE(isbn, '') AS isbn, COALESCE(publisher, '') AS publisher,
	pages, stock, per_day_fee, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, book *models.Book) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO books (id, title, author, isbn, publisher, pages, stock, per_day_fee, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)`,
		book.ID, book.Title, book.Author, book.ISBN, book.Publisher, book.Pages,
		book.Stock, book.PerDayFee, book.CreatedAt, book.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.BookID) (*models.Book, error) {
	var book models.Book
	err := tx.Exec(ctx, s.db).GetContext(ctx, &book, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find book: %w", err)
	}
	return &book, nil
}

func (s *PostgresStore) Update(ctx context.Context, book *models.Book) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE books
		SET title = $2, author = $3, isbn = NULLIF($4, ''), publisher = NULLIF($5, ''),
		    pages = $6, stock = $7, per_day_fee = $8, updated_at = $9
		WHERE id = $1`,
		book.ID, book.Title, book.Author, book.ISBN, book.Publisher, book.Pages,
		book.Stock, book.PerDayFee, book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.BookID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return requireRow(res)
}

// DecrementStock is guarded by stock > 0 so a concurrent issue cannot drive
// stock negative even outside the advisory lock.
func (s *PostgresStore) DecrementStock(ctx context.Context, id domain.BookID) (*models.Book, error) {
	var book models.Book
	err := tx.Exec(ctx, s.db).GetContext(ctx, &book, `
		UPDATE books SET stock = stock - 1
		WHERE id = $1 AND stock > 0
		RETURNING `+bookColumns, id)
	if err == nil {
		return &book, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) IncrementStock(ctx context.Context, id domain.BookID) (*models.Book, error) {
	var book models.Book
	err := tx.Exec(ctx, s.db).GetContext(ctx, &book, `
		UPDATE books SET stock = stock + 1
		WHERE id = $1
		RETURNING `+bookColumns, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("increment stock: %w", err)
	}
	return &book, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Book, error) {
	var books []*models.Book
	if err := tx.Exec(ctx, s.db).SelectContext(ctx, &books, `SELECT `+bookColumns+` FROM books ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// FindByIDs loads several books in one query. Missing ids are absent from
// the result.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []domain.BookID) (map[domain.BookID]*models.Book, error) {
	out := make(map[domain.BookID]*models.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	var books []*models.Book
	if err := tx.Exec(ctx, s.db).SelectContext(ctx, &books,
		`SELECT `+bookColumns+` FROM books WHERE id = ANY($1::uuid[])`, pq.Array(raw)); err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
