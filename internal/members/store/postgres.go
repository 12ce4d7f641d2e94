package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"circulation/internal/members/models"
	"circulation/internal/platform/postgres"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
	"circulation/pkg/platform/tx"
)

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const memberColumns = `id, name, email, password_hash, role, debt, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, m *models.Member) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO members (id, name, email, password_hash, role, debt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Name, m.Email, m.PasswordHash, m.Role, m.Debt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.MemberID) (*models.Member, error) {
	return s.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Member, error) {
	return s.findOne(ctx, `SELECT `+memberColumns+` FROM members WHERE LOWER(email) = LOWER($1)`, email)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Member, error) {
	var m models.Member
	if err := tx.Exec(ctx, s.db).GetContext(ctx, &m, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find member: %w", err)
	}
	return &m, nil
}

// Update writes name and email only.
func (s *PostgresStore) Update(ctx context.Context, m *models.Member) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE members SET name = $2, email = $3, updated_at = $4 WHERE id = $1`,
		m.ID, m.Name, m.Email, m.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update member: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.MemberID) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) AddDebt(ctx context.Context, id domain.MemberID, delta decimal.Decimal) (*models.Member, error) {
	var m models.Member
	err := tx.Exec(ctx, s.db).GetContext(ctx, &m, `
		UPDATE members SET debt = debt + $2 WHERE id = $1
		RETURNING `+memberColumns, id, delta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("add debt: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Member, error) {
	var out []*models.Member
	if err := tx.Exec(ctx, s.db).SelectContext(ctx, &out, `SELECT `+memberColumns+` FROM members ORDER BY created_at, email`); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}

// FindByIDs loads several members in one query. Missing ids are absent from
// the result.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []domain.MemberID) (map[domain.MemberID]*models.Member, error) {
	out := make(map[domain.MemberID]*models.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	var members []*models.Member
	if err := tx.Exec(ctx, s.db).SelectContext(ctx, &members,
		`SELECT `+memberColumns+` FROM members WHERE id = ANY($1::uuid[])`, pq.Array(raw)); err != nil {
		return nil, fmt.Errorf("find members: %w", err)
	}
	for _, m := range members {
		out[m.ID] = m
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
