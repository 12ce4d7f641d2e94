package models

import (
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
)

const maxNameLen = 256

// Member is a library patron or librarian.
//
// Invariants:
//   - Name and Email are non-empty; Email is unique case-insensitively
//   - Debt >= 0 and only grows through return fees
//   - PasswordHash is never serialized
type Member struct {
	ID           domain.MemberID `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Role         domain.Role     `json:"role" db:"role"`
	Debt         decimal.Decimal `json:"debt" db:"debt"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// NormalizeEmail trims and lowercases an email address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateProfile(name, email string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	}
	if len(name) > maxNameLen {
		return dErrors.New(dErrors.CodeInvariantViolation, "name is too long")
	}
	if email == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return dErrors.New(dErrors.CodeInvariantViolation, "email is not a valid address")
	}
	return nil
}

// NewMember builds a member with zero debt. passwordHash must already be hashed.
func NewMember(id domain.MemberID, name, email, passwordHash string, role domain.Role, now time.Time) (*Member, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if err := validateProfile(name, email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role must be librarian or member")
	}
	return &Member{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Debt:         decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CanUpdateProfile checks a profile edit.
func (m *Member) CanUpdateProfile(name, email string) error {
	return validateProfile(strings.TrimSpace(name), NormalizeEmail(email))
}

// ApplyProfileUpdate replaces name and email. Role and debt are untouched.
func (m *Member) ApplyProfileUpdate(name, email string, now time.Time) {
	m.Name = strings.TrimSpace(name)
	m.Email = NormalizeEmail(email)
	m.UpdatedAt = now
}

// CanAccrueDebt checks a debt delta.
func CanAccrueDebt(delta decimal.Decimal) error {
	if delta.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "debt can only increase")
	}
	return nil
}

func (m *Member) IsLibrarian() bool {
	return m.Role == domain.RoleLibrarian
}

func (m *Member) Clone() *Member {
	c := *m
	return &c
}
