package models

import (
	"time"

	"github.com/shopspring/decimal"

	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
)

// Status is derived from ReturnDate; it is never stored.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

const day = 24 * time.Hour

// Transaction is one loan of one copy of a book to a member.
//
// Invariants:
//   - IssueDate never changes after creation
//   - ReturnDate and Fee are set together, exactly once (OPEN -> CLOSED)
//   - at most one OPEN transaction exists per (member, book) pair
type Transaction struct {
	ID         domain.TransactionID `json:"id" db:"id"`
	MemberID   domain.MemberID      `json:"member_id" db:"member_id"`
	BookID     domain.BookID        `json:"book_id" db:"book_id"`
	IssueDate  time.Time            `json:"issue_date" db:"issue_date"`
	ReturnDate *time.Time           `json:"return_date,omitempty" db:"return_date"`
	Fee        decimal.NullDecimal  `json:"fee" db:"fee"`
}

func NewTransaction(id domain.TransactionID, memberID domain.MemberID, bookID domain.BookID, issuedAt time.Time) *Transaction {
	return &Transaction{
		ID:        id,
		MemberID:  memberID,
		BookID:    bookID,
		IssueDate: issuedAt,
	}
}

func (t *Transaction) Status() Status {
	if t.ReturnDate != nil {
		return StatusClosed
	}
	return StatusOpen
}

func (t *Transaction) IsReturned() bool {
	return t.ReturnDate != nil
}

// CanReturn fails for a transaction that is already closed.
func (t *Transaction) CanReturn() error {
	if t.IsReturned() {
		return dErrors.New(dErrors.CodeInvariantViolation, "transaction is already returned")
	}
	return nil
}

// ApplyReturn closes the transaction. Call CanReturn first.
func (t *Transaction) ApplyReturn(returnedAt time.Time, fee decimal.Decimal) {
	rd := returnedAt
	t.ReturnDate = &rd
	t.Fee = decimal.NewNullDecimal(fee)
}

// DaysHeld is the number of whole days between issue and returnedAt, with a
// minimum of one. Clock skew that puts returnedAt before issue counts as one day.
func DaysHeld(issuedAt, returnedAt time.Time) int64 {
	days := int64(returnedAt.Sub(issuedAt) / day)
	if days < 1 {
		return 1
	}
	return days
}

// ComputeFee charges perDayFee for every day held, rounded half away from zero
// to cents. The rate is the one in force at return time and applies to the
// whole loan.
func ComputeFee(issuedAt, returnedAt time.Time, perDayFee decimal.Decimal) decimal.Decimal {
	return perDayFee.Mul(decimal.NewFromInt(DaysHeld(issuedAt, returnedAt))).Round(2)
}

func (t *Transaction) Clone() *Transaction {
	c := *t
	if t.ReturnDate != nil {
		rd := *t.ReturnDate
		c.ReturnDate = &rd
	}
	return &c
}
