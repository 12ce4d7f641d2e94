package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
)

const (
	DefaultStock = 1
	maxTitleLen  = 512
)

// DefaultPerDayFee applies when a book is added without a fee.
var DefaultPerDayFee = decimal.NewFromInt(10)

// Book is a catalog title and the number of copies on the shelf.
//
// Invariants:
//   - Title and Author are non-empty
//   - Stock >= 0; it moves by exactly one per issue and per return
//   - PerDayFee >= 0, in the smallest currency unit
//   - Pages, when set, is >= 0
type Book struct {
	ID        domain.BookID   `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Author    string          `json:"author" db:"author"`
	ISBN      string          `json:"isbn,omitempty" db:"isbn"`
	Publisher string          `json:"publisher,omitempty" db:"publisher"`
	Pages     *int            `json:"pages,omitempty" db:"pages"`
	Stock     int             `json:"stock" db:"stock"`
	PerDayFee decimal.Decimal `json:"per_day_fee" db:"per_day_fee"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// BookFields carries the caller-supplied attributes of a book. Nil pointers
// mean "not provided".
type BookFields struct {
	Title     string
	Author    string
	ISBN      string
	Publisher string
	Pages     *int
	Stock     *int
	PerDayFee *decimal.Decimal
}

// Normalize trims whitespace from text fields.
func (f *BookFields) Normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Author = strings.TrimSpace(f.Author)
	f.ISBN = strings.TrimSpace(f.ISBN)
	f.Publisher = strings.TrimSpace(f.Publisher)
}

func (f *BookFields) validateCommon() error {
	if f.Title == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	if len(f.Title) > maxTitleLen {
		return dErrors.New(dErrors.CodeInvariantViolation, "title is too long")
	}
	if f.Author == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "author is required")
	}
	if f.Pages != nil && *f.Pages < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "pages must not be negative")
	}
	if f.PerDayFee != nil && f.PerDayFee.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "per_day_fee must not be negative")
	}
	return nil
}

// NewBook builds a book for the catalog. Stock defaults to 1 and must be at
// least 1; the fee defaults to 10.
func NewBook(id domain.BookID, fields BookFields, now time.Time) (*Book, error) {
	fields.Normalize()
	if err := fields.validateCommon(); err != nil {
		return nil, err
	}
	stock := DefaultStock
	if fields.Stock != nil {
		stock = *fields.Stock
	}
	if stock < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "stock must be at least 1")
	}
	fee := DefaultPerDayFee
	if fields.PerDayFee != nil {
		fee = *fields.PerDayFee
	}
	return &Book{
		ID:        id,
		Title:     fields.Title,
		Author:    fields.Author,
		ISBN:      fields.ISBN,
		Publisher: fields.Publisher,
		Pages:     fields.Pages,
		Stock:     stock,
		PerDayFee: fee,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanUpdate checks fields against the update rules. Stock may be corrected to
// any value >= 0.
func (b *Book) CanUpdate(fields BookFields) error {
	fields.Normalize()
	if err := fields.validateCommon(); err != nil {
		return err
	}
	if fields.Stock != nil && *fields.Stock < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "stock must not be negative")
	}
	return nil
}

// ApplyUpdate replaces the mutable fields. Omitted stock and fee keep their
// current values. Call CanUpdate first.
func (b *Book) ApplyUpdate(fields BookFields, now time.Time) {
	fields.Normalize()
	b.Title = fields.Title
	b.Author = fields.Author
	b.ISBN = fields.ISBN
	b.Publisher = fields.Publisher
	b.Pages = fields.Pages
	if fields.Stock != nil {
		b.Stock = *fields.Stock
	}
	if fields.PerDayFee != nil {
		b.PerDayFee = *fields.PerDayFee
	}
	b.UpdatedAt = now
}

// IsAvailable reports whether a copy is on the shelf.
func (b *Book) IsAvailable() bool {
	return b.Stock > 0
}

// Clone returns a deep copy so callers cannot alias store state.
func (b *Book) Clone() *Book {
	c := *b
	if b.Pages != nil {
		p := *b.Pages
		c.Pages = &p
	}
	return &c
}
