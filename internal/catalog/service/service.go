// Package service implements the catalog: adding, correcting and removing
// books, and the stock movements the circulation engine requests.
package service

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"circulation/internal/access"
	"circulation/internal/catalog/models"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	audit "circulation/pkg/platform/audit"
	"circulation/pkg/platform/sentinel"
	"circulation/pkg/platform/tx"
	"circulation/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, book *models.Book) error
	FindByID(ctx context.Context, id domain.BookID) (*models.Book, error)
	Update(ctx context.Context, book *models.Book) error
	Delete(ctx context.Context, id domain.BookID) error
	DecrementStock(ctx context.Context, id domain.BookID) (*models.Book, error)
	IncrementStock(ctx context.Context, id domain.BookID) (*models.Book, error)
	ListAll(ctx context.Context) ([]*models.Book, error)
	FindByIDs(ctx context.Context, ids []domain.BookID) (map[domain.BookID]*models.Book, error)
}

// LoanChecker reports open loans so a book on loan cannot be removed.
type LoanChecker interface {
	HasOpenLoansForBook(ctx context.Context, bookID domain.BookID) (bool, error)
}

type Guard interface {
	Require(ctx context.Context, op access.Operation) (access.Principal, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the catalog. It is the only writer of book stock.
type Service struct {
	books          Store
	loans          LoanChecker
	guard          Guard
	tx             tx.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

// WithTxRunner sets the transactional boundary. It must be the runner shared
// with the circulation engine.
func WithTxRunner(runner tx.Runner) Option {
	return func(s *Service) {
		s.tx = runner
	}
}

func New(books Store, loans LoanChecker, guard Guard, opts ...Option) *Service {
	s := &Service{books: books, loans: loans, guard: guard}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = tx.NewSharded()
	}
	return s
}

// AddBook adds a title to the catalog.
func (s *Service) AddBook(ctx context.Context, fields models.BookFields) (*models.Book, error) {
	principal, err := s.guard.Require(ctx, access.OpAddBook)
	if err != nil {
		return nil, err
	}

	book, err := models.NewBook(domain.NewBookID(), fields, requestcontext.Now(ctx))
	if err != nil {
		return nil, translateInvariant(err)
	}
	if err := s.books.Create(ctx, book); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add book")
	}

	s.emitAudit(ctx, principal, audit.EventBookAdded, book.ID)
	return book, nil
}

// GetBook returns one book. Members do not see books that are out of stock.
func (s *Service) GetBook(ctx context.Context, id domain.BookID) (*models.Book, error) {
	principal, err := s.guard.Require(ctx, access.OpGetBook)
	if err != nil {
		return nil, err
	}
	book, err := s.books.FindByID(ctx, id)
	if err != nil {
		return nil, wrapBookErr(err, "failed to load book")
	}
	if !book.IsAvailable() && !principal.Capabilities.SeesUnavailableBooks() {
		return nil, dErrors.New(dErrors.CodeNotFound, "book not found")
	}
	return book, nil
}

// GetBooks resolves several books at once, regardless of stock. Unknown ids
// are left out of the result.
func (s *Service) GetBooks(ctx context.Context, ids []domain.BookID) (map[domain.BookID]*models.Book, error) {
	principal, err := s.guard.Require(ctx, access.OpGetBook)
	if err != nil {
		return nil, err
	}
	if !principal.Capabilities.SeesUnavailableBooks() {
		return nil, dErrors.New(dErrors.CodeForbidden, "batch lookup is not available")
	}
	books, err := s.books.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load books")
	}
	return books, nil
}

// UpdateBook replaces the mutable fields of a book.
func (s *Service) UpdateBook(ctx context.Context, id domain.BookID, fields models.BookFields) (*models.Book, error) {
	principal, err := s.guard.Require(ctx, access.OpUpdateBook)
	if err != nil {
		return nil, err
	}

	var updated *models.Book
	err = s.tx.RunInTx(ctx, []string{tx.BookKey(id.String())}, func(ctx context.Context) error {
		book, err := s.books.FindByID(ctx, id)
		if err != nil {
			return wrapBookErr(err, "failed to load book")
		}
		if err := book.CanUpdate(fields); err != nil {
			return translateInvariant(err)
		}
		book.ApplyUpdate(fields, requestcontext.Now(ctx))
		if err := s.books.Update(ctx, book); err != nil {
			return wrapBookErr(err, "failed to update book")
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, principal, audit.EventBookUpdated, id)
	return updated, nil
}

// RemoveBook deletes a book that has no open loans.
func (s *Service) RemoveBook(ctx context.Context, id domain.BookID) error {
	principal, err := s.guard.Require(ctx, access.OpRemoveBook)
	if err != nil {
		return err
	}

	err = s.tx.RunInTx(ctx, []string{tx.BookKey(id.String())}, func(ctx context.Context) error {
		if _, err := s.books.FindByID(ctx, id); err != nil {
			return wrapBookErr(err, "failed to load book")
		}
		open, err := s.loans.HasOpenLoansForBook(ctx, id)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check open loans")
		}
		if open {
			return dErrors.New(dErrors.CodeConflict, "book has outstanding loans")
		}
		if err := s.books.Delete(ctx, id); err != nil {
			return wrapBookErr(err, "failed to remove book")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.emitAudit(ctx, principal, audit.EventBookRemoved, id)
	return nil
}

// DecrementStock takes one copy off the shelf for an issue.
func (s *Service) DecrementStock(ctx context.Context, id domain.BookID) (*models.Book, error) {
	if _, err := s.guard.Require(ctx, access.OpDecrementStock); err != nil {
		return nil, err
	}
	var book *models.Book
	err := s.tx.RunInTx(ctx, []string{tx.BookKey(id.String())}, func(ctx context.Context) error {
		b, err := s.books.DecrementStock(ctx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeOutOfStock, "no copies left")
			}
			return wrapBookErr(err, "failed to decrement stock")
		}
		book = b
		return nil
	})
	return book, err
}

// IncrementStock puts a returned copy back on the shelf.
func (s *Service) IncrementStock(ctx context.Context, id domain.BookID) (*models.Book, error) {
	if _, err := s.guard.Require(ctx, access.OpIncrementStock); err != nil {
		return nil, err
	}
	var book *models.Book
	err := s.tx.RunInTx(ctx, []string{tx.BookKey(id.String())}, func(ctx context.Context) error {
		b, err := s.books.IncrementStock(ctx, id)
		if err != nil {
			return wrapBookErr(err, "failed to increment stock")
		}
		book = b
		return nil
	})
	return book, err
}

// ListBooks returns an iterator over a snapshot of the catalog taken at call
// time. The iterator may be ranged over more than once. Members only see books
// with stock on the shelf.
func (s *Service) ListBooks(ctx context.Context) (iter.Seq[*models.Book], error) {
	principal, err := s.guard.Require(ctx, access.OpListBooks)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.books.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list books")
	}
	seeAll := principal.Capabilities.SeesUnavailableBooks()

	return func(yield func(*models.Book) bool) {
		for _, b := range snapshot {
			if !seeAll && !b.IsAvailable() {
				continue
			}
			if !yield(b.Clone()) {
				return
			}
		}
	}, nil
}

func (s *Service) emitAudit(ctx context.Context, principal access.Principal, action audit.AuditEvent, bookID domain.BookID) {
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		MemberID: principal.MemberID,
		Subject:  "book:" + bookID.String(),
		Action:   string(action),
		ActorID:  principal.MemberID.String(),
	})
	if err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", string(action),
			"error", err,
		)
	}
}

func wrapBookErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "book not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func translateInvariant(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		var de *dErrors.Error
		errors.As(err, &de)
		return dErrors.New(dErrors.CodeInvalidInput, de.Message)
	}
	return err
}
