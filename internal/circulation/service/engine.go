// Package service implements the circulation engine: issuing books to
// members, taking them back, charging the rental fee and listing loans.
//
// The engine owns loan transactions. Book stock and member debt belong to the
// catalog and member services; the engine changes them only through those
// services and only inside one RunInTx call that holds both the book and the
// member key. The runner must be the same instance the catalog and member
// services were built with.
package service

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"circulation/internal/access"
	catalogmodels "circulation/internal/catalog/models"
	"circulation/internal/circulation/metrics"
	"circulation/internal/circulation/models"
	membermodels "circulation/internal/members/models"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	audit "circulation/pkg/platform/audit"
	"circulation/pkg/platform/sentinel"
	"circulation/pkg/platform/tx"
	"circulation/pkg/requestcontext"
)

// DefaultDebtLimit is the debt above which a member may not borrow.
var DefaultDebtLimit = decimal.NewFromInt(500)

type Store interface {
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id domain.TransactionID) (*models.Transaction, error)
	FindOpenByPair(ctx context.Context, memberID domain.MemberID, bookID domain.BookID) (*models.Transaction, error)
	Close(ctx context.Context, id domain.TransactionID, returnedAt time.Time, fee decimal.Decimal) (*models.Transaction, error)
	ListOpen(ctx context.Context, memberID *domain.MemberID) ([]*models.Transaction, error)
	ListAll(ctx context.Context) ([]*models.Transaction, error)
}

// Catalog is the part of the catalog service the engine drives.
type Catalog interface {
	GetBook(ctx context.Context, id domain.BookID) (*catalogmodels.Book, error)
	GetBooks(ctx context.Context, ids []domain.BookID) (map[domain.BookID]*catalogmodels.Book, error)
	DecrementStock(ctx context.Context, id domain.BookID) (*catalogmodels.Book, error)
	IncrementStock(ctx context.Context, id domain.BookID) (*catalogmodels.Book, error)
}

// Directory is the part of the member service the engine drives.
type Directory interface {
	GetMember(ctx context.Context, id domain.MemberID) (*membermodels.Member, error)
	GetMembers(ctx context.Context, ids []domain.MemberID) (map[domain.MemberID]*membermodels.Member, error)
	AdjustDebt(ctx context.Context, id domain.MemberID, delta decimal.Decimal) (*membermodels.Member, error)
}

type Guard interface {
	Require(ctx context.Context, op access.Operation) (access.Principal, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ReturnResult describes a completed return.
type ReturnResult struct {
	Transaction *models.Transaction
	DaysHeld    int64
	Fee         decimal.Decimal
}

// TransactionView is a transaction with the display names of the book and
// member it references. Names are empty when the record no longer exists.
type TransactionView struct {
	*models.Transaction
	BookTitle  string
	MemberName string
}

type Engine struct {
	txns           Store
	catalog        Catalog
	directory      Directory
	guard          Guard
	tx             tx.Runner
	debtLimit      *decimal.Decimal
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) {
		e.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTxRunner must receive the runner shared with the catalog and member
// services.
func WithTxRunner(runner tx.Runner) Option {
	return func(e *Engine) {
		e.tx = runner
	}
}

// WithDebtLimit sets the debt above which issue is refused. nil disables the
// check.
func WithDebtLimit(limit *decimal.Decimal) Option {
	return func(e *Engine) {
		e.debtLimit = limit
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func New(txns Store, catalog Catalog, directory Directory, guard Guard, opts ...Option) *Engine {
	limit := DefaultDebtLimit
	e := &Engine{
		txns:      txns,
		catalog:   catalog,
		directory: directory,
		guard:     guard,
		debtLimit: &limit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tx == nil {
		e.tx = tx.NewSharded()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("circulation/engine")
	}
	return e
}

// Issue lends one copy of a book to a member. Checks run in a fixed order:
// member exists, book exists, debt limit, stock, duplicate loan.
func (e *Engine) Issue(ctx context.Context, memberID domain.MemberID, bookID domain.BookID) (txn *models.Transaction, err error) {
	principal, err := e.guard.Require(ctx, access.OpIssue)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "circulation.issue", trace.WithAttributes(
		attribute.String("member_id", memberID.String()),
		attribute.String("book_id", bookID.String()),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "issue", start, err) }()

	err = e.tx.RunInTx(ctx, keysFor(bookID, memberID), func(ctx context.Context) error {
		member, err := e.directory.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		book, err := e.catalog.GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if e.debtLimit != nil && member.Debt.GreaterThan(*e.debtLimit) {
			return dErrors.Newf(dErrors.CodeDebtLimitExceeded,
				"member debt %s exceeds the limit of %s", member.Debt.StringFixed(2), e.debtLimit.StringFixed(2))
		}
		if !book.IsAvailable() {
			return dErrors.New(dErrors.CodeOutOfStock, "no copies left")
		}
		if _, err := e.txns.FindOpenByPair(ctx, memberID, bookID); err == nil {
			return dErrors.New(dErrors.CodeDuplicateLoan, "member already holds this book")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check open loans")
		}

		if _, err := e.catalog.DecrementStock(ctx, bookID); err != nil {
			return err
		}
		created := models.NewTransaction(domain.NewTransactionID(), memberID, bookID, requestcontext.Now(ctx))
		if err := e.txns.Create(ctx, created); err != nil {
			e.restoreStock(ctx, bookID)
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeDuplicateLoan, "member already holds this book")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transaction")
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.IncrementIssued()
	}
	e.emitAudit(ctx, principal, audit.EventBookIssued, txn, "")
	return txn, nil
}

// Return closes an open transaction, puts the copy back on the shelf and adds
// the fee to the member's debt. The fee uses the book's per-day fee at the
// time of return.
func (e *Engine) Return(ctx context.Context, id domain.TransactionID) (result *ReturnResult, err error) {
	principal, err := e.guard.Require(ctx, access.OpReturn)
	if err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "circulation.return", trace.WithAttributes(
		attribute.String("transaction_id", id.String()),
	))
	start := time.Now()
	defer func() { e.finish(ctx, span, "return", start, err) }()

	// The first read only discovers which keys to lock.
	probe, err := e.txns.FindByID(ctx, id)
	if err != nil {
		return nil, wrapTxnErr(err, "failed to load transaction")
	}

	err = e.tx.RunInTx(ctx, keysFor(probe.BookID, probe.MemberID), func(ctx context.Context) error {
		txn, err := e.txns.FindByID(ctx, id)
		if err != nil {
			return wrapTxnErr(err, "failed to load transaction")
		}
		if err := txn.CanReturn(); err != nil {
			return dErrors.New(dErrors.CodeAlreadyReturned, "transaction is already returned")
		}
		book, err := e.catalog.GetBook(ctx, txn.BookID)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		days := models.DaysHeld(txn.IssueDate, now)
		fee := models.ComputeFee(txn.IssueDate, now, book.PerDayFee)

		closed, err := e.txns.Close(ctx, txn.ID, now, fee)
		if err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeAlreadyReturned, "transaction is already returned")
			}
			return wrapTxnErr(err, "failed to close transaction")
		}
		if _, err := e.catalog.IncrementStock(ctx, txn.BookID); err != nil {
			return err
		}
		if _, err := e.directory.AdjustDebt(ctx, txn.MemberID, fee); err != nil {
			return err
		}
		result = &ReturnResult{Transaction: closed, DaysHeld: days, Fee: fee}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("days_held", result.DaysHeld),
		attribute.String("fee", result.Fee.String()),
	)
	if e.metrics != nil {
		e.metrics.ObserveReturn(result.Fee)
	}
	e.emitAudit(ctx, principal, audit.EventBookReturned, result.Transaction, "")
	if result.Fee.IsPositive() {
		e.emitAudit(ctx, principal, audit.EventDebtAccrued, result.Transaction, result.Fee.StringFixed(2))
	}
	return result, nil
}

// ListOutstanding returns an iterator over the open loans at call time,
// optionally narrowed to one member. Callers who may not read other members'
// loans see only their own; naming another member is Forbidden.
func (e *Engine) ListOutstanding(ctx context.Context, memberID *domain.MemberID) (iter.Seq[*models.Transaction], error) {
	principal, err := e.guard.Require(ctx, access.OpListOutstanding)
	if err != nil {
		return nil, err
	}
	if !principal.Capabilities.ReadsAllLoans() {
		if memberID != nil && *memberID != principal.MemberID {
			return nil, dErrors.New(dErrors.CodeForbidden, "cannot read another member's loans")
		}
		own := principal.MemberID
		memberID = &own
	}

	snapshot, err := e.txns.ListOpen(ctx, memberID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list outstanding loans")
	}
	return func(yield func(*models.Transaction) bool) {
		for _, t := range snapshot {
			if !yield(t.Clone()) {
				return
			}
		}
	}, nil
}

// ListTransactions returns every transaction, newest first, with book titles
// and member names resolved.
func (e *Engine) ListTransactions(ctx context.Context) ([]TransactionView, error) {
	if _, err := e.guard.Require(ctx, access.OpListTransactions); err != nil {
		return nil, err
	}
	all, err := e.txns.ListAll(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list transactions")
	}

	bookSet := make(map[domain.BookID]struct{})
	memberSet := make(map[domain.MemberID]struct{})
	for _, t := range all {
		bookSet[t.BookID] = struct{}{}
		memberSet[t.MemberID] = struct{}{}
	}

	var (
		books   map[domain.BookID]*catalogmodels.Book
		members map[domain.MemberID]*membermodels.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = e.catalog.GetBooks(gctx, slices.Collect(maps.Keys(bookSet)))
		return err
	})
	g.Go(func() error {
		var err error
		members, err = e.directory.GetMembers(gctx, slices.Collect(maps.Keys(memberSet)))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	views := make([]TransactionView, 0, len(all))
	for _, t := range all {
		view := TransactionView{Transaction: t}
		if b, ok := books[t.BookID]; ok {
			view.BookTitle = b.Title
		}
		if m, ok := members[t.MemberID]; ok {
			view.MemberName = m.Name
		}
		views = append(views, view)
	}
	return views, nil
}

func (e *Engine) GetTransaction(ctx context.Context, id domain.TransactionID) (*models.Transaction, error) {
	if _, err := e.guard.Require(ctx, access.OpGetTransaction); err != nil {
		return nil, err
	}
	txn, err := e.txns.FindByID(ctx, id)
	if err != nil {
		return nil, wrapTxnErr(err, "failed to load transaction")
	}
	return txn, nil
}

// restoreStock undoes a decrement when the transaction record could not be
// written. A SQL transaction in ctx is rolled back instead, so nothing is
// done there.
func (e *Engine) restoreStock(ctx context.Context, bookID domain.BookID) {
	if _, inSQL := tx.From(ctx); inSQL {
		return
	}
	if _, err := e.catalog.IncrementStock(ctx, bookID); err != nil && e.logger != nil {
		e.logger.ErrorContext(ctx, "failed to restore stock after issue failure",
			"request_id", requestcontext.RequestID(ctx),
			"book_id", bookID.String(),
			"error", err,
		)
	}
}

func (e *Engine) finish(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	defer span.End()
	if e.metrics != nil {
		e.metrics.ObserveDuration(operation, start)
	}
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	code := dErrors.CodeOf(err)
	span.SetAttributes(attribute.String("error.code", string(code)))
	if code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		if e.logger != nil {
			e.logger.ErrorContext(ctx, operation+" failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
	if e.metrics != nil {
		e.metrics.IncrementRejection(operation, string(code))
	}
}

func (e *Engine) emitAudit(ctx context.Context, principal access.Principal, action audit.AuditEvent, txn *models.Transaction, reason string) {
	if e.auditPublisher == nil {
		return
	}
	err := e.auditPublisher.Emit(ctx, audit.Event{
		MemberID: txn.MemberID,
		Subject:  "transaction:" + txn.ID.String(),
		Action:   string(action),
		Reason:   reason,
		ActorID:  principal.MemberID.String(),
	})
	if err != nil && e.logger != nil {
		e.logger.ErrorContext(ctx, "failed to emit audit event",
			"request_id", requestcontext.RequestID(ctx),
			"action", string(action),
			"error", err,
		)
	}
}

func keysFor(bookID domain.BookID, memberID domain.MemberID) []string {
	return []string{tx.BookKey(bookID.String()), tx.MemberKey(memberID.String())}
}

func wrapTxnErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "transaction not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
