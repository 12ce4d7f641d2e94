package handler

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"circulation/internal/access"
	"circulation/internal/circulation/models"
	"circulation/internal/circulation/service"
	"circulation/pkg/domain"
	"circulation/pkg/platform/httputil"
	"circulation/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks circulation/internal/circulation/handler Service

// Service defines the circulation operations the handler exposes.
type Service interface {
	Issue(ctx context.Context, memberID domain.MemberID, bookID domain.BookID) (*models.Transaction, error)
	Return(ctx context.Context, id domain.TransactionID) (*service.ReturnResult, error)
	ListOutstanding(ctx context.Context, memberID *domain.MemberID) (iter.Seq[*models.Transaction], error)
	ListTransactions(ctx context.Context) ([]service.TransactionView, error)
	GetTransaction(ctx context.Context, id domain.TransactionID) (*models.Transaction, error)
}

// OperationGuard rejects callers before the body is read.
type OperationGuard interface {
	RequireOperation(op access.Operation) func(http.Handler) http.Handler
}

type Handler struct {
	service Service
	guard   OperationGuard
	logger  *slog.Logger
}

func New(service Service, guard OperationGuard, logger *slog.Logger) *Handler {
	return &Handler{service: service, guard: guard, logger: logger}
}

// Register mounts circulation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.With(h.guard.RequireOperation(access.OpIssue)).Post("/transactions/issue", h.HandleIssue)
	r.With(h.guard.RequireOperation(access.OpReturn)).Post("/transactions/return", h.HandleReturn)
	r.With(h.guard.RequireOperation(access.OpListOutstanding)).Get("/transactions/outstanding", h.HandleOutstanding)
	r.With(h.guard.RequireOperation(access.OpListTransactions)).Get("/transactions", h.HandleList)
	r.With(h.guard.RequireOperation(access.OpGetTransaction)).Get("/transactions/{id}", h.HandleGet)
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	txn, err := h.service.Issue(ctx, req.memberID, req.bookID)
	if err != nil {
		h.fail(ctx, w, "issue failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromTransaction(txn))
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ReturnRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.service.Return(ctx, req.transactionID)
	if err != nil {
		h.fail(ctx, w, "return failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromReturn(result))
}

func (h *Handler) HandleOutstanding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var filter *domain.MemberID
	if raw := r.URL.Query().Get("member_id"); raw != "" {
		id, err := domain.ParseMemberID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter = &id
	}
	seq, err := h.service.ListOutstanding(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list outstanding failed", err)
		return
	}
	resp := TransactionListResponse{Transactions: []TransactionResponse{}}
	for t := range seq {
		resp.Transactions = append(resp.Transactions, FromTransaction(t))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	views, err := h.service.ListTransactions(ctx)
	if err != nil {
		h.fail(ctx, w, "list transactions failed", err)
		return
	}
	resp := TransactionHistoryResponse{Transactions: make([]TransactionDetailResponse, 0, len(views))}
	for _, v := range views {
		resp.Transactions = append(resp.Transactions, FromView(v))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	txn, err := h.service.GetTransaction(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get transaction failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTransaction(txn))
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
