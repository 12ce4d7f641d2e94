package handler

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"circulation/internal/access"
	"circulation/internal/catalog/models"
	"circulation/pkg/domain"
	"circulation/pkg/platform/httputil"
	"circulation/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks circulation/internal/catalog/handler Service

// Service defines the catalog operations the handler exposes.
type Service interface {
	AddBook(ctx context.Context, fields models.BookFields) (*models.Book, error)
	GetBook(ctx context.Context, id domain.BookID) (*models.Book, error)
	UpdateBook(ctx context.Context, id domain.BookID, fields models.BookFields) (*models.Book, error)
	RemoveBook(ctx context.Context, id domain.BookID) error
	ListBooks(ctx context.Context) (iter.Seq[*models.Book], error)
}

// OperationGuard rejects callers before the body is read.
type OperationGuard interface {
	RequireOperation(op access.Operation) func(http.Handler) http.Handler
}

// Handler wires catalog endpoints to the catalog service.
type Handler struct {
	service Service
	guard   OperationGuard
	logger  *slog.Logger
}

func New(service Service, guard OperationGuard, logger *slog.Logger) *Handler {
	return &Handler{service: service, guard: guard, logger: logger}
}

// Register mounts catalog endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.With(h.guard.RequireOperation(access.OpListBooks)).Get("/books", h.HandleList)
	r.With(h.guard.RequireOperation(access.OpAddBook)).Post("/books", h.HandleAdd)
	r.With(h.guard.RequireOperation(access.OpGetBook)).Get("/books/{id}", h.HandleGet)
	r.With(h.guard.RequireOperation(access.OpUpdateBook)).Put("/books/{id}", h.HandleUpdate)
	r.With(h.guard.RequireOperation(access.OpRemoveBook)).Delete("/books/{id}", h.HandleRemove)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	seq, err := h.service.ListBooks(ctx)
	if err != nil {
		h.fail(ctx, w, "list books failed", err)
		return
	}
	resp := BookListResponse{Books: []BookResponse{}}
	for b := range seq {
		resp.Books = append(resp.Books, FromBook(b))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[BookRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	book, err := h.service.AddBook(ctx, req.Fields())
	if err != nil {
		h.fail(ctx, w, "add book failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromBook(book))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseBookID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	book, err := h.service.GetBook(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get book failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromBook(book))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseBookID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[BookRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	book, err := h.service.UpdateBook(ctx, id, req.Fields())
	if err != nil {
		h.fail(ctx, w, "update book failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromBook(book))
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseBookID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveBook(ctx, id); err != nil {
		h.fail(ctx, w, "remove book failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
