package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"circulation/internal/access"
	"circulation/internal/members/models"
	"circulation/internal/members/service"
	"circulation/pkg/domain"
	"circulation/pkg/platform/httputil"
	"circulation/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks circulation/internal/members/handler Service

// Service defines the member directory operations the handler exposes.
type Service interface {
	CreateMember(ctx context.Context, req service.CreateMemberRequest) (*models.Member, error)
	GetMember(ctx context.Context, id domain.MemberID) (*models.Member, error)
	ListMembers(ctx context.Context) ([]*models.Member, error)
	UpdateMember(ctx context.Context, id domain.MemberID, name, email string) (*models.Member, error)
	RemoveMember(ctx context.Context, id domain.MemberID) error
}

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

// Register mounts member endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.With(h.guard.RequireOperation(access.OpCreateMember)).Post("/members", h.HandleCreate)
	r.With(h.guard.RequireOperation(access.OpListMembers)).Get("/members", h.HandleList)
	r.With(h.guard.RequireOperation(access.OpGetMember)).Get("/members/{id}", h.HandleGet)
	r.With(h.guard.RequireOperation(access.OpUpdateMember)).Put("/members/{id}", h.HandleUpdate)
	r.With(h.guard.RequireOperation(access.OpRemoveMember)).Delete("/members/{id}", h.HandleRemove)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateMemberRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	m, err := h.service.CreateMember(ctx, service.CreateMemberRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.fail(ctx, w, "create member failed", err)
		return
	}
	h.logger.InfoContext(ctx, "member created",
		"request_id", requestcontext.RequestID(ctx),
		"member_id", m.ID.String(),
		"role", string(m.Role),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromMember(m))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := h.service.ListMembers(ctx)
	if err != nil {
		h.fail(ctx, w, "list members failed", err)
		return
	}
	resp := MemberListResponse{Members: make([]MemberResponse, 0, len(all))}
	for _, m := range all {
		resp.Members = append(resp.Members, FromMember(m))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	m, err := h.service.GetMember(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get member failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMember(m))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateMemberRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	m, err := h.service.UpdateMember(ctx, id, req.Name, req.Email)
	if err != nil {
		h.fail(ctx, w, "update member failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMember(m))
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseMemberID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveMember(ctx, id); err != nil {
		h.fail(ctx, w, "remove member failed", err)
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
