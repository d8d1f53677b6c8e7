package periodlock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type lockService interface {
	Get(ctx context.Context, companyID int64, period string) (Lock, error)
	Lock(ctx context.Context, in ChangeInput) (Lock, error)
	Unlock(ctx context.Context, in ChangeInput) (Lock, error)
}

// Handler exposes period lock endpoints.
type Handler struct {
	logger  *slog.Logger
	service lockService
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service lockService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/companies/{companyID}/periods/{period}/lock", h.get)
	r.Put("/companies/{companyID}/periods/{period}/lock", h.lock)
	r.Delete("/companies/{companyID}/periods/{period}/lock", h.unlock)
}

type lockRequest struct {
	LockedBy string `json:"locked_by"`
	Reason   string `json:"reason"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, period, err := scope(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	lock, err := h.service.Get(r.Context(), companyID, period)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lock)
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	in, err := h.changeInput(w, r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	lock, err := h.service.Lock(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lock)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	in, err := h.changeInput(w, r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	lock, err := h.service.Unlock(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lock)
}

func (h *Handler) changeInput(w http.ResponseWriter, r *http.Request) (ChangeInput, error) {
	companyID, period, err := scope(r)
	if err != nil {
		return ChangeInput{}, err
	}
	var req lockRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		return ChangeInput{}, err
	}
	actor := req.LockedBy
	if actor == "" {
		actor = shared.ActorFromContext(r.Context())
	}
	return ChangeInput{CompanyID: companyID, Period: period, Actor: actor, Reason: req.Reason}, nil
}

func scope(r *http.Request) (int64, string, error) {
	companyID, err := httpx.PathInt64(r, "companyID")
	if err != nil {
		return 0, "", err
	}
	period, err := httpx.PathPeriod(r)
	if err != nil {
		return 0, "", err
	}
	return companyID, period, nil
}
