package costpool

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type poolService interface {
	CreateCostPool(ctx context.Context, in CreatePoolInput) (Pool, error)
	AllocateCostPool(ctx context.Context, poolID int64, actor string) ([]Allocation, error)
	GetPool(ctx context.Context, id int64) (Pool, error)
}

// Handler exposes cost pool endpoints.
type Handler struct {
	logger   *slog.Logger
	service  poolService
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service poolService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/companies/{companyID}/periods/{period}/cost-pool", h.create)
	r.Get("/cost-pools/{poolID}", h.get)
	r.Post("/cost-pools/{poolID}/allocate", h.allocate)
}

type createRequest struct {
	Lines []struct {
		Category string          `json:"category" validate:"required"`
		Amount   decimal.Decimal `json:"amount"`
	} `json:"lines" validate:"required,min=1,dive"`
	Method  string `json:"method" validate:"omitempty,oneof=FIXED_SPLIT"`
	Weights []struct {
		RecipientID int64           `json:"recipient_company_id" validate:"required,gt=0"`
		Weight      decimal.Decimal `json:"weight"`
	} `json:"weights" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.PathInt64(r, "companyID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	period, err := httpx.PathPeriod(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	in := CreatePoolInput{
		CompanyID: companyID,
		Period:    period,
		Method:    Method(req.Method),
		Actor:     shared.ActorFromContext(r.Context()),
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, LineInput{Category: l.Category, Amount: l.Amount})
	}
	for _, wt := range req.Weights {
		in.Weights = append(in.Weights, Weight{RecipientID: wt.RecipientID, Weight: wt.Weight})
	}
	pool, err := h.service.CreateCostPool(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pool)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	poolID, err := httpx.PathInt64(r, "poolID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	pool, err := h.service.GetPool(r.Context(), poolID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pool)
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	poolID, err := httpx.PathInt64(r, "poolID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	allocations, err := h.service.AllocateCostPool(r.Context(), poolID, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pool_id": poolID, "allocations": allocations})
}
