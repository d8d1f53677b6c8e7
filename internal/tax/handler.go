package tax

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type taxService interface {
	GenerateVATReturn(ctx context.Context, companyID int64, period, actor string) (VATReturn, error)
	FileVATReturn(ctx context.Context, in FileInput) (VATReturn, error)
	GetVATReturn(ctx context.Context, companyID int64, period string) (VATReturn, error)
	TaxImpact(ctx context.Context, companyID int64, period string) (Impact, error)
}

// Handler exposes VAT return and tax impact endpoints.
type Handler struct {
	logger   *slog.Logger
	service  taxService
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service taxService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/companies/{companyID}/periods/{period}", func(r chi.Router) {
		r.Get("/vat-return", h.getReturn)
		r.Post("/vat-return", h.generate)
		r.Post("/vat-return/file", h.file)
		r.Get("/tax-impact", h.impact)
	})
}

type fileRequest struct {
	PaymentRef string `json:"payment_ref" validate:"required,max=120"`
}

func scopeParams(r *http.Request) (int64, string, error) {
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

func (h *Handler) getReturn(w http.ResponseWriter, r *http.Request) {
	companyID, period, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	ret, err := h.service.GetVATReturn(r.Context(), companyID, period)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	companyID, period, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	ret, err := h.service.GenerateVATReturn(r.Context(), companyID, period, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	companyID, period, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req fileRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	ret, err := h.service.FileVATReturn(r.Context(), FileInput{
		CompanyID:  companyID,
		Period:     period,
		PaymentRef: req.PaymentRef,
		Actor:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ret)
}

func (h *Handler) impact(w http.ResponseWriter, r *http.Request) {
	companyID, period, err := scopeParams(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	impact, err := h.service.TaxImpact(r.Context(), companyID, period)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, impact)
}
