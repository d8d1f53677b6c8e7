package payments

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type paymentService interface {
	RecordIntercompanyPayment(ctx context.Context, in RecordPaymentInput) (PaymentResult, error)
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	GetWHTSchedule(ctx context.Context, issuerID int64, period string) ([]ScheduleRow, error)
	MarkRemitted(ctx context.Context, in MarkRemittedInput) (int64, error)
}

// Handler exposes payment and WHT remittance endpoints.
type Handler struct {
	logger   *slog.Logger
	service  paymentService
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service paymentService) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices/{invoiceID}/payments", h.record)
	r.Get("/invoices/{invoiceID}/payments", h.list)
	r.Get("/companies/{companyID}/periods/{period}/wht-schedule", h.schedule)
	r.Post("/companies/{companyID}/periods/{period}/wht-schedule/{taxType}/remit", h.remit)
}

type paymentRequest struct {
	PaymentDate string           `json:"payment_date" validate:"required,datetime=2006-01-02"`
	AmountPaid  decimal.Decimal  `json:"amount_paid"`
	WHTWithheld *decimal.Decimal `json:"wht_withheld"`
	Reference   string           `json:"reference" validate:"max=120"`
	Notes       string           `json:"notes" validate:"max=500"`
}

type remitRequest struct {
	RemittanceDate string `json:"remittance_date" validate:"required,datetime=2006-01-02"`
	ReceiptRef     string `json:"receipt_ref" validate:"required,max=120"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := httpx.PathInt64(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req paymentRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	paymentDate, _ := time.Parse(time.DateOnly, req.PaymentDate)
	result, err := h.service.RecordIntercompanyPayment(r.Context(), RecordPaymentInput{
		InvoiceID:   invoiceID,
		PaymentDate: paymentDate,
		AmountPaid:  req.AmountPaid,
		WHTWithheld: req.WHTWithheld,
		Reference:   req.Reference,
		Notes:       req.Notes,
		Actor:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := httpx.PathInt64(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	list, err := h.service.ListPayments(r.Context(), invoiceID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if list == nil {
		list = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": list})
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
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
	rows, err := h.service.GetWHTSchedule(r.Context(), companyID, period)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"company_id": companyID, "period": period, "schedule": rows})
}

func (h *Handler) remit(w http.ResponseWriter, r *http.Request) {
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
	var req remitRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	remittedOn, _ := time.Parse(time.DateOnly, req.RemittanceDate)
	taxType := strings.ToUpper(chi.URLParam(r, "taxType"))
	updated, err := h.service.MarkRemitted(r.Context(), MarkRemittedInput{
		IssuerID:       companyID,
		Period:         period,
		TaxType:        taxType,
		RemittanceDate: remittedOn,
		ReceiptRef:     req.ReceiptRef,
		Actor:          shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tax_type": taxType, "updated": updated})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		return err
	}
	return httpx.Validate(h.validate, dst)
}
