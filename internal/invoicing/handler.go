package invoicing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type invoiceService interface {
	GenerateIntercompanyInvoices(ctx context.Context, in GenerateInput) (GenerateResult, error)
	IssueInvoice(ctx context.Context, id int64, actor string) (Invoice, error)
	VoidInvoice(ctx context.Context, id int64, actor, reason string) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, shared.Pagination, error)
}

type creditNoteService interface {
	CreateCreditNote(ctx context.Context, in CreditNoteInput) (Invoice, error)
}

// Handler exposes invoice and credit note endpoints.
type Handler struct {
	logger   *slog.Logger
	invoices invoiceService
	credits  creditNoteService
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, invoices invoiceService, credits creditNoteService) *Handler {
	return &Handler{logger: logger, invoices: invoices, credits: credits, validate: validator.New()}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/companies/{companyID}/periods/{period}/intercompany-invoices", h.generate)
	r.Get("/companies/{companyID}/periods/{period}/invoices", h.list)
	r.Get("/invoices/{invoiceID}", h.get)
	r.Post("/invoices/{invoiceID}/issue", h.issue)
	r.Post("/invoices/{invoiceID}/void", h.void)
	r.Post("/invoices/{invoiceID}/credit-notes", h.creditNote)
}

type generateRequest struct {
	IssueDate string `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DueDays   int    `json:"due_days" validate:"gte=0,lte=365"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type creditNoteRequest struct {
	IssueDate    string `json:"issue_date" validate:"required,datetime=2006-01-02"`
	Reason       string `json:"reason" validate:"max=500"`
	FullReversal bool   `json:"full_reversal"`
	Lines        []struct {
		LineID int64           `json:"line_id" validate:"required,gt=0"`
		Amount decimal.Decimal `json:"amount"`
	} `json:"lines" validate:"dive"`
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
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
	var req generateRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	issueDate, _ := time.Parse(time.DateOnly, req.IssueDate)
	result, err := h.invoices.GenerateIntercompanyInvoices(r.Context(), GenerateInput{
		HoldcoID:  companyID,
		Period:    period,
		IssueDate: issueDate,
		DueDays:   req.DueDays,
		Actor:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
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
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, pagination, err := h.invoices.ListInvoices(r.Context(), ListFilter{CompanyID: companyID, Period: period, Page: page, PerPage: perPage})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": list, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	inv, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	inv, err := h.invoices.IssueInvoice(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	inv, err := h.invoices.VoidInvoice(r.Context(), id, shared.ActorFromContext(r.Context()), req.Reason)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) creditNote(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var req creditNoteRequest
	if err := h.decode(w, r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	issueDate, _ := time.Parse(time.DateOnly, req.IssueDate)
	in := CreditNoteInput{
		OriginalInvoiceID: id,
		IssueDate:         issueDate,
		Reason:            req.Reason,
		FullReversal:      req.FullReversal,
		Actor:             shared.ActorFromContext(r.Context()),
	}
	if len(req.Lines) > 0 {
		in.Lines = make(map[int64]decimal.Decimal, len(req.Lines))
		for _, l := range req.Lines {
			if _, dup := in.Lines[l.LineID]; dup {
				httpx.RespondError(w, r, h.logger, shared.Validationf("invalid request: line %d listed twice", l.LineID))
				return
			}
			in.Lines[l.LineID] = l.Amount
		}
	}
	note, err := h.credits.CreateCreditNote(r.Context(), in)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(w, r, dst); err != nil {
		return err
	}
	return httpx.Validate(h.validate, dst)
}
