package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type posting interface {
	PostInvoice(ctx context.Context, invoiceID int64) (PostingResult, error)
	PostAllInvoicesForPeriod(ctx context.Context, groupID int64, period string) (int, error)
}

type accounts interface {
	ListAccounts(ctx context.Context, companyID int64) ([]Account, error)
}

// Handler exposes ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	poster   posting
	registry accounts
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, poster posting, registry accounts) *Handler {
	return &Handler{logger: logger, poster: poster, registry: registry}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/companies/{companyID}/ledger-accounts", h.listAccounts)
	r.Post("/invoices/{invoiceID}/post", h.postInvoice)
	r.Post("/periods/{period}/ledger/post-all", h.postAll)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.PathInt64(r, "companyID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	list, err := h.registry.ListAccounts(r.Context(), companyID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": list})
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := httpx.PathInt64(r, "invoiceID")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	result, err := h.poster.PostInvoice(r.Context(), invoiceID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) postAll(w http.ResponseWriter, r *http.Request) {
	period, err := httpx.PathPeriod(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, shared.Validationf("X-Group-ID header required"))
		return
	}
	posted, err := h.poster.PostAllInvoicesForPeriod(r.Context(), id.GroupID, period)
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		h.respondBatchError(w, r, batchErr)
		return
	}
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": period, "posted": posted})
}

// respondBatchError keeps the partial-progress figures next to the mapped
// problem so callers can resume from the failing invoice.
func (h *Handler) respondBatchError(w http.ResponseWriter, r *http.Request, batchErr *BatchError) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(batchErr, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(batchErr, shared.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(batchErr, shared.ErrConfiguration):
		status = http.StatusUnprocessableEntity
	case errors.Is(batchErr, shared.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		httpx.RespondError(w, r, h.logger, batchErr)
		return
	}
	httpx.JSON(w, status, map[string]any{
		"title":             http.StatusText(status),
		"status":            status,
		"detail":            batchErr.Error(),
		"posted":            batchErr.Posted,
		"failed_invoice_id": batchErr.InvoiceID,
	})
}
