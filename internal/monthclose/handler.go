package monthclose

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type closeRunner interface {
	Run(ctx context.Context, in RunInput) (Result, error)
	ListRuns(ctx context.Context, companyID int64, period string) ([]Run, error)
}

// Handler exposes the month-close endpoints.
type Handler struct {
	logger   *slog.Logger
	runner   closeRunner
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, runner closeRunner) *Handler {
	return &Handler{logger: logger, runner: runner, validate: validator.New()}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/companies/{companyID}/periods/{period}/month-close", h.run)
	r.Get("/companies/{companyID}/periods/{period}/month-close/runs", h.listRuns)
}

type runRequest struct {
	IssueDate string `json:"issue_date" validate:"required,datetime=2006-01-02"`
	DueDays   int    `json:"due_days" validate:"gte=0,lte=365"`
	Lines     []struct {
		Category string          `json:"category" validate:"required,max=120"`
		Amount   decimal.Decimal `json:"amount"`
	} `json:"lines" validate:"required,min=1,dive"`
	Weights []costpool.Weight `json:"weights" validate:"required,min=1"`
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
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
	var req runRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	issueDate, _ := time.Parse(time.DateOnly, req.IssueDate)
	lines := make([]costpool.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, costpool.LineInput{Category: l.Category, Amount: l.Amount})
	}
	result, err := h.runner.Run(r.Context(), RunInput{
		HoldcoID:  companyID,
		Period:    period,
		Lines:     lines,
		Weights:   req.Weights,
		IssueDate: issueDate,
		DueDays:   req.DueDays,
		LockedBy:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
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
	runs, err := h.runner.ListRuns(r.Context(), companyID, period)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
}
