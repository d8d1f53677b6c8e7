package consol

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type profitLossBuilder interface {
	Build(ctx context.Context, filters Filters) (Report, error)
}

// Handler serves the consolidated P&L.
type Handler struct {
	logger    *slog.Logger
	service   profitLossBuilder
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the handler. Report builds are limited per group.
func NewHandler(logger *slog.Logger, service profitLossBuilder) *Handler {
	limiter := httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
		if id, ok := shared.IdentityFromContext(r.Context()); ok && id.GroupID > 0 {
			return "group:" + strconv.FormatInt(id.GroupID, 10), nil
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return "ip:" + r.RemoteAddr, nil
		}
		return "ip:" + host, nil
	}))
	return &Handler{logger: logger, service: service, rateLimit: limiter}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rateLimit).Get("/periods/{period}/consolidated-pl", h.profitLoss)
}

func (h *Handler) profitLoss(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok || id.GroupID <= 0 {
		httpx.RespondError(w, r, h.logger, ErrGroupRequired)
		return
	}
	period, err := httpx.PathPeriod(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	includeIC := false
	if raw := r.URL.Query().Get("include_intercompany"); raw != "" {
		includeIC, err = strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, r, h.logger, shared.Validationf("invalid include_intercompany %q", raw))
			return
		}
	}
	report, err := h.service.Build(r.Context(), Filters{GroupID: id.GroupID, Period: period, IncludeIntercompany: includeIC})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
