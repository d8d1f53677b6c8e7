package export

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type tableBuilder interface {
	Build(ctx context.Context, kind Kind, f Filter) (Table, error)
}

// Handler serves the export endpoint.
type Handler struct {
	logger  *slog.Logger
	builder tableBuilder
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, builder tableBuilder) *Handler {
	return &Handler{logger: logger, builder: builder}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/exports/{kind}", h.export)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	query := r.URL.Query()
	format, err := ParseFormat(query.Get("format"))
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var companyID int64
	if raw := query.Get("company"); raw != "" {
		companyID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || companyID <= 0 {
			httpx.RespondError(w, r, h.logger, shared.Validationf("invalid company %q", raw))
			return
		}
	}
	identity, _ := shared.IdentityFromContext(r.Context())
	table, err := h.builder.Build(r.Context(), kind, Filter{
		GroupID:   identity.GroupID,
		Period:    query.Get("period"),
		CompanyID: companyID,
	})
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", ContentType(format))
	if format == FormatCSV {
		w.Header().Set("Content-Disposition", `attachment; filename="`+FileName(table, format)+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if err := Render(w, table, format); err != nil && h.logger != nil {
		h.logger.Error("write export", slog.String("kind", string(kind)), slog.Any("error", err))
	}
}
