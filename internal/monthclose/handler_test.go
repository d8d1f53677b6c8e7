package monthclose

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/holdco/internal/shared"
)

const closeBody = `{
  "issue_date": "2025-01-31",
  "due_days": 30,
  "lines": [{"category": "Salaries", "amount": "700000.00"}, {"category": "Rent", "amount": "300000.00"}],
  "weights": [{"recipient_company_id": 2, "weight": "0.6"}, {"recipient_company_id": 3, "weight": "0.4"}]
}`

func TestHandlerRunsMonthClose(t *testing.T) {
	f := newFixture()
	r := chi.NewRouter()
	NewHandler(nil, f.orch).MountRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/companies/1/periods/2025-01/month-close", strings.NewReader(closeBody))
	req = req.WithContext(shared.ContextWithIdentity(req.Context(), shared.Identity{GroupID: 9, Actor: "controller"}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"reason":"Month close completed"`)
	assert.Contains(t, rec.Body.String(), `"locked_by":"controller"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/1/periods/2025-01/month-close", strings.NewReader(closeBody)))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "locked period")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/1/periods/2025-01/month-close/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"COMPLETED"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/1/periods/2025-02/month-close", strings.NewReader(`{"issue_date":"2025-02-28","lines":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
