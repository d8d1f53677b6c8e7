package ledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/holdco/internal/shared"
)

func newTestRouter(poster *Poster, registry *Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithIdentity(req.Context(), shared.Identity{GroupID: 10, Actor: "tester"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(nil, poster, registry).MountRoutes(r)
	return r
}

func TestHandlerPostAllReportsProgress(t *testing.T) {
	repo := seededRepo()
	repo.docs[1] = icDoc(1, "10.00")
	bad := icDoc(2, "20.00")
	bad.BuyerID = 3
	repo.docs[2] = bad
	router := newTestRouter(NewPoster(repo, nil, nil), NewRegistry(repo))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/periods/2025-01/ledger/post-all", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["posted"])
	assert.EqualValues(t, 2, body["failed_invoice_id"])

	delete(repo.docs, 2)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/periods/2025-01/ledger/post-all", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"period":"2025-01","posted":1}`, rec.Body.String())
}

func TestHandlerPostInvoiceAndAccounts(t *testing.T) {
	repo := seededRepo()
	repo.docs[1] = icDoc(1, "10.00")
	router := newTestRouter(NewPoster(repo, nil, nil), NewRegistry(repo))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/1/post", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var result PostingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Entries, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/abc/post", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/1/ledger-accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Accounts []Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Len(t, payload.Accounts, 2)
}

