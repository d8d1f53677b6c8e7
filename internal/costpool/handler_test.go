package costpool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerCreateAllocateAndRead(t *testing.T) {
	repo := newMemoryRepo()
	r := chi.NewRouter()
	NewHandler(nil, NewService(repo, &lockStub{}, nil, nil)).MountRoutes(r)

	body := `{"lines":[{"category":"Shared services","amount":"1000000"}],
"weights":[{"recipient_company_id":2,"weight":"0.6"},{"recipient_company_id":3,"weight":0.4}]}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/1/periods/2025-01/cost-pool", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pool Pool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pool))
	assert.Equal(t, "2025-01", pool.Period)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/cost-pools/1/allocate", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var payload struct {
		Allocations []Allocation `json:"allocations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Allocations, 2)
	assert.Equal(t, "600000", payload.Allocations[0].AllocatedCost.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cost-pools/9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreateRejectsInvalidBody(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, NewService(newMemoryRepo(), &lockStub{}, nil, nil)).MountRoutes(r)

	for _, body := range []string{
		`{"lines":[],"weights":[{"recipient_company_id":2,"weight":"1"}]}`,
		`{"lines":[{"category":"IT","amount":"1"}],"weights":[{"recipient_company_id":2,"weight":"0.5"}]}`,
		`{"lines":[{"category":"IT","amount":"1"}],"weights":[{"recipient_company_id":2,"weight":"1"}],"method":"PRO_RATA"}`,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/1/periods/2025-01/cost-pool", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
