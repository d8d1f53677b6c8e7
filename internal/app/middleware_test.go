package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/holdco/internal/observability"
	"github.com/odyssey-erp/holdco/internal/shared"
)

type memoryIdempotency struct {
	mu      sync.Mutex
	records map[string]shared.IdempotencyRecord
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{records: map[string]shared.IdempotencyRecord{}}
}

func (m *memoryIdempotency) key(groupID int64, key string) string {
	return fmt.Sprintf("%d/%s", groupID, key)
}

func (m *memoryIdempotency) Reserve(_ context.Context, groupID int64, key, fingerprint string) (shared.IdempotencyRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[m.key(groupID, key)]; ok {
		return rec, false, nil
	}
	rec := shared.IdempotencyRecord{GroupID: groupID, Key: key, Fingerprint: fingerprint}
	m.records[m.key(groupID, key)] = rec
	return rec, true, nil
}

func (m *memoryIdempotency) Complete(_ context.Context, groupID int64, key string, status int, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[m.key(groupID, key)]
	rec.StatusCode, rec.Body = status, append([]byte(nil), body...)
	m.records[m.key(groupID, key)] = rec
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, groupID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, m.key(groupID, key))
	return nil
}

type directoryStub map[string]int64

func (d directoryStub) lookup(kind string, id int64) (int64, error) {
	group, ok := d[fmt.Sprintf("%s:%d", kind, id)]
	if !ok {
		return 0, shared.ErrOutOfScope
	}
	return group, nil
}

func (d directoryStub) CompanyGroup(_ context.Context, id int64) (int64, error) {
	return d.lookup("company", id)
}

func (d directoryStub) InvoiceGroup(_ context.Context, id int64) (int64, error) {
	return d.lookup("invoice", id)
}

func (d directoryStub) PoolGroup(_ context.Context, id int64) (int64, error) {
	return d.lookup("pool", id)
}

func withGroup(req *http.Request, group string) *http.Request {
	req.Header.Set(HeaderGroupID, group)
	return req
}

func TestRequireIdentity(t *testing.T) {
	var seen shared.Identity
	handler := RequireIdentity(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range []string{"", "abc", "0", "-4"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withGroup(httptest.NewRequest(http.MethodGet, "/", nil), header))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "header %q", header)
	}

	req := withGroup(httptest.NewRequest(http.MethodGet, "/", nil), "9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, shared.Identity{GroupID: 9, Actor: shared.DefaultActor}, seen)

	req = withGroup(httptest.NewRequest(http.MethodGet, "/", nil), " 9 ")
	req.Header.Set(HeaderActor, "controller")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "controller", seen.Actor)
}

func idempotentRouter(store idempotencyStore, calls *int, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(RequireIdentity(nil), Idempotency(store, observability.NewMetrics(), nil))
	r.Post("/things", func(w http.ResponseWriter, r *http.Request) {
		*calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d,"echo":%q}`, *calls, body)
	})
	return r
}

func postThing(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := withGroup(httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(body)), "9")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	calls := 0
	h := idempotentRouter(newMemoryIdempotency(), &calls, http.StatusCreated)

	first := postThing(h, "k-1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := postThing(h, "k-1", `{"a":1}`)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderIdempotentReplay))
	assert.Equal(t, 1, calls)

	mismatch := postThing(h, "k-1", `{"a":2}`)
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, 1, calls)

	postThing(h, "", `{"a":1}`)
	postThing(h, "", `{"a":1}`)
	assert.Equal(t, 3, calls, "requests without a key are never deduplicated")
}

func TestIdempotencyRejectsInFlightKey(t *testing.T) {
	store := newMemoryIdempotency()
	_, _, err := store.Reserve(context.Background(), 9, "busy", shared.Fingerprint(http.MethodPost, "/things", []byte(`{}`)))
	require.NoError(t, err)

	calls := 0
	rec := postThing(idempotentRouter(store, &calls, http.StatusOK), "busy", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newMemoryIdempotency()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusInternalServerError)

	postThing(h, "retry-me", `{}`)
	postThing(h, "retry-me", `{}`)
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.records)
}

func TestScopeGuardHidesOtherGroups(t *testing.T) {
	dir := directoryStub{"company:1": 9, "company:5": 7, "invoice:10": 9, "invoice:11": 7, "pool:3": 7}
	r := chi.NewRouter()
	r.Route(APIPrefix, func(api chi.Router) {
		api.Use(RequireIdentity(nil), ScopeGuard(api, dir, nil))
		api.Get("/companies/{companyID}/periods/{period}/lock", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		api.Route("/companies/{companyID}/periods/{period}", func(r chi.Router) {
			r.Get("/tax-impact", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})
		api.Post("/invoices/{invoiceID}/issue", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		api.Get("/cost-pools/{poolID}", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		api.Get("/periods/{period}/consolidated-pl", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	cases := []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/companies/1/periods/2025-01/lock", http.StatusOK},
		{http.MethodGet, "/companies/5/periods/2025-01/lock", http.StatusNotFound},
		{http.MethodGet, "/companies/404/periods/2025-01/lock", http.StatusNotFound},
		{http.MethodGet, "/companies/5/periods/2025-01/tax-impact", http.StatusNotFound},
		{http.MethodGet, "/companies/1/periods/2025-01/tax-impact", http.StatusOK},
		{http.MethodPost, "/invoices/10/issue", http.StatusOK},
		{http.MethodPost, "/invoices/11/issue", http.StatusNotFound},
		{http.MethodGet, "/cost-pools/3", http.StatusNotFound},
		{http.MethodGet, "/periods/2025-01/consolidated-pl", http.StatusOK},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, withGroup(httptest.NewRequest(tc.method, APIPrefix+tc.path, nil), "9"))
		assert.Equal(t, tc.status, rec.Code, "%s %s", tc.method, tc.path)
	}
}
