package payments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/holdco/internal/invoicing"
)

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestHandlerRecordsPaymentAndRemits(t *testing.T) {
	svc, _ := newTestService()
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/10/payments",
		strings.NewReader(`{"payment_date":"2025-02-15","amount_paid":"430.00","reference":"TRF-1"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var result PaymentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, invoicing.StatusPartPaid, result.InvoiceStatus)
	assert.Len(t, result.CreditNotes, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/10/payments", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reference":"TRF-1"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/2/periods/2025-01/wht-schedule", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tax_type":"SERVICES"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/2/periods/2025-01/wht-schedule/royalty/remit",
		strings.NewReader(`{"remittance_date":"2025-02-21","receipt_ref":"FIRS-7"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"tax_type":"ROYALTY","updated":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/2/periods/2025-01/wht-schedule/royalty/remit",
		strings.NewReader(`{"remittance_date":"2025-02-21","receipt_ref":"FIRS-8"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsBadPayments(t *testing.T) {
	svc, repo := newTestService()
	router := newTestRouter(svc)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad date", "/invoices/10/payments", `{"payment_date":"15/02/2025","amount_paid":"10"}`, http.StatusBadRequest},
		{"wht out of tolerance", "/invoices/10/payments", `{"payment_date":"2025-02-15","amount_paid":"10","wht_withheld":"61.50"}`, http.StatusBadRequest},
		{"unknown invoice", "/invoices/99/payments", `{"payment_date":"2025-02-15","amount_paid":"10"}`, http.StatusNotFound},
		{"unknown field", "/invoices/10/payments", `{"payment_date":"2025-02-15","amount_paid":"10","extra":1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, repo.payments)
}
