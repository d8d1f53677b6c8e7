package export

import (
	"context"
	"time"

	"github.com/odyssey-erp/holdco/internal/money"
)

type stubRepository struct {
	journal  []JournalLine
	invoices map[InvoiceScope][]InvoiceLine
	payments []PaymentLine

	lastFilter Filter
	lastScope  InvoiceScope
}

func (s *stubRepository) JournalEntries(_ context.Context, f Filter) ([]JournalLine, error) {
	s.lastFilter = f
	return s.journal, nil
}

func (s *stubRepository) InvoiceLines(_ context.Context, f Filter, scope InvoiceScope) ([]InvoiceLine, error) {
	s.lastFilter, s.lastScope = f, scope
	return s.invoices[scope], nil
}

func (s *stubRepository) Payments(_ context.Context, f Filter) ([]PaymentLine, error) {
	s.lastFilter = f
	return s.payments, nil
}

var (
	issued = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	due    = issued.AddDate(0, 0, 30)
)

func ptr[T any](v T) *T { return &v }

func seededRepository() *stubRepository {
	header := InvoiceHeader{
		ID: 10, Type: "INTERCOMPANY", Status: "ISSUED", SellerID: 1, BuyerID: ptr(int64(2)), Period: ptr("2025-01"),
		IssueDate: issued, DueDate: due,
		Subtotal: money.MustParse("135000"), VATAmount: money.MustParse("14850"), Total: money.MustParse("149850"),
	}
	empty := InvoiceHeader{
		ID: 11, Type: "EXTERNAL", Status: "DRAFT", SellerID: 1, Period: ptr("2025-01"),
		IssueDate: issued, DueDate: due,
	}
	credit := header
	credit.ID, credit.IsCreditNote, credit.RelatedInvoiceID, credit.Reason = 12, true, ptr(int64(10)), "pricing error"
	credit.Subtotal, credit.VATAmount, credit.Total = money.MustParse("-135000"), money.MustParse("-14850"), money.MustParse("-149850")
	line := &InvoiceLineDetail{
		Position: 1, AgreementID: ptr(int64(7)), Description: "Management fee",
		NetAmount: money.MustParse("110000"), VATRate: money.MustParse("0.11"), VATAmount: money.MustParse("12100"),
		WHTRate: money.MustParse("0.02"), WHTAmount: money.MustParse("2200"), WHTTaxType: ptr("SERVICES"),
		GrossAmount: money.MustParse("122100"),
	}
	return &stubRepository{
		journal: []JournalLine{{
			EntryID: 1, CompanyID: 1, Period: "2025-01", EntryDate: issued, AccountCode: "IC_REV", AccountName: "Intercompany revenue",
			Credit: money.MustParse("135000"), Memo: "Invoice 10", SourceType: "INVOICE", SourceRef: "10",
		}},
		invoices: map[InvoiceScope][]InvoiceLine{
			ScopeInvoices:     {{Header: header, Line: line}, {Header: empty}},
			ScopeIntercompany: {{Header: header, Line: line}},
			ScopeCreditNotes:  {{Header: credit}},
		},
		payments: []PaymentLine{{
			ID: 3, InvoiceID: 10, PayerID: ptr(int64(2)), PayeeID: 1, PaymentDate: issued,
			AmountPaid: money.MustParse("145450.5"), WHTWithheld: money.MustParse("4400"), Reference: "TRX-1",
		}},
	}
}
