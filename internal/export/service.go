package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

var (
	journalColumns = []string{
		"entry_id", "company_id", "period", "entry_date", "account_code", "account_name",
		"debit", "credit", "memo", "source_type", "source_ref",
	}
	invoiceHeaderColumns = []string{
		"invoice_id", "invoice_type", "status", "seller_company_id", "buyer_company_id", "period",
		"issue_date", "due_date", "subtotal", "vat_amount", "total",
	}
	creditNoteHeaderColumns = []string{
		"credit_note_id", "related_invoice_id", "reason", "status", "seller_company_id", "buyer_company_id", "period",
		"issue_date", "due_date", "subtotal", "vat_amount", "total",
	}
	invoiceLineColumns = []string{
		"line_no", "agreement_id", "description", "net_amount", "vat_rate", "line_vat_amount",
		"wht_rate", "wht_amount", "wht_tax_type", "gross_amount",
	}
	paymentColumns = []string{
		"payment_id", "invoice_id", "payer_company_id", "payee_company_id", "payment_date",
		"amount_paid", "wht_withheld", "reference", "notes",
	}
)

// Columns returns the fixed column order of an export kind.
func Columns(kind Kind) []string {
	switch kind {
	case KindJournalEntries:
		return journalColumns
	case KindInvoices, KindIntercompanyInvoices:
		return concat(invoiceHeaderColumns, invoiceLineColumns)
	case KindCreditNotes:
		return concat(creditNoteHeaderColumns, invoiceLineColumns)
	case KindPayments:
		return paymentColumns
	}
	return nil
}

// Service builds export tables.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Build loads and renders one export for a group and period.
func (s *Service) Build(ctx context.Context, kind Kind, f Filter) (Table, error) {
	if f.GroupID <= 0 {
		return Table{}, ErrGroupRequired
	}
	period, err := shared.NormalizePeriod(f.Period)
	if err != nil {
		return Table{}, err
	}
	f.Period = period
	table := Table{Kind: kind, Period: period, Columns: Columns(kind), Rows: [][]any{}}

	switch kind {
	case KindJournalEntries:
		lines, err := s.repo.JournalEntries(ctx, f)
		if err != nil {
			return Table{}, fmt.Errorf("export %s: %w", kind, err)
		}
		for _, l := range lines {
			table.Rows = append(table.Rows, journalRow(l))
		}
	case KindInvoices, KindCreditNotes, KindIntercompanyInvoices:
		lines, err := s.repo.InvoiceLines(ctx, f, scopeFor(kind))
		if err != nil {
			return Table{}, fmt.Errorf("export %s: %w", kind, err)
		}
		for _, l := range lines {
			table.Rows = append(table.Rows, invoiceRow(kind, l))
		}
	case KindPayments:
		payments, err := s.repo.Payments(ctx, f)
		if err != nil {
			return Table{}, fmt.Errorf("export %s: %w", kind, err)
		}
		for _, p := range payments {
			table.Rows = append(table.Rows, paymentRow(p))
		}
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	s.log().Debug("export built", slog.String("kind", string(kind)), slog.String("period", period),
		slog.Int64("group_id", f.GroupID), slog.Int("rows", len(table.Rows)))
	return table, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "export"))
	}
	return slog.Default().With(slog.String("component", "export"))
}

func scopeFor(kind Kind) InvoiceScope {
	switch kind {
	case KindCreditNotes:
		return ScopeCreditNotes
	case KindIntercompanyInvoices:
		return ScopeIntercompany
	}
	return ScopeInvoices
}

func journalRow(l JournalLine) []any {
	return []any{
		l.EntryID, l.CompanyID, l.Period, date(l.EntryDate), l.AccountCode, l.AccountName,
		money.Format(l.Debit), money.Format(l.Credit), l.Memo, l.SourceType, l.SourceRef,
	}
}

func invoiceRow(kind Kind, l InvoiceLine) []any {
	h := l.Header
	var row []any
	if kind == KindCreditNotes {
		row = []any{
			h.ID, nullInt(h.RelatedInvoiceID), h.Reason, h.Status, h.SellerID, nullInt(h.BuyerID), nullString(h.Period),
			date(h.IssueDate), date(h.DueDate), money.Format(h.Subtotal), money.Format(h.VATAmount), money.Format(h.Total),
		}
	} else {
		row = []any{
			h.ID, h.Type, h.Status, h.SellerID, nullInt(h.BuyerID), nullString(h.Period),
			date(h.IssueDate), date(h.DueDate), money.Format(h.Subtotal), money.Format(h.VATAmount), money.Format(h.Total),
		}
	}
	if l.Line == nil {
		return append(row, make([]any, len(invoiceLineColumns))...)
	}
	d := l.Line
	return append(row,
		int64(d.Position), nullInt(d.AgreementID), d.Description, money.Format(d.NetAmount), rate(d.VATRate),
		money.Format(d.VATAmount), rate(d.WHTRate), money.Format(d.WHTAmount), nullString(d.WHTTaxType), money.Format(d.GrossAmount),
	)
}

func paymentRow(p PaymentLine) []any {
	return []any{
		p.ID, p.InvoiceID, nullInt(p.PayerID), p.PayeeID, date(p.PaymentDate),
		money.Format(p.AmountPaid), money.Format(p.WHTWithheld), p.Reference, p.Notes,
	}
}

func date(t time.Time) string {
	return t.Format(time.DateOnly)
}

func rate(d decimal.Decimal) string {
	return d.StringFixed(4)
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
