package export

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository reads the rows behind each export.
type Repository interface {
	JournalEntries(ctx context.Context, f Filter) ([]JournalLine, error)
	InvoiceLines(ctx context.Context, f Filter, scope InvoiceScope) ([]InvoiceLine, error)
	Payments(ctx context.Context, f Filter) ([]PaymentLine, error)
}

// PGRepository is the PostgreSQL implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// JournalEntries lists ledger lines for the group's companies.
func (r *PGRepository) JournalEntries(ctx context.Context, f Filter) ([]JournalLine, error) {
	const query = `SELECT e.id, e.company_id, e.period, e.entry_date, a.code, a.name, e.debit, e.credit, e.memo, e.source_type, e.source_ref
FROM ledger_entries e
JOIN ledger_accounts a ON a.id = e.account_id
JOIN companies c ON c.id = e.company_id
WHERE c.group_id = $1 AND e.period = $2 AND ($3::bigint = 0 OR e.company_id = $3)
ORDER BY e.company_id, e.entry_date, e.id`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, f.GroupID, f.Period, f.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.EntryID, &l.CompanyID, &l.Period, &l.EntryDate, &l.AccountCode, &l.AccountName,
			&l.Debit, &l.Credit, &l.Memo, &l.SourceType, &l.SourceRef); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// InvoiceLines lists invoice lines joined to their headers. Invoices without
// lines come back once with a nil Line.
func (r *PGRepository) InvoiceLines(ctx context.Context, f Filter, scope InvoiceScope) ([]InvoiceLine, error) {
	var where string
	switch scope {
	case ScopeInvoices:
		where = `NOT i.is_credit_note`
	case ScopeCreditNotes:
		where = `i.is_credit_note`
	case ScopeIntercompany:
		where = `NOT i.is_credit_note AND i.invoice_type = 'INTERCOMPANY'`
	default:
		return nil, fmt.Errorf("export: unknown invoice scope %d", scope)
	}
	query := `SELECT i.id, i.invoice_type, i.status, i.seller_company_id, i.buyer_company_id, i.period, i.issue_date, i.due_date,
    i.subtotal, i.vat_amount, i.total, i.is_credit_note, i.related_invoice_id, i.reason,
    l.position, l.agreement_id, l.description, l.net_amount, l.vat_rate, l.vat_amount, l.wht_rate, l.wht_amount, l.wht_tax_type, l.gross_amount
FROM invoices i
JOIN companies c ON c.id = i.seller_company_id
LEFT JOIN invoice_lines l ON l.invoice_id = i.id
WHERE c.group_id = $1 AND i.period = $2 AND ($3::bigint = 0 OR i.seller_company_id = $3 OR i.buyer_company_id = $3) AND ` + where + `
ORDER BY i.id, l.position`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, f.GroupID, f.Period, f.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InvoiceLine
	for rows.Next() {
		var (
			h           InvoiceHeader
			position    *int
			agreementID *int64
			description *string
			taxType     *string
		)
		var net, vatRate, vat, whtRate, wht, gross decimal.NullDecimal
		if err := rows.Scan(&h.ID, &h.Type, &h.Status, &h.SellerID, &h.BuyerID, &h.Period, &h.IssueDate, &h.DueDate,
			&h.Subtotal, &h.VATAmount, &h.Total, &h.IsCreditNote, &h.RelatedInvoiceID, &h.Reason,
			&position, &agreementID, &description, &net, &vatRate, &vat, &whtRate, &wht, &taxType, &gross); err != nil {
			return nil, err
		}
		row := InvoiceLine{Header: h}
		if position != nil {
			row.Line = &InvoiceLineDetail{
				Position:    *position,
				AgreementID: agreementID,
				Description: deref(description),
				NetAmount:   net.Decimal,
				VATRate:     vatRate.Decimal,
				VATAmount:   vat.Decimal,
				WHTRate:     whtRate.Decimal,
				WHTAmount:   wht.Decimal,
				WHTTaxType:  taxType,
				GrossAmount: gross.Decimal,
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Payments lists payments against invoices of the period.
func (r *PGRepository) Payments(ctx context.Context, f Filter) ([]PaymentLine, error) {
	const query = `SELECT p.id, p.invoice_id, p.payer_company_id, p.payee_company_id, p.payment_date, p.amount_paid, p.wht_withheld, p.reference, p.notes
FROM payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN companies c ON c.id = p.payee_company_id
WHERE c.group_id = $1 AND i.period = $2 AND ($3::bigint = 0 OR p.payer_company_id = $3 OR p.payee_company_id = $3)
ORDER BY p.payment_date, p.id`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, f.GroupID, f.Period, f.CompanyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentLine
	for rows.Next() {
		var p PaymentLine
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.PayerID, &p.PayeeID, &p.PaymentDate, &p.AmountPaid, &p.WHTWithheld, &p.Reference, &p.Notes); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
