package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository exposes invoice persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, int, error)
}

// TxRepository is the transactional slice used by generation, issuance and
// credit notes.
type TxRepository interface {
	ActiveAgreements(ctx context.Context, providerID, recipientID int64, typ AgreementType, model PricingModel, on time.Time) ([]Agreement, error)
	FindOpenInvoice(ctx context.Context, sellerID, buyerID int64, period string) (Invoice, bool, error)
	LockInvoice(ctx context.Context, id int64) (Invoice, error)
	CreateInvoice(ctx context.Context, inv Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, inv Invoice) error
	UpdateStatus(ctx context.Context, id int64, status Status, reason string) error
	ReplaceInvoiceLines(ctx context.Context, invoiceID int64, lines []Line) error
	CountPayments(ctx context.Context, invoiceID int64) (int, error)
	CountActiveCreditNotes(ctx context.Context, invoiceID int64) (int, error)
}

// PGRepository is the PostgreSQL implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const invoiceColumns = `id, invoice_type, status, seller_company_id, COALESCE(buyer_company_id, 0), COALESCE(period, ''),
    issue_date, due_date, subtotal, vat_amount, total, is_credit_note, COALESCE(related_invoice_id, 0), reason,
    created_at, updated_at`

// WithTx runs fn inside a transaction, joining one already open on ctx.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetInvoice loads an invoice with its lines.
func (r *PGRepository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, db.Conn(ctx, r.pool), id, false)
}

// ListInvoices returns one page of invoices sold or bought by the company in
// the period together with the total count, both read in one transaction.
func (r *PGRepository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	var (
		list  []Invoice
		total int
	)
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		const where = ` WHERE (seller_company_id = $1 OR buyer_company_id = $1) AND period = $2`
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, filter.CompanyID, filter.Period).Scan(&total); err != nil {
			return err
		}
		offset := (filter.Page - 1) * filter.PerPage
		rows, err := tx.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices`+where+` ORDER BY id LIMIT $3 OFFSET $4`,
			filter.CompanyID, filter.Period, filter.PerPage, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			inv, err := scanInvoice(rows)
			if err != nil {
				return err
			}
			list = append(list, inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (t *txRepository) ActiveAgreements(ctx context.Context, providerID, recipientID int64, typ AgreementType, model PricingModel, on time.Time) ([]Agreement, error) {
	const query = `SELECT id, provider_company_id, recipient_company_id, agreement_type, pricing_model, markup_rate,
    fixed_fee_amount, vat_applies, vat_rate, wht_applies, wht_rate, COALESCE(wht_tax_type, ''), effective_from, effective_to
FROM ic_agreements
WHERE provider_company_id = $1 AND recipient_company_id = $2 AND agreement_type = $3 AND pricing_model = $4
  AND effective_from <= $5 AND (effective_to IS NULL OR effective_to >= $5)
ORDER BY id`
	rows, err := t.tx.Query(ctx, query, providerID, recipientID, string(typ), string(model), on)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Agreement
	for rows.Next() {
		var a Agreement
		if err := rows.Scan(&a.ID, &a.ProviderID, &a.RecipientID, &a.Type, &a.PricingModel, &a.MarkupRate,
			&a.FixedFee, &a.VATApplies, &a.VATRate, &a.WHTApplies, &a.WHTRate, &a.WHTTaxType, &a.EffectiveFrom, &a.EffectiveTo); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindOpenInvoice locks the non-final, non-credit-note invoice for the pair
// and period, if any.
func (t *txRepository) FindOpenInvoice(ctx context.Context, sellerID, buyerID int64, period string) (Invoice, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM invoices
WHERE seller_company_id = $1 AND buyer_company_id = $2 AND period = $3
  AND is_credit_note = FALSE AND status IN ('DRAFT', 'ISSUED', 'PART_PAID')
ORDER BY id LIMIT 1 FOR UPDATE`, sellerID, buyerID, period).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, false, nil
	}
	if err != nil {
		return Invoice{}, false, err
	}
	inv, err := loadInvoice(ctx, t.tx, id, false)
	if err != nil {
		return Invoice{}, false, err
	}
	return inv, true, nil
}

func (t *txRepository) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return loadInvoice(ctx, t.tx, id, true)
}

func (t *txRepository) CreateInvoice(ctx context.Context, inv Invoice) (int64, error) {
	const query = `INSERT INTO invoices (invoice_type, status, seller_company_id, buyer_company_id, period, issue_date, due_date,
    subtotal, vat_amount, total, is_credit_note, related_invoice_id, reason)
VALUES ($1, $2, $3, NULLIF($4, 0), NULLIF($5, ''), $6, $7, $8, $9, $10, $11, NULLIF($12, 0), $13)
RETURNING id`
	var id int64
	err := t.tx.QueryRow(ctx, query, string(inv.Type), string(inv.Status), inv.SellerID, inv.BuyerID, inv.Period,
		inv.IssueDate, inv.DueDate, inv.Subtotal, inv.VATAmount, inv.Total, inv.IsCreditNote, inv.RelatedInvoiceID, inv.Reason).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert invoice: %w", err)
	}
	return id, nil
}

// UpdateInvoice rewrites dates and totals of an existing invoice.
func (t *txRepository) UpdateInvoice(ctx context.Context, inv Invoice) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET issue_date = $2, due_date = $3, subtotal = $4, vat_amount = $5, total = $6, updated_at = NOW()
WHERE id = $1`, inv.ID, inv.IssueDate, inv.DueDate, inv.Subtotal, inv.VATAmount, inv.Total)
	return err
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status Status, reason string) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2, reason = CASE WHEN $3 = '' THEN reason ELSE $3 END, updated_at = NOW() WHERE id = $1`,
		id, string(status), reason)
	return err
}

// ReplaceInvoiceLines swaps the full line set of an invoice.
func (t *txRepository) ReplaceInvoiceLines(ctx context.Context, invoiceID int64, lines []Line) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE invoice_id = $1`, invoiceID); err != nil {
		return err
	}
	const insert = `INSERT INTO invoice_lines (invoice_id, position, agreement_id, description, net_amount, vat_rate, vat_amount,
    wht_rate, wht_amount, wht_tax_type, gross_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11)`
	for _, l := range lines {
		if _, err := t.tx.Exec(ctx, insert, invoiceID, l.Position, l.AgreementID, l.Description, l.Net, l.VATRate, l.VAT,
			l.WHTRate, l.WHT, l.WHTTaxType, l.Gross); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) CountPayments(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&n)
	return n, err
}

func (t *txRepository) CountActiveCreditNotes(ctx context.Context, invoiceID int64) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE related_invoice_id = $1 AND is_credit_note AND status <> 'VOID'`, invoiceID).Scan(&n)
	return n, err
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Type, &inv.Status, &inv.SellerID, &inv.BuyerID, &inv.Period,
		&inv.IssueDate, &inv.DueDate, &inv.Subtotal, &inv.VATAmount, &inv.Total, &inv.IsCreditNote, &inv.RelatedInvoiceID, &inv.Reason,
		&inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}

func loadInvoice(ctx context.Context, q db.Querier, id int64, forUpdate bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvoice(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w: id=%d", ErrInvoiceNotFound, id)
	}
	if err != nil {
		return Invoice{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, position, agreement_id, description, net_amount, vat_rate, vat_amount, wht_rate, wht_amount,
    COALESCE(wht_tax_type, ''), gross_amount
FROM invoice_lines WHERE invoice_id = $1 ORDER BY position`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	inv.Lines = make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.Position, &l.AgreementID, &l.Description, &l.Net, &l.VATRate, &l.VAT, &l.WHTRate, &l.WHT,
			&l.WHTTaxType, &l.Gross); err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, l)
	}
	return inv, rows.Err()
}
