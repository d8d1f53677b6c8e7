package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository exposes payment and WHT persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error)
	WHTSchedule(ctx context.Context, issuerID int64, period string) ([]ScheduleRow, error)
	MarkRemitted(ctx context.Context, in MarkRemittedInput) (int64, error)
}

// TxRepository is the transactional slice used when recording a payment.
type TxRepository interface {
	LockInvoice(ctx context.Context, id int64) (InvoiceSnapshot, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	InsertCreditNote(ctx context.Context, note WHTCreditNote) (int64, error)
	SumPaid(ctx context.Context, invoiceID int64) (decimal.Decimal, error)
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status invoicing.Status) error
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

// WithTx runs fn inside a transaction, joining one already open on ctx.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListPayments returns the payments recorded against an invoice in order.
func (r *PGRepository) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, invoice_id, COALESCE(payer_company_id, 0), payee_company_id,
    payment_date, amount_paid, wht_withheld, reference, notes
FROM payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.PayerID, &p.PayeeID, &p.PaymentDate,
			&p.AmountPaid, &p.WHTWithheld, &p.Reference, &p.Notes); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// WHTSchedule totals the issuer's unremitted credit notes per tax type.
func (r *PGRepository) WHTSchedule(ctx context.Context, issuerID int64, period string) ([]ScheduleRow, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT tax_type, SUM(amount), COUNT(*)
FROM wht_credit_notes
WHERE issuer_company_id = $1 AND period = $2 AND remittance_date IS NULL
GROUP BY tax_type ORDER BY tax_type`, issuerID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScheduleRow
	for rows.Next() {
		var row ScheduleRow
		if err := rows.Scan(&row.TaxType, &row.Total, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MarkRemitted stamps matching unremitted notes and returns how many changed.
func (r *PGRepository) MarkRemitted(ctx context.Context, in MarkRemittedInput) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE wht_credit_notes
SET remittance_date = $4, receipt_ref = $5
WHERE issuer_company_id = $1 AND period = $2 AND tax_type = $3 AND remittance_date IS NULL`,
		in.IssuerID, in.Period, in.TaxType, in.RemittanceDate, in.ReceiptRef)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *txRepository) LockInvoice(ctx context.Context, id int64) (InvoiceSnapshot, error) {
	var snap InvoiceSnapshot
	err := t.tx.QueryRow(ctx, `SELECT id, status, seller_company_id, COALESCE(buyer_company_id, 0), COALESCE(period, ''),
    total, is_credit_note
FROM invoices WHERE id = $1 FOR UPDATE`, id).Scan(&snap.ID, &snap.Status, &snap.SellerID, &snap.BuyerID,
		&snap.Period, &snap.Total, &snap.IsCreditNote)
	if errors.Is(err, pgx.ErrNoRows) {
		return InvoiceSnapshot{}, ErrInvoiceNotFound
	}
	if err != nil {
		return InvoiceSnapshot{}, err
	}
	rows, err := t.tx.Query(ctx, `SELECT COALESCE(NULLIF(l.wht_tax_type, ''), NULLIF(a.wht_tax_type, ''), $2), l.wht_amount
FROM invoice_lines l
LEFT JOIN ic_agreements a ON a.id = l.agreement_id
WHERE l.invoice_id = $1
ORDER BY l.position`, id, DefaultTaxType)
	if err != nil {
		return InvoiceSnapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line WHTLine
		if err := rows.Scan(&line.TaxType, &line.Amount); err != nil {
			return InvoiceSnapshot{}, err
		}
		snap.WHTLines = append(snap.WHTLines, line)
	}
	return snap, rows.Err()
}

func (t *txRepository) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, payer_company_id, payee_company_id, payment_date,
    amount_paid, wht_withheld, reference, notes)
VALUES ($1, NULLIF($2, 0), $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.InvoiceID, p.PayerID, p.PayeeID, p.PaymentDate, p.AmountPaid, p.WHTWithheld, p.Reference, p.Notes).Scan(&id)
	return id, err
}

func (t *txRepository) InsertCreditNote(ctx context.Context, note WHTCreditNote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO wht_credit_notes (payment_id, period, issuer_company_id, beneficiary_company_id,
    tax_type, amount)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		note.PaymentID, note.Period, note.IssuerID, note.BeneficiaryID, note.TaxType, note.Amount).Scan(&id)
	return id, err
}

func (t *txRepository) SumPaid(ctx context.Context, invoiceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_paid), 0) FROM payments WHERE invoice_id = $1`, invoiceID).Scan(&total)
	return total, err
}

func (t *txRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status invoicing.Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1`, invoiceID, string(status))
	return err
}
