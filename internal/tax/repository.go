package tax

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository exposes VAT return persistence and the tax read models.
// The read methods other than GetReturn query the pool directly so TaxImpact
// may run them concurrently.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReturn(ctx context.Context, companyID int64, period string) (VATReturn, bool, error)
	VATTotals(ctx context.Context, companyID int64, period string) (output, input decimal.Decimal, err error)
	WHTWithheld(ctx context.Context, issuerID int64, period string) ([]TaxTypeTotal, error)
	WHTCredits(ctx context.Context, beneficiaryID int64, period string) ([]TaxTypeTotal, error)
	CountUnremitted(ctx context.Context, issuerID int64, period string) (int, error)
}

// TxRepository is the transactional slice used by generation and filing.
type TxRepository interface {
	LockReturn(ctx context.Context, companyID int64, period string) (VATReturn, bool, error)
	VATTotals(ctx context.Context, companyID int64, period string) (output, input decimal.Decimal, err error)
	UpsertReturn(ctx context.Context, ret VATReturn) error
	MarkFiled(ctx context.Context, companyID int64, period string, filedAt time.Time, paymentRef string) error
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

const returnColumns = `company_id, period, output_vat, input_vat, net_payable, status, generated_at, filed_at, payment_ref`

const vatTotalsQuery = `SELECT
    COALESCE(SUM(vat_amount) FILTER (WHERE seller_company_id = $1), 0),
    COALESCE(SUM(vat_amount) FILTER (WHERE buyer_company_id = $1), 0)
FROM invoices
WHERE period = $2 AND status <> 'VOID' AND (seller_company_id = $1 OR buyer_company_id = $1)`

// WithTx runs fn inside a transaction, joining one already open on ctx.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetReturn loads the stored return, if any.
func (r *PGRepository) GetReturn(ctx context.Context, companyID int64, period string) (VATReturn, bool, error) {
	return scanReturn(r.pool.QueryRow(ctx, `SELECT `+returnColumns+` FROM vat_returns WHERE company_id = $1 AND period = $2`, companyID, period))
}

// VATTotals sums output VAT on sales and input VAT on purchases, skipping VOID
// invoices.
func (r *PGRepository) VATTotals(ctx context.Context, companyID int64, period string) (decimal.Decimal, decimal.Decimal, error) {
	return vatTotals(ctx, r.pool, companyID, period)
}

// WHTWithheld totals the credit notes the company issued as payer.
func (r *PGRepository) WHTWithheld(ctx context.Context, issuerID int64, period string) ([]TaxTypeTotal, error) {
	return r.whtByType(ctx, `issuer_company_id`, issuerID, period)
}

// WHTCredits totals the credit notes the company received as beneficiary.
func (r *PGRepository) WHTCredits(ctx context.Context, beneficiaryID int64, period string) ([]TaxTypeTotal, error) {
	return r.whtByType(ctx, `beneficiary_company_id`, beneficiaryID, period)
}

func (r *PGRepository) whtByType(ctx context.Context, column string, companyID int64, period string) ([]TaxTypeTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT tax_type, SUM(amount) FROM wht_credit_notes
WHERE `+column+` = $1 AND period = $2 GROUP BY tax_type ORDER BY tax_type`, companyID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaxTypeTotal
	for rows.Next() {
		var t TaxTypeTotal
		if err := rows.Scan(&t.TaxType, &t.Amount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountUnremitted counts the issuer's credit notes still awaiting remittance.
func (r *PGRepository) CountUnremitted(ctx context.Context, issuerID int64, period string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wht_credit_notes
WHERE issuer_company_id = $1 AND period = $2 AND remittance_date IS NULL`, issuerID, period).Scan(&n)
	return n, err
}

func (t *txRepository) LockReturn(ctx context.Context, companyID int64, period string) (VATReturn, bool, error) {
	return scanReturn(t.tx.QueryRow(ctx, `SELECT `+returnColumns+` FROM vat_returns WHERE company_id = $1 AND period = $2 FOR UPDATE`, companyID, period))
}

func (t *txRepository) VATTotals(ctx context.Context, companyID int64, period string) (decimal.Decimal, decimal.Decimal, error) {
	return vatTotals(ctx, t.tx, companyID, period)
}

func (t *txRepository) UpsertReturn(ctx context.Context, ret VATReturn) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO vat_returns (company_id, period, output_vat, input_vat, net_payable, status, generated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (company_id, period) DO UPDATE
SET output_vat = EXCLUDED.output_vat, input_vat = EXCLUDED.input_vat, net_payable = EXCLUDED.net_payable,
    status = EXCLUDED.status, generated_at = EXCLUDED.generated_at`,
		ret.CompanyID, ret.Period, ret.OutputVAT, ret.InputVAT, ret.NetPayable, string(ret.Status), ret.GeneratedAt)
	return err
}

func (t *txRepository) MarkFiled(ctx context.Context, companyID int64, period string, filedAt time.Time, paymentRef string) error {
	_, err := t.tx.Exec(ctx, `UPDATE vat_returns SET status = $3, filed_at = $4, payment_ref = $5
WHERE company_id = $1 AND period = $2`, companyID, period, string(ReturnFiled), filedAt, paymentRef)
	return err
}

func vatTotals(ctx context.Context, q db.Querier, companyID int64, period string) (decimal.Decimal, decimal.Decimal, error) {
	var output, input decimal.Decimal
	err := q.QueryRow(ctx, vatTotalsQuery, companyID, period).Scan(&output, &input)
	return output, input, err
}

func scanReturn(row pgx.Row) (VATReturn, bool, error) {
	var ret VATReturn
	err := row.Scan(&ret.CompanyID, &ret.Period, &ret.OutputVAT, &ret.InputVAT, &ret.NetPayable,
		&ret.Status, &ret.GeneratedAt, &ret.FiledAt, &ret.PaymentRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return VATReturn{}, false, nil
	}
	if err != nil {
		return VATReturn{}, false, err
	}
	return ret, true, nil
}
