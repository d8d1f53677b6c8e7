package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository exposes ledger persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAccounts(ctx context.Context, companyID int64) ([]Account, error)
	FindAccount(ctx context.Context, companyID int64, code string) (Account, bool, error)
	ListPostableInvoiceIDs(ctx context.Context, groupID int64, period string) ([]int64, error)
	ListEntriesBySource(ctx context.Context, sourceType, sourceRef string) ([]Entry, error)
}

// TxRepository is the transactional slice used while posting.
type TxRepository interface {
	LoadDocument(ctx context.Context, invoiceID int64) (Document, error)
	FindAccount(ctx context.Context, companyID int64, code string) (Account, bool, error)
	ReplaceSourceEntries(ctx context.Context, sourceType, sourceRef string, entries []Entry) error
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

// ListAccounts returns the company's chart of accounts ordered by code.
func (r *PGRepository) ListAccounts(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, company_id, code, name, type FROM ledger_accounts WHERE company_id = $1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make([]Account, 0)
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// FindAccount looks an account up by code.
func (r *PGRepository) FindAccount(ctx context.Context, companyID int64, code string) (Account, bool, error) {
	return findAccount(ctx, db.Conn(ctx, r.pool), companyID, code)
}

// ListPostableInvoiceIDs lists non-void invoices of the period sold by a
// company of the group, in id order.
func (r *PGRepository) ListPostableInvoiceIDs(ctx context.Context, groupID int64, period string) ([]int64, error) {
	const query = `SELECT i.id FROM invoices i
JOIN companies c ON c.id = i.seller_company_id
WHERE c.group_id = $1 AND i.period = $2 AND i.status <> 'VOID'
ORDER BY i.id`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, groupID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListEntriesBySource returns the entries attached to a source document.
func (r *PGRepository) ListEntriesBySource(ctx context.Context, sourceType, sourceRef string) ([]Entry, error) {
	const query = `SELECT e.id, e.company_id, e.period, e.entry_date, e.account_id, a.code, e.debit, e.credit, e.memo, e.source_type, e.source_ref
FROM ledger_entries e JOIN ledger_accounts a ON a.id = e.account_id
WHERE e.source_type = $1 AND e.source_ref = $2
ORDER BY e.id`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, sourceType, sourceRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Period, &e.EntryDate, &e.AccountID, &e.AccountCode, &e.Debit, &e.Credit, &e.Memo, &e.SourceType, &e.SourceRef); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *txRepository) LoadDocument(ctx context.Context, invoiceID int64) (Document, error) {
	const query = `SELECT id, invoice_type, status, seller_company_id, COALESCE(buyer_company_id, 0), COALESCE(period, ''),
    issue_date, subtotal, is_credit_note, COALESCE(related_invoice_id, 0)
FROM invoices WHERE id = $1`
	var d Document
	err := t.tx.QueryRow(ctx, query, invoiceID).Scan(&d.ID, &d.Type, &d.Status, &d.SellerID, &d.BuyerID, &d.Period,
		&d.IssueDate, &d.Subtotal, &d.IsCreditNote, &d.RelatedInvoiceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("%w: id=%d", ErrInvoiceNotFound, invoiceID)
	}
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (t *txRepository) FindAccount(ctx context.Context, companyID int64, code string) (Account, bool, error) {
	return findAccount(ctx, t.tx, companyID, code)
}

// ReplaceSourceEntries swaps the full set of entries for a source document.
func (t *txRepository) ReplaceSourceEntries(ctx context.Context, sourceType, sourceRef string, entries []Entry) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM ledger_entries WHERE source_type = $1 AND source_ref = $2`, sourceType, sourceRef); err != nil {
		return err
	}
	const insert = `INSERT INTO ledger_entries (company_id, period, entry_date, account_id, debit, credit, memo, source_type, source_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, e := range entries {
		if _, err := t.tx.Exec(ctx, insert, e.CompanyID, e.Period, e.EntryDate, e.AccountID, e.Debit, e.Credit, e.Memo, sourceType, sourceRef); err != nil {
			return err
		}
	}
	return nil
}

func findAccount(ctx context.Context, q db.Querier, companyID int64, code string) (Account, bool, error) {
	var a Account
	err := q.QueryRow(ctx, `SELECT id, company_id, code, name, type FROM ledger_accounts WHERE company_id = $1 AND code = $2`, companyID, code).
		Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, err
	}
	return a, true, nil
}
