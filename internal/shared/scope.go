package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOutOfScope hides resources that belong to another group.
var ErrOutOfScope = NotFoundf("resource not found in caller group")

// CompanyDirectory resolves which group owns companies and the documents
// attached to them.
type CompanyDirectory struct {
	pool *pgxpool.Pool
}

// NewCompanyDirectory constructs the directory.
func NewCompanyDirectory(pool *pgxpool.Pool) *CompanyDirectory {
	return &CompanyDirectory{pool: pool}
}

// CompanyGroup returns the group owning a company.
func (d *CompanyDirectory) CompanyGroup(ctx context.Context, companyID int64) (int64, error) {
	return d.lookup(ctx, `SELECT group_id FROM companies WHERE id = $1`, companyID)
}

// InvoiceGroup returns the group owning an invoice's seller.
func (d *CompanyDirectory) InvoiceGroup(ctx context.Context, invoiceID int64) (int64, error) {
	return d.lookup(ctx, `SELECT c.group_id FROM invoices i JOIN companies c ON c.id = i.seller_company_id WHERE i.id = $1`, invoiceID)
}

// PoolGroup returns the group owning a cost pool.
func (d *CompanyDirectory) PoolGroup(ctx context.Context, poolID int64) (int64, error) {
	return d.lookup(ctx, `SELECT c.group_id FROM cost_pools p JOIN companies c ON c.id = p.company_id WHERE p.id = $1`, poolID)
}

// ListGroupIDs returns every group with at least one company.
func (d *CompanyDirectory) ListGroupIDs(ctx context.Context) ([]int64, error) {
	if d == nil || d.pool == nil {
		return nil, errors.New("company directory not initialised")
	}
	rows, err := d.pool.Query(ctx, `SELECT DISTINCT group_id FROM companies ORDER BY group_id`)
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

func (d *CompanyDirectory) lookup(ctx context.Context, query string, id int64) (int64, error) {
	if d == nil || d.pool == nil {
		return 0, errors.New("company directory not initialised")
	}
	var groupID int64
	if err := d.pool.QueryRow(ctx, query, id).Scan(&groupID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOutOfScope
		}
		return 0, fmt.Errorf("resolve group: %w", err)
	}
	return groupID, nil
}
