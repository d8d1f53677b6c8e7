package consol

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository reads ledger balances for the P&L.
type Repository interface {
	AccountBalances(ctx context.Context, groupID int64, period string) ([]Balance, error)
}

// PGRepository is the PostgreSQL implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// AccountBalances totals P&L ledger entries per account code for every
// company in the group.
func (r *PGRepository) AccountBalances(ctx context.Context, groupID int64, period string) ([]Balance, error) {
	const query = `SELECT a.code, MIN(a.name), a.type, COALESCE(SUM(e.debit), 0), COALESCE(SUM(e.credit), 0)
FROM ledger_entries e
JOIN ledger_accounts a ON a.id = e.account_id
JOIN companies c ON c.id = e.company_id
WHERE c.group_id = $1 AND e.period = $2 AND a.type IN ('REVENUE', 'COGS', 'EXPENSE')
GROUP BY a.code, a.type
ORDER BY a.code`
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, groupID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.AccountCode, &b.AccountName, &b.AccountType, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
