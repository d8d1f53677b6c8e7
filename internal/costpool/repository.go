package costpool

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository exposes cost pool persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPool(ctx context.Context, id int64) (Pool, error)
	FindPoolID(ctx context.Context, companyID int64, period string) (int64, bool, error)
	ListAllocations(ctx context.Context, poolID int64) ([]Allocation, error)
}

// TxRepository holds the replace-set writes of a pool run.
type TxRepository interface {
	UpsertPool(ctx context.Context, companyID int64, period string, total decimal.Decimal) (int64, error)
	ReplaceLines(ctx context.Context, poolID int64, lines []Line) error
	UpsertRule(ctx context.Context, poolID int64, method Method) (int64, error)
	ReplaceWeights(ctx context.Context, ruleID int64, weights []Weight) error
	LockPool(ctx context.Context, poolID int64) (Pool, error)
	ReplaceAllocations(ctx context.Context, poolID int64, allocations []Allocation) error
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

// GetPool loads a pool with its lines and rule.
func (r *PGRepository) GetPool(ctx context.Context, id int64) (Pool, error) {
	return loadPool(ctx, db.Conn(ctx, r.pool), id, false)
}

// FindPoolID returns the pool id for (company, period).
func (r *PGRepository) FindPoolID(ctx context.Context, companyID int64, period string) (int64, bool, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id FROM cost_pools WHERE company_id = $1 AND period = $2`, companyID, period).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ListAllocations returns the pool's allocations ordered by recipient.
func (r *PGRepository) ListAllocations(ctx context.Context, poolID int64) ([]Allocation, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT pool_id, recipient_company_id, weight, allocated_cost
FROM cost_allocations WHERE pool_id = $1 ORDER BY recipient_company_id`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	allocations := make([]Allocation, 0)
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.PoolID, &a.RecipientID, &a.Weight, &a.AllocatedCost); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (t *txRepository) UpsertPool(ctx context.Context, companyID int64, period string, total decimal.Decimal) (int64, error) {
	const query = `INSERT INTO cost_pools (company_id, period, total_cost, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (company_id, period) DO UPDATE SET total_cost = EXCLUDED.total_cost, updated_at = NOW()
RETURNING id`
	var id int64
	if err := t.tx.QueryRow(ctx, query, companyID, period, total).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert cost pool: %w", err)
	}
	return id, nil
}

// ReplaceLines swaps the full line set of a pool.
func (t *txRepository) ReplaceLines(ctx context.Context, poolID int64, lines []Line) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cost_pool_lines WHERE pool_id = $1`, poolID); err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := t.tx.Exec(ctx, `INSERT INTO cost_pool_lines (pool_id, position, category, amount) VALUES ($1, $2, $3, $4)`,
			poolID, l.Position, l.Category, l.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) UpsertRule(ctx context.Context, poolID int64, method Method) (int64, error) {
	const query = `INSERT INTO allocation_rules (pool_id, method) VALUES ($1, $2)
ON CONFLICT (pool_id) DO UPDATE SET method = EXCLUDED.method
RETURNING id`
	var id int64
	if err := t.tx.QueryRow(ctx, query, poolID, string(method)).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert allocation rule: %w", err)
	}
	return id, nil
}

// ReplaceWeights swaps the full weight set of a rule.
func (t *txRepository) ReplaceWeights(ctx context.Context, ruleID int64, weights []Weight) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM allocation_weights WHERE rule_id = $1`, ruleID); err != nil {
		return err
	}
	for _, w := range weights {
		if _, err := t.tx.Exec(ctx, `INSERT INTO allocation_weights (rule_id, recipient_company_id, weight) VALUES ($1, $2, $3)`,
			ruleID, w.RecipientID, w.Weight); err != nil {
			return err
		}
	}
	return nil
}

// LockPool loads the pool and holds its row until the transaction ends.
func (t *txRepository) LockPool(ctx context.Context, poolID int64) (Pool, error) {
	return loadPool(ctx, t.tx, poolID, true)
}

// ReplaceAllocations swaps the full allocation set of a pool.
func (t *txRepository) ReplaceAllocations(ctx context.Context, poolID int64, allocations []Allocation) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cost_allocations WHERE pool_id = $1`, poolID); err != nil {
		return err
	}
	for _, a := range allocations {
		if _, err := t.tx.Exec(ctx, `INSERT INTO cost_allocations (pool_id, recipient_company_id, weight, allocated_cost) VALUES ($1, $2, $3, $4)`,
			poolID, a.RecipientID, a.Weight, a.AllocatedCost); err != nil {
			return err
		}
	}
	return nil
}

func loadPool(ctx context.Context, q db.Querier, id int64, forUpdate bool) (Pool, error) {
	query := `SELECT id, company_id, period, total_cost, updated_at FROM cost_pools WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var p Pool
	err := q.QueryRow(ctx, query, id).Scan(&p.ID, &p.CompanyID, &p.Period, &p.TotalCost, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pool{}, fmt.Errorf("%w: id=%d", ErrPoolNotFound, id)
	}
	if err != nil {
		return Pool{}, err
	}

	rows, err := q.Query(ctx, `SELECT position, category, amount FROM cost_pool_lines WHERE pool_id = $1 ORDER BY position`, id)
	if err != nil {
		return Pool{}, err
	}
	p.Lines = make([]Line, 0)
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.Position, &l.Category, &l.Amount); err != nil {
			rows.Close()
			return Pool{}, err
		}
		p.Lines = append(p.Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Pool{}, err
	}

	var rule Rule
	err = q.QueryRow(ctx, `SELECT id, method FROM allocation_rules WHERE pool_id = $1`, id).Scan(&rule.ID, &rule.Method)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return Pool{}, err
	}
	wrows, err := q.Query(ctx, `SELECT recipient_company_id, weight FROM allocation_weights WHERE rule_id = $1 ORDER BY id`, rule.ID)
	if err != nil {
		return Pool{}, err
	}
	defer wrows.Close()
	rule.Weights = make([]Weight, 0)
	for wrows.Next() {
		var w Weight
		if err := wrows.Scan(&w.RecipientID, &w.Weight); err != nil {
			return Pool{}, err
		}
		rule.Weights = append(rule.Weights, w)
	}
	if err := wrows.Err(); err != nil {
		return Pool{}, err
	}
	p.Rule = &rule
	return p, nil
}
