package periodlock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository persists period locks. Reads and writes join the caller's
// transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context) error) error
	Get(ctx context.Context, companyID int64, period string) (Lock, bool, error)
	Upsert(ctx context.Context, lock Lock) (Lock, error)
}

// PGRepository is the PostgreSQL implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithTx runs fn inside a transaction, joining one already open on ctx.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, _ pgx.Tx) error {
		return fn(ctx)
	})
}

// Get loads the lock row; found=false when the period was never locked.
func (r *PGRepository) Get(ctx context.Context, companyID int64, period string) (Lock, bool, error) {
	const query = `SELECT company_id, period, locked, locked_at, COALESCE(locked_by, ''), reason, updated_at
FROM period_locks WHERE company_id = $1 AND period = $2`
	var l Lock
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, companyID, period).
		Scan(&l.CompanyID, &l.Period, &l.Locked, &l.LockedAt, &l.LockedBy, &l.Reason, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, err
	}
	return l, true, nil
}

// Upsert writes the lock state keyed by (company, period).
func (r *PGRepository) Upsert(ctx context.Context, lock Lock) (Lock, error) {
	const query = `INSERT INTO period_locks (company_id, period, locked, locked_at, locked_by, reason, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
ON CONFLICT (company_id, period) DO UPDATE SET
    locked = EXCLUDED.locked,
    locked_at = EXCLUDED.locked_at,
    locked_by = EXCLUDED.locked_by,
    reason = EXCLUDED.reason,
    updated_at = EXCLUDED.updated_at
RETURNING updated_at`
	if lock.UpdatedAt.IsZero() {
		lock.UpdatedAt = time.Now().UTC()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, lock.CompanyID, lock.Period, lock.Locked, lock.LockedAt, lock.LockedBy, lock.Reason, lock.UpdatedAt).
		Scan(&lock.UpdatedAt)
	if err != nil {
		return Lock{}, err
	}
	return lock, nil
}
