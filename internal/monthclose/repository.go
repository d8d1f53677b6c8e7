package monthclose

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Repository persists close run records.
type Repository interface {
	StartRun(ctx context.Context, companyID int64, period, startedBy string, at time.Time) (Run, error)
	FinishRun(ctx context.Context, id int64, status RunStatus, step Step, errMsg string, at time.Time) error
	ListRuns(ctx context.Context, companyID int64, period string) ([]Run, error)
}

// PGRepository is the PostgreSQL implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// StartRun inserts a RUNNING record.
func (r *PGRepository) StartRun(ctx context.Context, companyID int64, period, startedBy string, at time.Time) (Run, error) {
	run := Run{CompanyID: companyID, Period: period, Status: RunRunning, StartedBy: startedBy, StartedAt: at}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO month_close_runs (company_id, period, status, started_by, started_at)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, companyID, period, string(RunRunning), startedBy, at).Scan(&run.ID)
	return run, err
}

// FinishRun records the outcome of a run.
func (r *PGRepository) FinishRun(ctx context.Context, id int64, status RunStatus, step Step, errMsg string, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE month_close_runs
SET status = $2, step = $3, error = $4, finished_at = $5 WHERE id = $1`, id, string(status), string(step), errMsg, at)
	return err
}

// ListRuns returns the runs for the company and period, newest first.
func (r *PGRepository) ListRuns(ctx context.Context, companyID int64, period string) ([]Run, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, company_id, period, status, step, error, started_by, started_at, finished_at
FROM month_close_runs WHERE company_id = $1 AND period = $2 ORDER BY started_at DESC, id DESC`, companyID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.CompanyID, &run.Period, &run.Status, &run.Step, &run.Error,
			&run.StartedBy, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
