package monthclose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/periodlock"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// CostPools creates and allocates the period's pool.
type CostPools interface {
	CreateCostPool(ctx context.Context, in costpool.CreatePoolInput) (costpool.Pool, error)
	AllocateCostPool(ctx context.Context, poolID int64, actor string) ([]costpool.Allocation, error)
}

// InvoiceGenerator bills the allocated pool.
type InvoiceGenerator interface {
	GenerateIntercompanyInvoices(ctx context.Context, in invoicing.GenerateInput) (invoicing.GenerateResult, error)
}

// PeriodLocks guards and closes the period.
type PeriodLocks interface {
	AssertNotLocked(ctx context.Context, companyID int64, period string) error
	Lock(ctx context.Context, in periodlock.ChangeInput) (periodlock.Lock, error)
}

// Orchestrator sequences the month-close steps. Each step commits on its own;
// a failure stops the pipeline before the period is locked.
type Orchestrator struct {
	repo     Repository
	pools    CostPools
	invoices InvoiceGenerator
	locks    PeriodLocks
	runs     shared.RunLocker
	audit    shared.AuditRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(repo Repository, pools CostPools, invoices InvoiceGenerator, locks PeriodLocks, runs shared.RunLocker, audit shared.AuditRecorder, logger *slog.Logger) *Orchestrator {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if runs == nil {
		runs = shared.NewLocalLocker()
	}
	return &Orchestrator{
		repo:     repo,
		pools:    pools,
		invoices: invoices,
		locks:    locks,
		runs:     runs,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, mainly for tests.
func (o *Orchestrator) WithNow(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// Run executes the pipeline under the (holdco, period) run lock. A locked
// period is rejected before anything is written.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (Result, error) {
	if err := in.normalize(); err != nil {
		return Result{}, err
	}
	var result Result
	err := o.runs.Do(ctx, shared.RunLockKey(in.HoldcoID, in.Period), func(ctx context.Context) error {
		if err := o.locks.AssertNotLocked(ctx, in.HoldcoID, in.Period); err != nil {
			return err
		}
		run, err := o.repo.StartRun(ctx, in.HoldcoID, in.Period, in.LockedBy, o.now())
		if err != nil {
			return err
		}
		result.RunID = run.ID
		step, err := o.execute(ctx, in, &result)
		if err != nil {
			o.finish(ctx, run.ID, RunFailed, step, err)
			return &StepError{Step: step, Err: err}
		}
		o.finish(ctx, run.ID, RunCompleted, StepLock, nil)
		return nil
	})
	if err != nil {
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			o.log().Warn("month close failed",
				slog.Int64("holdco_id", in.HoldcoID),
				slog.String("period", in.Period),
				slog.String("step", string(stepErr.Step)),
				slog.Any("error", stepErr.Err))
		}
		return Result{}, err
	}
	o.log().Info("month close completed",
		slog.Int64("holdco_id", in.HoldcoID),
		slog.String("period", in.Period),
		slog.Int64("run_id", result.RunID),
		slog.Int("invoices_created", result.Invoices.Created),
		slog.Int("invoices_updated", result.Invoices.Updated))
	return result, nil
}

func (o *Orchestrator) execute(ctx context.Context, in RunInput, result *Result) (Step, error) {
	pool, err := o.pools.CreateCostPool(ctx, costpool.CreatePoolInput{
		CompanyID: in.HoldcoID,
		Period:    in.Period,
		Lines:     in.Lines,
		Method:    costpool.MethodFixedSplit,
		Weights:   in.Weights,
		Actor:     in.LockedBy,
	})
	if err != nil {
		return StepCostPool, err
	}
	result.Pool = pool

	allocations, err := o.pools.AllocateCostPool(ctx, pool.ID, in.LockedBy)
	if err != nil {
		return StepAllocate, err
	}
	result.Allocations = allocations

	invoices, err := o.invoices.GenerateIntercompanyInvoices(ctx, invoicing.GenerateInput{
		HoldcoID:  in.HoldcoID,
		Period:    in.Period,
		IssueDate: in.IssueDate,
		DueDays:   in.DueDays,
		Actor:     in.LockedBy,
	})
	if err != nil {
		return StepGenerate, err
	}
	result.Invoices = invoices

	lock, err := o.locks.Lock(ctx, periodlock.ChangeInput{
		CompanyID: in.HoldcoID,
		Period:    in.Period,
		Actor:     in.LockedBy,
		Reason:    periodlock.ReasonMonthClose,
	})
	if err != nil {
		return StepLock, err
	}
	result.Lock = lock
	err = o.audit.Record(ctx, shared.AuditLog{
		Actor:    in.LockedBy,
		Action:   "monthclose.run",
		Entity:   "company_period",
		EntityID: fmt.Sprintf("%d:%s", in.HoldcoID, in.Period),
		Meta: map[string]any{
			"run_id":           result.RunID,
			"pool_id":          pool.ID,
			"invoices_created": invoices.Created,
			"invoices_updated": invoices.Updated,
		},
	})
	if err != nil {
		o.log().Warn("audit month close", slog.Any("error", err))
	}
	return StepLock, nil
}

// finish records the outcome even when the request context is gone.
func (o *Orchestrator) finish(ctx context.Context, runID int64, status RunStatus, step Step, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := o.repo.FinishRun(context.WithoutCancel(ctx), runID, status, step, msg, o.now()); err != nil {
		o.log().Error("record month close run", slog.Int64("run_id", runID), slog.Any("error", err))
	}
}

// ListRuns returns the recorded runs for the company and period.
func (o *Orchestrator) ListRuns(ctx context.Context, companyID int64, period string) ([]Run, error) {
	if companyID <= 0 {
		return nil, ErrHoldcoRequired
	}
	period, err := shared.NormalizePeriod(period)
	if err != nil {
		return nil, err
	}
	runs, err := o.repo.ListRuns(ctx, companyID, period)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []Run{}
	}
	return runs, nil
}

func (o *Orchestrator) log() *slog.Logger {
	if o.logger != nil {
		return o.logger.With(slog.String("component", "monthclose"))
	}
	return slog.Default().With(slog.String("component", "monthclose"))
}
