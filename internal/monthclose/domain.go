// Package monthclose runs the month-close pipeline: cost pool, allocation,
// intercompany invoice generation and period lock.
package monthclose

import (
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/periodlock"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// Step names a pipeline stage.
type Step string

const (
	StepCostPool Step = "COST_POOL"
	StepAllocate Step = "ALLOCATE"
	StepGenerate Step = "GENERATE_INVOICES"
	StepLock     Step = "LOCK_PERIOD"
)

// RunStatus captures the lifecycle of a close run.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

var (
	ErrHoldcoRequired    = shared.Validationf("monthclose: holdco company required")
	ErrLockedByRequired  = shared.Validationf("monthclose: locked_by required")
	ErrIssueDateRequired = shared.Validationf("monthclose: issue date required")
)

// Run is the audit record of one pipeline execution.
type Run struct {
	ID         int64      `json:"id"`
	CompanyID  int64      `json:"company_id"`
	Period     string     `json:"period"`
	Status     RunStatus  `json:"status"`
	Step       Step       `json:"step,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedBy  string     `json:"started_by"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunInput carries everything the pipeline needs.
type RunInput struct {
	HoldcoID  int64                `json:"holdco_id"`
	Period    string               `json:"period"`
	Lines     []costpool.LineInput `json:"lines"`
	Weights   []costpool.Weight    `json:"weights"`
	IssueDate time.Time            `json:"issue_date"`
	DueDays   int                  `json:"due_days"`
	LockedBy  string               `json:"locked_by"`
}

func (in *RunInput) normalize() error {
	if in.HoldcoID <= 0 {
		return ErrHoldcoRequired
	}
	period, err := shared.NormalizePeriod(in.Period)
	if err != nil {
		return err
	}
	in.Period = period
	in.LockedBy = strings.TrimSpace(in.LockedBy)
	if in.LockedBy == "" {
		return ErrLockedByRequired
	}
	if in.IssueDate.IsZero() {
		return ErrIssueDateRequired
	}
	return nil
}

// Result reports what a completed run produced.
type Result struct {
	RunID       int64                    `json:"run_id"`
	Pool        costpool.Pool            `json:"pool"`
	Allocations []costpool.Allocation    `json:"allocations"`
	Invoices    invoicing.GenerateResult `json:"invoices"`
	Lock        periodlock.Lock          `json:"lock"`
}

// StepError reports the stage at which a run stopped.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("monthclose: step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
