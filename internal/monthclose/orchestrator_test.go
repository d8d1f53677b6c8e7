package monthclose

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/periodlock"
	"github.com/odyssey-erp/holdco/internal/shared"
)

const holdco int64 = 1

var (
	issueDate = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	fixedNow  = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return money.MustParse(s) }

type fixture struct {
	runs  *memoryRuns
	pools *poolStub
	gen   *generatorStub
	locks *lockStub
	lock  *shared.LocalLocker
	orch  *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		runs:  &memoryRuns{},
		pools: &poolStub{},
		gen:   &generatorStub{},
		locks: &lockStub{locked: map[string]periodlock.Lock{}},
		lock:  shared.NewLocalLocker(),
	}
	f.orch = NewOrchestrator(f.runs, f.pools, f.gen, f.locks, f.lock, nil, nil).WithNow(func() time.Time { return fixedNow })
	return f
}

func runInput() RunInput {
	return RunInput{
		HoldcoID: holdco,
		Period:   "2025-01",
		Lines: []costpool.LineInput{
			{Category: "Salaries", Amount: d("700000.00")},
			{Category: "Rent", Amount: d("300000.00")},
		},
		Weights: []costpool.Weight{
			{RecipientID: 2, Weight: d("0.6")},
			{RecipientID: 3, Weight: d("0.4")},
		},
		IssueDate: issueDate,
		DueDays:   30,
		LockedBy:  "controller",
	}
}

func TestRunCompletesPipelineAndLocksPeriod(t *testing.T) {
	f := newFixture()

	result, err := f.orch.Run(context.Background(), runInput())
	require.NoError(t, err)

	assert.True(t, result.Pool.TotalCost.Equal(d("1000000.00")))
	require.Len(t, result.Allocations, 2)
	assert.True(t, result.Allocations[0].AllocatedCost.Equal(d("600000.00")))
	assert.True(t, result.Allocations[1].AllocatedCost.Equal(d("400000.00")))
	assert.Equal(t, 2, result.Invoices.Created)
	assert.True(t, result.Lock.Locked)
	assert.Equal(t, periodlock.ReasonMonthClose, result.Lock.Reason)
	assert.Equal(t, "controller", result.Lock.LockedBy)

	require.Len(t, f.gen.calls, 1)
	assert.Equal(t, issueDate, f.gen.calls[0].IssueDate)
	assert.Equal(t, 30, f.gen.calls[0].DueDays)

	runs, err := f.orch.ListRuns(context.Background(), holdco, "2025-01")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, RunCompleted, runs[0].Status)
	assert.Equal(t, StepLock, runs[0].Step)
	assert.Empty(t, runs[0].Error)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestRunOnLockedPeriodCreatesNothing(t *testing.T) {
	f := newFixture()
	_, err := f.orch.Run(context.Background(), runInput())
	require.NoError(t, err)

	_, err = f.orch.Run(context.Background(), runInput())
	require.ErrorIs(t, err, periodlock.ErrPeriodLocked)
	assert.Len(t, f.pools.created, 1)
	assert.Len(t, f.gen.calls, 1)
	assert.Len(t, f.runs.runs, 1)
}

func TestRunStopsAtFailingStepAndLeavesPeriodUnlocked(t *testing.T) {
	f := newFixture()
	f.gen.err = shared.Configurationf("no active MANAGEMENT/COST_PLUS agreement for recipient company 3")

	_, err := f.orch.Run(context.Background(), runInput())
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepGenerate, stepErr.Step)
	assert.True(t, errors.Is(err, shared.ErrConfiguration))

	assert.NoError(t, f.locks.AssertNotLocked(context.Background(), holdco, "2025-01"))
	assert.Len(t, f.pools.created, 1, "earlier steps stay committed")

	runs, err := f.orch.ListRuns(context.Background(), holdco, "2025-01")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, StepGenerate, runs[0].Step)
	assert.Contains(t, runs[0].Error, "recipient company 3")

	f.gen.err = nil
	_, err = f.orch.Run(context.Background(), runInput())
	require.NoError(t, err)
	runs, err = f.orch.ListRuns(context.Background(), holdco, "2025-01")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunCompleted, runs[0].Status)
}

func TestRunReportsEarlyStepFailures(t *testing.T) {
	f := newFixture()
	f.pools.failAllocate = errInjected

	_, err := f.orch.Run(context.Background(), runInput())
	require.ErrorIs(t, err, errInjected)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepAllocate, stepErr.Step)
	assert.Empty(t, f.gen.calls)

	f = newFixture()
	f.pools.failCreate = costpool.ErrWeightSum
	_, err = f.orch.Run(context.Background(), runInput())
	require.ErrorIs(t, err, costpool.ErrWeightSum)
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StepCostPool, stepErr.Step)
}

func TestRunRejectsConcurrentRunForSamePeriod(t *testing.T) {
	f := newFixture()
	key := shared.RunLockKey(holdco, "2025-01")

	err := f.lock.Do(context.Background(), key, func(ctx context.Context) error {
		_, err := f.orch.Run(context.Background(), runInput())
		return err
	})
	require.ErrorIs(t, err, shared.ErrRunInProgress)
	assert.Empty(t, f.pools.created)

	err = f.lock.Do(context.Background(), key, func(ctx context.Context) error {
		_, err := f.orch.Run(ctx, runInput())
		return err
	})
	require.NoError(t, err)
}

func TestRunValidatesInput(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	in := runInput()
	in.LockedBy = " "
	_, err := f.orch.Run(ctx, in)
	require.ErrorIs(t, err, ErrLockedByRequired)

	in = runInput()
	in.IssueDate = time.Time{}
	_, err = f.orch.Run(ctx, in)
	require.ErrorIs(t, err, ErrIssueDateRequired)

	in = runInput()
	in.Period = "2025-1"
	_, err = f.orch.Run(ctx, in)
	require.ErrorIs(t, err, shared.ErrInvalidPeriod)
}
