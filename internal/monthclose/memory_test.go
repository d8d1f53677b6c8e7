package monthclose

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/periodlock"
)

var errInjected = errors.New("injected failure")

type memoryRuns struct {
	runs   []Run
	nextID int64
}

func (m *memoryRuns) StartRun(_ context.Context, companyID int64, period, startedBy string, at time.Time) (Run, error) {
	m.nextID++
	run := Run{ID: m.nextID, CompanyID: companyID, Period: period, Status: RunRunning, StartedBy: startedBy, StartedAt: at}
	m.runs = append(m.runs, run)
	return run, nil
}

func (m *memoryRuns) FinishRun(_ context.Context, id int64, status RunStatus, step Step, errMsg string, at time.Time) error {
	for i := range m.runs {
		if m.runs[i].ID == id {
			m.runs[i].Status, m.runs[i].Step, m.runs[i].Error = status, step, errMsg
			m.runs[i].FinishedAt = &at
			return nil
		}
	}
	return fmt.Errorf("run %d not found", id)
}

func (m *memoryRuns) ListRuns(_ context.Context, companyID int64, period string) ([]Run, error) {
	var out []Run
	for _, run := range m.runs {
		if run.CompanyID == companyID && run.Period == period {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type poolStub struct {
	created      []costpool.CreatePoolInput
	allocated    []int64
	failCreate   error
	failAllocate error
}

func (p *poolStub) CreateCostPool(_ context.Context, in costpool.CreatePoolInput) (costpool.Pool, error) {
	if p.failCreate != nil {
		return costpool.Pool{}, p.failCreate
	}
	p.created = append(p.created, in)
	return costpool.Pool{ID: int64(len(p.created)), CompanyID: in.CompanyID, Period: in.Period, TotalCost: lineTotal(in.Lines)}, nil
}

func (p *poolStub) AllocateCostPool(_ context.Context, poolID int64, _ string) ([]costpool.Allocation, error) {
	if p.failAllocate != nil {
		return nil, p.failAllocate
	}
	p.allocated = append(p.allocated, poolID)
	in := p.created[poolID-1]
	return costpool.Split(poolID, lineTotal(in.Lines), in.Weights), nil
}

func lineTotal(lines []costpool.LineInput) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = money.Add(total, l.Amount)
	}
	return total
}

type generatorStub struct {
	calls []invoicing.GenerateInput
	err   error
}

func (g *generatorStub) GenerateIntercompanyInvoices(_ context.Context, in invoicing.GenerateInput) (invoicing.GenerateResult, error) {
	if g.err != nil {
		return invoicing.GenerateResult{}, g.err
	}
	g.calls = append(g.calls, in)
	return invoicing.GenerateResult{Period: in.Period, Created: 2}, nil
}

type lockStub struct {
	locked map[string]periodlock.Lock
}

func (l *lockStub) AssertNotLocked(_ context.Context, companyID int64, period string) error {
	if l.locked[fmt.Sprintf("%d:%s", companyID, period)].Locked {
		return periodlock.ErrPeriodLocked
	}
	return nil
}

func (l *lockStub) Lock(_ context.Context, in periodlock.ChangeInput) (periodlock.Lock, error) {
	lock := periodlock.Lock{CompanyID: in.CompanyID, Period: in.Period, Locked: true, LockedBy: in.Actor, Reason: in.Reason}
	l.locked[fmt.Sprintf("%d:%s", in.CompanyID, in.Period)] = lock
	return lock, nil
}
