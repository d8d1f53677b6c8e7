package costpool

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

type memoryState struct {
	pools       map[int64]Pool
	allocations map[int64][]Allocation
}

type memoryRepo struct {
	state  memoryState
	nextID int64
	failOn string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{pools: make(map[int64]Pool), allocations: make(map[int64][]Allocation)}}
}

func (s memoryState) clone() memoryState {
	out := memoryState{pools: make(map[int64]Pool, len(s.pools)), allocations: make(map[int64][]Allocation, len(s.allocations))}
	for id, p := range s.pools {
		p.Lines = append([]Line(nil), p.Lines...)
		if p.Rule != nil {
			rule := *p.Rule
			rule.Weights = append([]Weight(nil), rule.Weights...)
			p.Rule = &rule
		}
		out.pools[id] = p
	}
	for id, a := range s.allocations {
		out.allocations[id] = append([]Allocation(nil), a...)
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.state.clone()
	if err := fn(ctx, r); err != nil {
		r.state = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetPool(_ context.Context, id int64) (Pool, error) {
	p, ok := r.state.pools[id]
	if !ok {
		return Pool{}, fmt.Errorf("%w: id=%d", ErrPoolNotFound, id)
	}
	return p, nil
}

func (r *memoryRepo) FindPoolID(_ context.Context, companyID int64, period string) (int64, bool, error) {
	for id, p := range r.state.pools {
		if p.CompanyID == companyID && p.Period == period {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (r *memoryRepo) ListAllocations(_ context.Context, poolID int64) ([]Allocation, error) {
	out := append([]Allocation(nil), r.state.allocations[poolID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out, nil
}

func (r *memoryRepo) UpsertPool(ctx context.Context, companyID int64, period string, total decimal.Decimal) (int64, error) {
	id, found, _ := r.FindPoolID(ctx, companyID, period)
	if !found {
		r.nextID++
		id = r.nextID
	}
	p := r.state.pools[id]
	p.ID, p.CompanyID, p.Period, p.TotalCost = id, companyID, period, total
	r.state.pools[id] = p
	return id, nil
}

func (r *memoryRepo) ReplaceLines(_ context.Context, poolID int64, lines []Line) error {
	p := r.state.pools[poolID]
	p.Lines = append([]Line(nil), lines...)
	r.state.pools[poolID] = p
	return nil
}

func (r *memoryRepo) UpsertRule(_ context.Context, poolID int64, method Method) (int64, error) {
	p := r.state.pools[poolID]
	if p.Rule == nil {
		p.Rule = &Rule{ID: poolID}
	}
	p.Rule.Method = method
	r.state.pools[poolID] = p
	return p.Rule.ID, nil
}

func (r *memoryRepo) ReplaceWeights(_ context.Context, ruleID int64, weights []Weight) error {
	if r.failOn == "weights" {
		return fmt.Errorf("insert weights: connection reset")
	}
	p := r.state.pools[ruleID]
	p.Rule.Weights = append([]Weight(nil), weights...)
	r.state.pools[ruleID] = p
	return nil
}

func (r *memoryRepo) LockPool(ctx context.Context, poolID int64) (Pool, error) {
	return r.GetPool(ctx, poolID)
}

func (r *memoryRepo) ReplaceAllocations(_ context.Context, poolID int64, allocations []Allocation) error {
	r.state.allocations[poolID] = append([]Allocation(nil), allocations...)
	return nil
}

type lockStub struct {
	locked map[string]bool
}

func (l *lockStub) AssertNotLocked(_ context.Context, companyID int64, period string) error {
	if l != nil && l.locked[fmt.Sprintf("%d:%s", companyID, period)] {
		return fmt.Errorf("period locked: company %d period %s", companyID, period)
	}
	return nil
}
