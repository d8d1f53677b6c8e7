package costpool

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// PeriodGuard rejects mutations against locked periods.
type PeriodGuard interface {
	AssertNotLocked(ctx context.Context, companyID int64, period string) error
}

// Service creates and allocates cost pools.
type Service struct {
	repo   Repository
	locks  PeriodGuard
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs the cost pool service.
func NewService(repo Repository, locks PeriodGuard, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, locks: locks, audit: audit, logger: logger}
}

// CreateCostPool validates the request in full, then upserts the pool for
// (company, period) and replaces its lines, rule and weights in one
// transaction.
func (s *Service) CreateCostPool(ctx context.Context, in CreatePoolInput) (Pool, error) {
	lines, total, err := in.validate()
	if err != nil {
		return Pool{}, err
	}
	if err := s.locks.AssertNotLocked(ctx, in.CompanyID, in.Period); err != nil {
		return Pool{}, err
	}

	var poolID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.UpsertPool(ctx, in.CompanyID, in.Period, total)
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, id, lines); err != nil {
			return err
		}
		ruleID, err := tx.UpsertRule(ctx, id, in.Method)
		if err != nil {
			return err
		}
		if err := tx.ReplaceWeights(ctx, ruleID, in.Weights); err != nil {
			return err
		}
		poolID = id
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "costpool.create",
			Entity:   "cost_pool",
			EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{
				"company_id": in.CompanyID,
				"period":     in.Period,
				"total_cost": money.Format(total),
				"lines":      len(lines),
				"weights":    len(in.Weights),
			},
		})
	})
	if err != nil {
		return Pool{}, err
	}
	s.log().Info("cost pool saved",
		slog.Int64("pool_id", poolID),
		slog.Int64("company_id", in.CompanyID),
		slog.String("period", in.Period),
		slog.String("total_cost", money.Format(total)))
	return s.repo.GetPool(ctx, poolID)
}

// AllocateCostPool replaces the pool's allocations with round2(total ×
// weight) per recipient.
func (s *Service) AllocateCostPool(ctx context.Context, poolID int64, actor string) ([]Allocation, error) {
	var allocations []Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pool, err := tx.LockPool(ctx, poolID)
		if err != nil {
			return err
		}
		if pool.Rule == nil {
			return fmt.Errorf("%w: pool=%d", ErrRuleNotFound, poolID)
		}
		if pool.Rule.Method != MethodFixedSplit {
			return ErrUnsupportedMethod
		}
		if len(pool.Rule.Weights) == 0 {
			return ErrNoWeights
		}
		if err := s.locks.AssertNotLocked(ctx, pool.CompanyID, pool.Period); err != nil {
			return err
		}
		allocations = Split(pool.ID, pool.TotalCost, pool.Rule.Weights)
		if err := tx.ReplaceAllocations(ctx, pool.ID, allocations); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "costpool.allocate",
			Entity:   "cost_pool",
			EntityID: strconv.FormatInt(pool.ID, 10),
			Meta:     map[string]any{"recipients": len(allocations), "total_cost": money.Format(pool.TotalCost)},
		})
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("cost pool allocated", slog.Int64("pool_id", poolID), slog.Int("recipients", len(allocations)))
	return allocations, nil
}

// GetPool returns a pool with its lines and rule.
func (s *Service) GetPool(ctx context.Context, id int64) (Pool, error) {
	return s.repo.GetPool(ctx, id)
}

// AllocationsForPeriod returns the allocations of the company's pool for the
// period. A missing pool or an empty allocation set fails with
// ErrNoAllocations.
func (s *Service) AllocationsForPeriod(ctx context.Context, companyID int64, period string) ([]Allocation, error) {
	poolID, found, err := s.repo.FindPoolID(ctx, companyID, period)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: company %d period %s", ErrNoAllocations, companyID, period)
	}
	allocations, err := s.repo.ListAllocations(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("%w: company %d period %s", ErrNoAllocations, companyID, period)
	}
	return allocations, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "costpool"))
	}
	return slog.Default().With(slog.String("component", "costpool"))
}
