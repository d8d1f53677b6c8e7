package periodlock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// Service exposes lock assertions and transitions.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the period lock service.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, mainly for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Get returns the lock state; a never-locked period reads as unlocked.
func (s *Service) Get(ctx context.Context, companyID int64, period string) (Lock, error) {
	period, err := shared.NormalizePeriod(period)
	if err != nil {
		return Lock{}, err
	}
	lock, found, err := s.repo.Get(ctx, companyID, period)
	if err != nil {
		return Lock{}, err
	}
	if !found {
		return Lock{CompanyID: companyID, Period: period}, nil
	}
	return lock, nil
}

// AssertNotLocked fails with ErrPeriodLocked when the period is locked.
func (s *Service) AssertNotLocked(ctx context.Context, companyID int64, period string) error {
	lock, err := s.Get(ctx, companyID, period)
	if err != nil {
		return err
	}
	if lock.Locked {
		return fmt.Errorf("%w: company %d period %s", ErrPeriodLocked, companyID, lock.Period)
	}
	return nil
}

// Lock marks the period locked. Locking an already locked period refreshes
// its audit metadata.
func (s *Service) Lock(ctx context.Context, in ChangeInput) (Lock, error) {
	in, err := in.normalize()
	if err != nil {
		return Lock{}, err
	}
	now := s.now()
	return s.change(ctx, "period.lock", in, Lock{
		CompanyID: in.CompanyID,
		Period:    in.Period,
		Locked:    true,
		LockedAt:  &now,
		LockedBy:  in.Actor,
		Reason:    in.Reason,
		UpdatedAt: now,
	})
}

// Unlock reopens the period.
func (s *Service) Unlock(ctx context.Context, in ChangeInput) (Lock, error) {
	in, err := in.normalize()
	if err != nil {
		return Lock{}, err
	}
	return s.change(ctx, "period.unlock", in, Lock{
		CompanyID: in.CompanyID,
		Period:    in.Period,
		Locked:    false,
		Reason:    in.Reason,
		UpdatedAt: s.now(),
	})
}

// change writes the lock row and its audit record in one transaction.
func (s *Service) change(ctx context.Context, action string, in ChangeInput, next Lock) (Lock, error) {
	var saved Lock
	err := s.repo.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if saved, err = s.repo.Upsert(ctx, next); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   action,
			Entity:   "period_lock",
			EntityID: fmt.Sprintf("%d:%s", in.CompanyID, in.Period),
			Meta:     map[string]any{"reason": in.Reason},
			At:       s.now(),
		})
	})
	if err != nil {
		s.log().Error("period lock change failed", slog.String("action", action), slog.Any("error", err))
		return Lock{}, err
	}
	return saved, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "periodlock"))
	}
	return slog.Default().With(slog.String("component", "periodlock"))
}
