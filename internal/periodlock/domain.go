// Package periodlock keeps the per-company, per-period lock that gates
// period-scoped financial mutations.
package periodlock

import (
	"strings"
	"time"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// ReasonMonthClose is recorded when the month-close pipeline locks a period.
const ReasonMonthClose = "Month close completed"

var (
	// ErrPeriodLocked indicates the company's period no longer accepts mutations.
	ErrPeriodLocked = shared.Validationf("periodlock: period is locked")
	// ErrActorRequired indicates a lock change without an actor.
	ErrActorRequired = shared.Validationf("periodlock: actor required")
)

// Lock is the lock state of one (company, period).
type Lock struct {
	CompanyID int64      `json:"company_id"`
	Period    string     `json:"period"`
	Locked    bool       `json:"locked"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	LockedBy  string     `json:"locked_by,omitempty"`
	Reason    string     `json:"reason"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ChangeInput describes a lock or unlock request.
type ChangeInput struct {
	CompanyID int64
	Period    string
	Actor     string
	Reason    string
}

func (in ChangeInput) normalize() (ChangeInput, error) {
	if in.CompanyID <= 0 {
		return in, shared.Validationf("periodlock: company id required")
	}
	period, err := shared.NormalizePeriod(in.Period)
	if err != nil {
		return in, err
	}
	in.Period = period
	in.Actor = strings.TrimSpace(in.Actor)
	if in.Actor == "" {
		return in, ErrActorRequired
	}
	in.Reason = strings.TrimSpace(in.Reason)
	return in, nil
}
