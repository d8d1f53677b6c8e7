package invoicing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the closed set of invoice states.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusIssued   Status = "ISSUED"
	StatusPartPaid Status = "PART_PAID"
	StatusPaid     Status = "PAID"
	StatusVoid     Status = "VOID"
)

var transitions = map[Status][]Status{
	StatusDraft:    {StatusIssued, StatusPartPaid, StatusPaid, StatusVoid},
	StatusIssued:   {StatusPartPaid, StatusPaid, StatusVoid},
	StatusPartPaid: {StatusPaid},
	StatusPaid:     nil,
	StatusVoid:     nil,
}

// ParseStatus validates a stored or requested status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := transitions[s]; !ok {
		return "", fmt.Errorf("invoicing: unknown status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed. Staying
// in the same state is always allowed except for VOID, which is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s == StatusVoid {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Open reports whether generation may still update the invoice in place.
func (s Status) Open() bool {
	return s == StatusDraft || s == StatusIssued || s == StatusPartPaid
}

// Posted reports whether the invoice carries ledger entries.
func (s Status) Posted() bool {
	return s == StatusIssued || s == StatusPartPaid || s == StatusPaid
}

// AfterPayment derives the status from the cumulative amount paid. VOID is
// never produced here.
func (s Status) AfterPayment(paid, total decimal.Decimal) Status {
	switch {
	case s == StatusVoid:
		return s
	case paid.GreaterThanOrEqual(total) && paid.IsPositive():
		return StatusPaid
	case paid.IsPositive():
		return StatusPartPaid
	default:
		return s
	}
}

// UnmarshalJSON rejects unknown statuses.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
