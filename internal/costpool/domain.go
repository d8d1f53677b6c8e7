// Package costpool aggregates a holding company's shared costs per period and
// splits them across recipient subsidiaries.
package costpool

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// Method selects how a pool is split.
type Method string

// MethodFixedSplit splits the pool by configured weights.
const MethodFixedSplit Method = "FIXED_SPLIT"

// weightTolerance bounds how far weights may drift from 1.0.
var weightTolerance = decimal.RequireFromString("0.001")

var (
	ErrPoolNotFound       = shared.NotFoundf("costpool: cost pool not found")
	ErrRuleNotFound       = shared.NotFoundf("costpool: allocation rule not found")
	ErrNoLines            = shared.Validationf("costpool: at least one cost line required")
	ErrInvalidLine        = shared.Validationf("costpool: cost lines need a category and a non-negative amount")
	ErrUnsupportedMethod  = shared.Validationf("costpool: unsupported allocation method")
	ErrNoWeights          = shared.Validationf("costpool: allocation rule has no weights")
	ErrInvalidWeight      = shared.Validationf("costpool: weights need a recipient and a non-negative value")
	ErrDuplicateRecipient = shared.Validationf("costpool: recipient listed more than once")
	ErrWeightSum          = shared.Validationf("costpool: weights must sum to 1.0 within 0.001")
	ErrNoAllocations      = shared.Validationf("costpool: no allocations for period, run allocate first")
	ErrCompanyRequired    = shared.Validationf("costpool: company id required")
)

// Line is one shared cost category in a pool.
type Line struct {
	Position int             `json:"position"`
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Weight is a recipient's share of the pool.
type Weight struct {
	RecipientID int64           `json:"recipient_company_id"`
	Weight      decimal.Decimal `json:"weight"`
}

// Rule describes how a pool is split.
type Rule struct {
	ID      int64    `json:"id"`
	Method  Method   `json:"method"`
	Weights []Weight `json:"weights"`
}

// Pool is the period's aggregated shared cost.
type Pool struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Period    string          `json:"period"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Lines     []Line          `json:"lines"`
	Rule      *Rule           `json:"rule,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Allocation is the portion of a pool attributed to one recipient.
type Allocation struct {
	PoolID        int64           `json:"pool_id"`
	RecipientID   int64           `json:"recipient_company_id"`
	Weight        decimal.Decimal `json:"weight"`
	AllocatedCost decimal.Decimal `json:"allocated_cost"`
}

// LineInput is a requested cost line.
type LineInput struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// CreatePoolInput describes a cost pool to create or replace.
type CreatePoolInput struct {
	CompanyID int64
	Period    string
	Lines     []LineInput
	Method    Method
	Weights   []Weight
	Actor     string
}

// validate checks the whole request and returns the normalised lines and
// their rounded total.
func (in *CreatePoolInput) validate() ([]Line, decimal.Decimal, error) {
	if in.CompanyID <= 0 {
		return nil, decimal.Zero, ErrCompanyRequired
	}
	period, err := shared.NormalizePeriod(in.Period)
	if err != nil {
		return nil, decimal.Zero, err
	}
	in.Period = period
	if len(in.Lines) == 0 {
		return nil, decimal.Zero, ErrNoLines
	}
	lines := make([]Line, 0, len(in.Lines))
	total := decimal.Zero
	for i, l := range in.Lines {
		category := strings.TrimSpace(l.Category)
		if category == "" || l.Amount.IsNegative() {
			return nil, decimal.Zero, ErrInvalidLine
		}
		amount := money.Round2(l.Amount)
		lines = append(lines, Line{Position: i + 1, Category: category, Amount: amount})
		total = money.Add(total, amount)
	}
	if in.Method == "" {
		in.Method = MethodFixedSplit
	}
	if in.Method != MethodFixedSplit {
		return nil, decimal.Zero, ErrUnsupportedMethod
	}
	if err := ValidateWeights(in.Weights); err != nil {
		return nil, decimal.Zero, err
	}
	return lines, total, nil
}

// ValidateWeights checks a fixed-split weight set.
func ValidateWeights(weights []Weight) error {
	if len(weights) == 0 {
		return ErrNoWeights
	}
	seen := make(map[int64]struct{}, len(weights))
	sum := decimal.Zero
	for _, w := range weights {
		if w.RecipientID <= 0 || w.Weight.IsNegative() {
			return ErrInvalidWeight
		}
		if _, dup := seen[w.RecipientID]; dup {
			return ErrDuplicateRecipient
		}
		seen[w.RecipientID] = struct{}{}
		sum = sum.Add(w.Weight)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(weightTolerance) {
		return ErrWeightSum
	}
	return nil
}

// Split applies weights to total, rounding each share to two places.
func Split(poolID int64, total decimal.Decimal, weights []Weight) []Allocation {
	out := make([]Allocation, 0, len(weights))
	for _, w := range weights {
		out = append(out, Allocation{
			PoolID:        poolID,
			RecipientID:   w.RecipientID,
			Weight:        w.Weight,
			AllocatedCost: money.Mul(total, w.Weight),
		})
	}
	return out
}
