// Package consol builds the consolidated profit and loss view for a group.
package consol

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// Section classifies a P&L line.
type Section string

const (
	SectionRevenue Section = "REVENUE"
	SectionCOGS    Section = "COGS"
	SectionExpense Section = "EXPENSE"
)

// Intercompany accounts dropped from the consolidated view unless requested.
const (
	accountICRevenue = "IC_REV"
	accountICExpense = "IC_EXP"
)

var ErrGroupRequired = shared.Validationf("consol: group id required")

// Filters selects the consolidated report.
type Filters struct {
	GroupID             int64
	Period              string
	IncludeIntercompany bool
}

// Balance is the debit and credit total of one account code across the
// group's companies.
type Balance struct {
	AccountCode string
	AccountName string
	AccountType string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Line is one account code in the report. Revenue lines carry credit minus
// debit; cost lines carry debit minus credit.
type Line struct {
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Section     Section         `json:"section"`
	Amount      decimal.Decimal `json:"amount"`
}

// Totals are the headline figures of the report.
type Totals struct {
	Revenue     decimal.Decimal `json:"revenue"`
	COGS        decimal.Decimal `json:"cogs"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	Expense     decimal.Decimal `json:"expense"`
	NetProfit   decimal.Decimal `json:"net_profit"`
}

// Report is the consolidated profit and loss statement.
type Report struct {
	GroupID             int64  `json:"group_id"`
	Period              string `json:"period"`
	IncludeIntercompany bool   `json:"include_intercompany"`
	Lines               []Line `json:"lines"`
	Totals              Totals `json:"totals"`
}

func sectionFor(accountType string) (Section, bool) {
	switch accountType {
	case "REVENUE":
		return SectionRevenue, true
	case "COGS":
		return SectionCOGS, true
	case "EXPENSE":
		return SectionExpense, true
	default:
		return "", false
	}
}
