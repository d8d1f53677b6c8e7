// Package invoicing turns cost allocations and intercompany agreements into
// invoices, issues and voids them, and raises credit notes against them.
package invoicing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// Type distinguishes intercompany invoices from sales to third parties.
type Type string

const (
	TypeIntercompany Type = "INTERCOMPANY"
	TypeExternal     Type = "EXTERNAL"
)

// AgreementType names the service an intercompany agreement covers.
type AgreementType string

const (
	AgreementManagement    AgreementType = "MANAGEMENT"
	AgreementIPLicense     AgreementType = "IP_LICENSE"
	AgreementProductSupply AgreementType = "PRODUCT_SUPPLY"
	AgreementLogistics     AgreementType = "LOGISTICS"
)

// PricingModel names how an agreement prices the service.
type PricingModel string

const (
	PricingCostPlus       PricingModel = "COST_PLUS"
	PricingFixedMonthly   PricingModel = "FIXED_MONTHLY"
	PricingRoyaltyPercent PricingModel = "ROYALTY_PERCENT"
)

var (
	ErrInvoiceNotFound    = shared.NotFoundf("invoicing: invoice not found")
	ErrInvoiceVoid        = shared.Validationf("invoicing: invoice is void")
	ErrMissingPeriod      = shared.Validationf("invoicing: invoice has no period")
	ErrInvalidTransition  = shared.Validationf("invoicing: status transition not allowed")
	ErrInvoiceHasPayments = shared.Validationf("invoicing: invoice has payments")
	ErrInvoiceHasCredits  = shared.Validationf("invoicing: invoice has active credit notes")
	ErrCreditNoteOfCredit = shared.Validationf("invoicing: credit notes cannot be credited")
	ErrReversalMode       = shared.Validationf("invoicing: choose full reversal or explicit line amounts")
	ErrUnknownLine        = shared.Validationf("invoicing: line does not belong to the original invoice")
	ErrCreditAmount       = shared.Validationf("invoicing: credit amount must be positive and not exceed the line net")
	ErrIssueDateRequired  = shared.Validationf("invoicing: issue date required")
	ErrDueDays            = shared.Validationf("invoicing: due days must be between 0 and 365")
	ErrHoldcoRequired     = shared.Validationf("invoicing: holdco company id required")
	ErrOriginalRequired   = shared.Validationf("invoicing: original invoice id required")
)

// Agreement is the read-only intercompany pricing contract between a
// provider and a recipient.
type Agreement struct {
	ID            int64
	ProviderID    int64
	RecipientID   int64
	Type          AgreementType
	PricingModel  PricingModel
	MarkupRate    decimal.Decimal
	FixedFee      decimal.Decimal
	VATApplies    bool
	VATRate       decimal.Decimal
	WHTApplies    bool
	WHTRate       decimal.Decimal
	WHTTaxType    string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// ActiveOn reports whether the agreement covers day; both bounds inclusive.
func (a Agreement) ActiveOn(day time.Time) bool {
	day = truncateDay(day)
	if day.Before(truncateDay(a.EffectiveFrom)) {
		return false
	}
	return a.EffectiveTo == nil || !day.After(truncateDay(*a.EffectiveTo))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Line is one invoice line. VAT and WHT rates are snapshotted so credit notes
// can re-derive amounts without the agreement.
type Line struct {
	ID          int64           `json:"id"`
	Position    int             `json:"position"`
	AgreementID *int64          `json:"agreement_id,omitempty"`
	Description string          `json:"description"`
	Net         decimal.Decimal `json:"net_amount"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	VAT         decimal.Decimal `json:"vat_amount"`
	WHTRate     decimal.Decimal `json:"wht_rate"`
	WHT         decimal.Decimal `json:"wht_amount"`
	WHTTaxType  string          `json:"wht_tax_type,omitempty"`
	Gross       decimal.Decimal `json:"gross_amount"`
}

// Invoice is an invoice or credit note with its lines.
type Invoice struct {
	ID               int64           `json:"id"`
	Type             Type            `json:"invoice_type"`
	Status           Status          `json:"status"`
	SellerID         int64           `json:"seller_company_id"`
	BuyerID          int64           `json:"buyer_company_id,omitempty"`
	Period           string          `json:"period,omitempty"`
	IssueDate        time.Time       `json:"issue_date"`
	DueDate          time.Time       `json:"due_date"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	VATAmount        decimal.Decimal `json:"vat_amount"`
	Total            decimal.Decimal `json:"total"`
	IsCreditNote     bool            `json:"is_credit_note"`
	RelatedInvoiceID int64           `json:"related_invoice_id,omitempty"`
	Reason           string          `json:"reason,omitempty"`
	Lines            []Line          `json:"lines"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// agreementLine prices one line from an agreement and a net amount.
func agreementLine(position int, description string, agreement Agreement, net decimal.Decimal) Line {
	id := agreement.ID
	line := Line{
		Position:    position,
		AgreementID: &id,
		Description: description,
		Net:         money.Round2(net),
		VATRate:     decimal.Zero,
		VAT:         decimal.Zero,
		WHTRate:     decimal.Zero,
		WHT:         decimal.Zero,
	}
	if agreement.VATApplies {
		line.VATRate = agreement.VATRate
		line.VAT = money.Mul(line.Net, agreement.VATRate)
	}
	if agreement.WHTApplies {
		line.WHTRate = agreement.WHTRate
		line.WHT = money.Mul(line.Net, agreement.WHTRate)
		line.WHTTaxType = agreement.WHTTaxType
	}
	line.Gross = money.Add(line.Net, line.VAT)
	return line
}

// applyTotals recomputes header totals from the lines, rounding per add.
func (inv *Invoice) applyTotals() {
	inv.Subtotal, inv.VATAmount, inv.Total = decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range inv.Lines {
		inv.Subtotal = money.Add(inv.Subtotal, l.Net)
		inv.VATAmount = money.Add(inv.VATAmount, l.VAT)
		inv.Total = money.Add(inv.Total, l.Gross)
	}
}

// GenerateInput describes an invoice generation run.
type GenerateInput struct {
	HoldcoID  int64
	Period    string
	IssueDate time.Time
	DueDays   int
	Actor     string
}

func (in *GenerateInput) normalize() error {
	if in.HoldcoID <= 0 {
		return ErrHoldcoRequired
	}
	period, err := shared.NormalizePeriod(in.Period)
	if err != nil {
		return err
	}
	in.Period = period
	if in.IssueDate.IsZero() {
		return ErrIssueDateRequired
	}
	in.IssueDate = truncateDay(in.IssueDate)
	if in.DueDays < 0 || in.DueDays > 365 {
		return ErrDueDays
	}
	return nil
}

// GenerateResult summarises a generation run.
type GenerateResult struct {
	Period   string    `json:"period"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Invoices []Invoice `json:"invoices"`
}

// CreditNoteInput describes a credit note against an issued invoice. Lines
// maps original line ids to the net amount to credit.
type CreditNoteInput struct {
	OriginalInvoiceID int64
	IssueDate         time.Time
	Reason            string
	FullReversal      bool
	Lines             map[int64]decimal.Decimal
	Actor             string
}

// ListFilter selects invoices for listing.
type ListFilter struct {
	CompanyID int64
	Period    string
	Page      int
	PerPage   int
}
