// Package payments records intercompany payments, reconciles withheld tax
// against what the invoice lines expect and tracks WHT remittance.
package payments

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// DefaultTaxType applies when neither the line nor its agreement names one.
const DefaultTaxType = "SERVICES"

// whtTolerance is the absolute difference allowed between withheld and
// expected WHT.
var whtTolerance = decimal.NewFromInt(1)

var (
	ErrInvoiceNotFound     = shared.NotFoundf("payments: invoice not found")
	ErrInvoiceVoid         = shared.Validationf("payments: invoice is void")
	ErrMissingPeriod       = shared.Validationf("payments: invoice has no period")
	ErrCreditNote          = shared.Validationf("payments: credit notes cannot be paid")
	ErrMissingPayer        = shared.Validationf("payments: invoice has no buyer to withhold tax")
	ErrAmountRequired      = shared.Validationf("payments: amount paid must be positive")
	ErrNegativeWHT         = shared.Validationf("payments: withheld amount cannot be negative")
	ErrPaymentDateRequired = shared.Validationf("payments: payment date required")
	ErrWHTMismatch         = shared.Validationf("payments: withheld amount differs from expected by more than 1.00")
	ErrWHTZero             = shared.Validationf("payments: withheld amount cannot be zero when tax is expected")
	ErrNothingToRemit      = shared.NotFoundf("payments: no unremitted WHT credit notes match")
	ErrRemittanceInput     = shared.Validationf("payments: issuer, period, tax type, remittance date and receipt reference are required")
)

// Payment is an append-only payment against an invoice.
type Payment struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	PayerID     int64           `json:"payer_company_id,omitempty"`
	PayeeID     int64           `json:"payee_company_id"`
	PaymentDate time.Time       `json:"payment_date"`
	AmountPaid  decimal.Decimal `json:"amount_paid"`
	WHTWithheld decimal.Decimal `json:"wht_withheld"`
	Reference   string          `json:"reference,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// WHTCreditNote evidences tax withheld by the issuer on behalf of the
// beneficiary.
type WHTCreditNote struct {
	ID             int64           `json:"id"`
	PaymentID      int64           `json:"payment_id"`
	Period         string          `json:"period"`
	IssuerID       int64           `json:"issuer_company_id"`
	BeneficiaryID  int64           `json:"beneficiary_company_id"`
	TaxType        string          `json:"tax_type"`
	Amount         decimal.Decimal `json:"amount"`
	RemittanceDate *time.Time      `json:"remittance_date,omitempty"`
	ReceiptRef     string          `json:"receipt_ref,omitempty"`
}

// InvoiceSnapshot is the payment view of an invoice.
type InvoiceSnapshot struct {
	ID           int64
	Status       invoicing.Status
	SellerID     int64
	BuyerID      int64
	Period       string
	Total        decimal.Decimal
	IsCreditNote bool
	WHTLines     []WHTLine
}

// WHTLine is one invoice line's withholding with its resolved tax type.
type WHTLine struct {
	TaxType string
	Amount  decimal.Decimal
}

// TaxAmount is a total for one tax type.
type TaxAmount struct {
	TaxType string          `json:"tax_type"`
	Amount  decimal.Decimal `json:"amount"`
}

// ExpectedWHT groups positive line withholdings by tax type, ordered by tax
// type, and returns their total.
func ExpectedWHT(lines []WHTLine) ([]TaxAmount, decimal.Decimal) {
	byType := make(map[string]decimal.Decimal)
	for _, l := range lines {
		if !l.Amount.IsPositive() {
			continue
		}
		taxType := strings.TrimSpace(l.TaxType)
		if taxType == "" {
			taxType = DefaultTaxType
		}
		byType[taxType] = money.Add(byType[taxType], l.Amount)
	}
	out := make([]TaxAmount, 0, len(byType))
	total := decimal.Zero
	for taxType, amount := range byType {
		out = append(out, TaxAmount{TaxType: taxType, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaxType < out[j].TaxType })
	for _, t := range out {
		total = money.Add(total, t.Amount)
	}
	return out, total
}

// RecordPaymentInput describes a payment. A nil WHTWithheld defaults to the
// expected amount.
type RecordPaymentInput struct {
	InvoiceID   int64
	PaymentDate time.Time
	AmountPaid  decimal.Decimal
	WHTWithheld *decimal.Decimal
	Reference   string
	Notes       string
	Actor       string
}

// PaymentResult reports the payment and its effect on the invoice.
type PaymentResult struct {
	Payment       Payment          `json:"payment"`
	CreditNotes   []WHTCreditNote  `json:"wht_credit_notes"`
	ExpectedWHT   decimal.Decimal  `json:"expected_wht"`
	TotalPaid     decimal.Decimal  `json:"total_paid"`
	InvoiceStatus invoicing.Status `json:"invoice_status"`
}

// ScheduleRow is one tax type of an issuer's unremitted WHT.
type ScheduleRow struct {
	TaxType string          `json:"tax_type"`
	Total   decimal.Decimal `json:"total"`
	Count   int             `json:"count"`
}

// MarkRemittedInput selects the notes settled by one remittance.
type MarkRemittedInput struct {
	IssuerID       int64
	Period         string
	TaxType        string
	RemittanceDate time.Time
	ReceiptRef     string
	Actor          string
}
