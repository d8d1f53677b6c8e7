// Package tax computes VAT returns and the per-company tax impact view.
package tax

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// ReturnStatus tracks the VAT return lifecycle.
type ReturnStatus string

const (
	ReturnGenerated ReturnStatus = "GENERATED"
	ReturnFiled     ReturnStatus = "FILED"
)

var (
	ErrReturnNotFound  = shared.NotFoundf("tax: VAT return not generated")
	ErrReturnFiled     = shared.Validationf("tax: VAT return already filed")
	ErrCompanyRequired = shared.Validationf("tax: company required")
	ErrPaymentRef      = shared.Validationf("tax: payment reference required")
)

// VATReturn is the VAT position of one company for one period.
type VATReturn struct {
	CompanyID   int64           `json:"company_id"`
	Period      string          `json:"period"`
	OutputVAT   decimal.Decimal `json:"output_vat"`
	InputVAT    decimal.Decimal `json:"input_vat"`
	NetPayable  decimal.Decimal `json:"net_vat_payable"`
	Status      ReturnStatus    `json:"status"`
	GeneratedAt time.Time       `json:"generated_at"`
	FiledAt     *time.Time      `json:"filed_at,omitempty"`
	PaymentRef  string          `json:"payment_ref,omitempty"`
}

// FileInput files a generated return.
type FileInput struct {
	CompanyID  int64
	Period     string
	PaymentRef string
	Actor      string
}

func (in FileInput) normalize() (FileInput, error) {
	if in.CompanyID <= 0 {
		return in, ErrCompanyRequired
	}
	period, err := shared.NormalizePeriod(in.Period)
	if err != nil {
		return in, err
	}
	in.Period = period
	in.PaymentRef = strings.TrimSpace(in.PaymentRef)
	if in.PaymentRef == "" {
		return in, ErrPaymentRef
	}
	return in, nil
}

// TaxTypeTotal sums WHT for one tax type.
type TaxTypeTotal struct {
	TaxType string          `json:"tax_type"`
	Amount  decimal.Decimal `json:"amount"`
}

// Impact is the read-only tax position of a company for a period.
type Impact struct {
	CompanyID        int64           `json:"company_id"`
	Period           string          `json:"period"`
	OutputVAT        decimal.Decimal `json:"output_vat"`
	InputVAT         decimal.Decimal `json:"input_vat"`
	NetVATPayable    decimal.Decimal `json:"net_vat_payable"`
	VATReturnStatus  ReturnStatus    `json:"vat_return_status,omitempty"`
	WHTWithheld      decimal.Decimal `json:"wht_withheld"`
	WHTWithheldByTax []TaxTypeTotal  `json:"wht_withheld_by_tax_type"`
	WHTCredits       decimal.Decimal `json:"wht_credits"`
	WHTCreditsByTax  []TaxTypeTotal  `json:"wht_credits_by_tax_type"`
	UnremittedNotes  int             `json:"unremitted_credit_notes"`
}
