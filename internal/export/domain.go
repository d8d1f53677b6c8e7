// Package export renders ledger and invoicing data as flat tables for
// downstream accounting systems.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// Kind names an export table.
type Kind string

const (
	KindJournalEntries       Kind = "journal_entries"
	KindInvoices             Kind = "invoices"
	KindCreditNotes          Kind = "credit_notes"
	KindIntercompanyInvoices Kind = "intercompany_invoices"
	KindPayments             Kind = "payments"
)

// Kinds lists every export in the order period bundles are written.
var Kinds = []Kind{KindJournalEntries, KindInvoices, KindCreditNotes, KindIntercompanyInvoices, KindPayments}

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

var (
	ErrUnknownKind   = shared.NotFoundf("export: unknown export kind")
	ErrUnknownFormat = shared.Validationf("export: format must be json or csv")
	ErrGroupRequired = shared.Validationf("export: group identity required")
)

// ParseKind validates an export kind name.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, k := range Kinds {
		if k == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

// ParseFormat validates an output format, defaulting to JSON.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
}

// Filter scopes an export. CompanyID zero exports every company in the group.
type Filter struct {
	GroupID   int64
	Period    string
	CompanyID int64
}

// InvoiceScope selects which invoices an invoice export covers.
type InvoiceScope int

const (
	ScopeInvoices InvoiceScope = iota
	ScopeCreditNotes
	ScopeIntercompany
)

// JournalLine is one ledger entry with its account.
type JournalLine struct {
	EntryID     int64
	CompanyID   int64
	Period      string
	EntryDate   time.Time
	AccountCode string
	AccountName string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Memo        string
	SourceType  string
	SourceRef   string
}

// InvoiceHeader carries the invoice-level columns.
type InvoiceHeader struct {
	ID               int64
	Type             string
	Status           string
	SellerID         int64
	BuyerID          *int64
	Period           *string
	IssueDate        time.Time
	DueDate          time.Time
	Subtotal         decimal.Decimal
	VATAmount        decimal.Decimal
	Total            decimal.Decimal
	IsCreditNote     bool
	RelatedInvoiceID *int64
	Reason           string
}

// InvoiceLineDetail carries the line-level columns.
type InvoiceLineDetail struct {
	Position    int
	AgreementID *int64
	Description string
	NetAmount   decimal.Decimal
	VATRate     decimal.Decimal
	VATAmount   decimal.Decimal
	WHTRate     decimal.Decimal
	WHTAmount   decimal.Decimal
	WHTTaxType  *string
	GrossAmount decimal.Decimal
}

// InvoiceLine is one invoice line joined to its header. Line is nil for an
// invoice without lines.
type InvoiceLine struct {
	Header InvoiceHeader
	Line   *InvoiceLineDetail
}

// PaymentLine is one recorded payment.
type PaymentLine struct {
	ID          int64
	InvoiceID   int64
	PayerID     *int64
	PayeeID     int64
	PaymentDate time.Time
	AmountPaid  decimal.Decimal
	WHTWithheld decimal.Decimal
	Reference   string
	Notes       string
}

// Table is a rendered export. Cells hold string, int64, bool or nil.
type Table struct {
	Kind    Kind     `json:"kind"`
	Period  string   `json:"period"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"-"`
}
