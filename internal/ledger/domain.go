// Package ledger holds the per-company chart of accounts and turns invoices
// into balanced double-entry movements.
package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// AccountType classifies ledger accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeCOGS      AccountType = "COGS"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Well-known account codes every posting company must configure.
const (
	CodeICRevenue    = "IC_REV"
	CodeICExpense    = "IC_EXP"
	CodeSalesRevenue = "REV_SALES"
)

// SourceInvoice tags entries produced from invoices and credit notes.
const SourceInvoice = "INVOICE"

// Stored invoice values the posting rules depend on.
const (
	documentIntercompany = "INTERCOMPANY"
	documentExternal     = "EXTERNAL"
	documentVoid         = "VOID"
)

var (
	// ErrInvoiceNotFound indicates the document to post does not exist.
	ErrInvoiceNotFound = shared.NotFoundf("ledger: invoice not found")
	// ErrVoidInvoice indicates an attempt to post a void document.
	ErrVoidInvoice = shared.Validationf("ledger: void invoices cannot be posted")
	// ErrMissingPeriod indicates a document without an accounting period.
	ErrMissingPeriod = shared.Validationf("ledger: invoice has no period")
	// ErrMissingBuyer indicates an intercompany document without a buyer.
	ErrMissingBuyer = shared.Validationf("ledger: intercompany invoice has no buyer")
)

// Account is one entry of a company's chart of accounts.
type Account struct {
	ID        int64       `json:"id"`
	CompanyID int64       `json:"company_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
}

// MissingAccountError is returned when a required account code is not
// configured for a company.
func MissingAccountError(code string, companyID int64) error {
	return shared.Configurationf("ledger: account %s not configured for company %d", code, companyID)
}

// Entry is one ledger movement. Exactly one of Debit and Credit is positive.
type Entry struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	Period      string          `json:"period"`
	EntryDate   time.Time       `json:"entry_date"`
	AccountID   int64           `json:"account_id"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Memo        string          `json:"memo"`
	SourceType  string          `json:"source_type"`
	SourceRef   string          `json:"source_ref"`
}

// Document is the posting view of an invoice or credit note.
type Document struct {
	ID               int64
	Type             string
	Status           string
	SellerID         int64
	BuyerID          int64
	Period           string
	IssueDate        time.Time
	Subtotal         decimal.Decimal
	IsCreditNote     bool
	RelatedInvoiceID int64
}

// SourceRef is the back-pointer stored on entries for a document.
func (d Document) SourceRef() string {
	return strconv.FormatInt(d.ID, 10)
}

func (d Document) memo() string {
	if d.IsCreditNote {
		return fmt.Sprintf("Credit note %d for invoice %d", d.ID, d.RelatedInvoiceID)
	}
	if d.Type == documentExternal {
		return fmt.Sprintf("Sales invoice %d", d.ID)
	}
	return fmt.Sprintf("Intercompany invoice %d", d.ID)
}

// PostingResult summarises a posted document.
type PostingResult struct {
	InvoiceID int64   `json:"invoice_id"`
	Entries   []Entry `json:"entries"`
}

// BatchError reports where a period posting run stopped.
type BatchError struct {
	Posted    int
	InvoiceID int64
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("ledger: posting aborted at invoice %d after %d posted: %v", e.InvoiceID, e.Posted, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }
