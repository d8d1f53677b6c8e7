package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/platform/db"
)

// Invalidator is notified once posted entries are committed.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Poster turns invoices into ledger entries. Each call replaces the full
// entry set of the document, so re-posting is idempotent.
type Poster struct {
	repo        Repository
	invalidator Invalidator
	logger      *slog.Logger
}

// NewPoster constructs the posting engine. invalidator may be nil.
func NewPoster(repo Repository, invalidator Invalidator, logger *slog.Logger) *Poster {
	return &Poster{repo: repo, invalidator: invalidator, logger: logger}
}

// PostInvoice posts one invoice or credit note, joining the caller's
// transaction when ctx carries one.
func (p *Poster) PostInvoice(ctx context.Context, invoiceID int64) (PostingResult, error) {
	var result PostingResult
	err := p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LoadDocument(ctx, invoiceID)
		if err != nil {
			return err
		}
		if doc.Status == documentVoid {
			return ErrVoidInvoice
		}
		if doc.Period == "" {
			return ErrMissingPeriod
		}
		entries, err := p.buildEntries(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := tx.ReplaceSourceEntries(ctx, SourceInvoice, doc.SourceRef(), entries); err != nil {
			return err
		}
		p.invalidateAfterCommit(ctx)
		result = PostingResult{InvoiceID: doc.ID, Entries: entries}
		return nil
	})
	if err != nil {
		return PostingResult{}, err
	}
	p.log().Debug("invoice posted", slog.Int64("invoice_id", invoiceID), slog.Int("entries", len(result.Entries)))
	return result, nil
}

// UnpostInvoice removes every entry attached to the invoice.
func (p *Poster) UnpostInvoice(ctx context.Context, invoiceID int64) error {
	return p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LoadDocument(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := tx.ReplaceSourceEntries(ctx, SourceInvoice, doc.SourceRef(), nil); err != nil {
			return err
		}
		p.invalidateAfterCommit(ctx)
		return nil
	})
}

// PostAllInvoicesForPeriod posts every non-void invoice of the period sold by
// a company of the group, one transaction per invoice in id order. The first
// failure stops the run and is reported as *BatchError.
func (p *Poster) PostAllInvoicesForPeriod(ctx context.Context, groupID int64, period string) (int, error) {
	ids, err := p.repo.ListPostableInvoiceIDs(ctx, groupID, period)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if _, err := p.PostInvoice(ctx, id); err != nil {
			p.log().Warn("period posting aborted",
				slog.Int64("group_id", groupID),
				slog.String("period", period),
				slog.Int64("invoice_id", id),
				slog.Any("error", err))
			return i, &BatchError{Posted: i, InvoiceID: id, Err: err}
		}
	}
	p.log().Info("period posted", slog.Int64("group_id", groupID), slog.String("period", period), slog.Int("invoices", len(ids)))
	return len(ids), nil
}

func (p *Poster) buildEntries(ctx context.Context, tx TxRepository, doc Document) ([]Entry, error) {
	net := money.Round2(doc.Subtotal)
	if net.IsZero() {
		return nil, nil
	}
	abs := net.Abs()
	base := Entry{
		Period:     doc.Period,
		EntryDate:  doc.IssueDate,
		Memo:       doc.memo(),
		SourceType: SourceInvoice,
		SourceRef:  doc.SourceRef(),
	}

	switch doc.Type {
	case documentIntercompany:
		if doc.BuyerID == 0 {
			return nil, ErrMissingBuyer
		}
		rev, err := resolve(ctx, tx, doc.SellerID, CodeICRevenue)
		if err != nil {
			return nil, err
		}
		exp, err := resolve(ctx, tx, doc.BuyerID, CodeICExpense)
		if err != nil {
			return nil, err
		}
		seller := base.on(rev)
		buyer := base.on(exp)
		if net.IsPositive() {
			seller.Credit, buyer.Debit = abs, abs
		} else {
			seller.Debit, buyer.Credit = abs, abs
		}
		return []Entry{seller, buyer}, nil
	case documentExternal:
		rev, err := resolve(ctx, tx, doc.SellerID, CodeSalesRevenue)
		if err != nil {
			return nil, err
		}
		seller := base.on(rev)
		if net.IsPositive() {
			seller.Credit = abs
		} else {
			seller.Debit = abs
		}
		return []Entry{seller}, nil
	default:
		return nil, errors.New("ledger: unknown invoice type " + doc.Type)
	}
}

func (e Entry) on(acct Account) Entry {
	e.CompanyID = acct.CompanyID
	e.AccountID = acct.ID
	e.AccountCode = acct.Code
	e.Debit = decimal.Zero
	e.Credit = decimal.Zero
	return e
}

func resolve(ctx context.Context, tx TxRepository, companyID int64, code string) (Account, error) {
	acct, found, err := tx.FindAccount(ctx, companyID, code)
	if err != nil {
		return Account{}, err
	}
	if !found {
		return Account{}, MissingAccountError(code, companyID)
	}
	return acct, nil
}

func (p *Poster) invalidateAfterCommit(ctx context.Context) {
	if p.invalidator == nil {
		return
	}
	db.AfterCommit(ctx, func(ctx context.Context) {
		if err := p.invalidator.Bump(context.WithoutCancel(ctx)); err != nil {
			p.log().Warn("invalidate reporting cache", slog.Any("error", err))
		}
	})
}

func (p *Poster) log() *slog.Logger {
	if p.logger != nil {
		return p.logger.With(slog.String("component", "ledger"))
	}
	return slog.Default().With(slog.String("component", "ledger"))
}
