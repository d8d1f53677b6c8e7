package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// CreditNoteService raises credit notes against existing invoices.
type CreditNoteService struct {
	repo   Repository
	locks  PeriodGuard
	poster Poster
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewCreditNoteService constructs the credit note service.
func NewCreditNoteService(repo Repository, locks PeriodGuard, poster Poster, audit shared.AuditRecorder, logger *slog.Logger) *CreditNoteService {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &CreditNoteService{repo: repo, locks: locks, poster: poster, audit: audit, logger: logger}
}

// CreateCreditNote creates an ISSUED credit note mirroring the original's
// lines with negated amounts and posts it in the same transaction. Partial
// credits reuse each original line's VAT and WHT rates.
func (s *CreditNoteService) CreateCreditNote(ctx context.Context, in CreditNoteInput) (Invoice, error) {
	if in.OriginalInvoiceID <= 0 {
		return Invoice{}, ErrOriginalRequired
	}
	if in.IssueDate.IsZero() {
		return Invoice{}, ErrIssueDateRequired
	}
	if in.FullReversal == (len(in.Lines) > 0) {
		return Invoice{}, ErrReversalMode
	}
	in.IssueDate = truncateDay(in.IssueDate)
	in.Reason = strings.TrimSpace(in.Reason)

	var note Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.LockInvoice(ctx, in.OriginalInvoiceID)
		if err != nil {
			return err
		}
		if original.Period == "" {
			return fmt.Errorf("%w: id=%d", ErrMissingPeriod, original.ID)
		}
		if original.Status == StatusVoid {
			return fmt.Errorf("%w: id=%d", ErrInvoiceVoid, original.ID)
		}
		if original.IsCreditNote {
			return ErrCreditNoteOfCredit
		}
		if err := s.locks.AssertNotLocked(ctx, original.SellerID, original.Period); err != nil {
			return err
		}

		var lines []Line
		if in.FullReversal {
			lines = reverseLines(original.Lines)
		} else {
			lines, err = partialLines(original.Lines, in.Lines)
			if err != nil {
				return err
			}
		}

		note = Invoice{
			Type:             original.Type,
			Status:           StatusIssued,
			SellerID:         original.SellerID,
			BuyerID:          original.BuyerID,
			Period:           original.Period,
			IssueDate:        in.IssueDate,
			DueDate:          original.DueDate,
			IsCreditNote:     true,
			RelatedInvoiceID: original.ID,
			Reason:           in.Reason,
			Lines:            lines,
		}
		note.applyTotals()
		id, err := tx.CreateInvoice(ctx, note)
		if err != nil {
			return err
		}
		note.ID = id
		if err := tx.ReplaceInvoiceLines(ctx, id, note.Lines); err != nil {
			return err
		}
		if _, err := s.poster.PostInvoice(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "invoice.credit_note",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{
				"original_invoice_id": original.ID,
				"full_reversal":       in.FullReversal,
				"subtotal":            money.Format(note.Subtotal),
			},
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.log().Info("credit note created",
		slog.Int64("invoice_id", note.ID),
		slog.Int64("original_invoice_id", in.OriginalInvoiceID),
		slog.String("subtotal", money.Format(note.Subtotal)))
	return s.repo.GetInvoice(ctx, note.ID)
}

func reverseLines(original []Line) []Line {
	lines := make([]Line, 0, len(original))
	for i, l := range original {
		lines = append(lines, Line{
			Position:    i + 1,
			AgreementID: l.AgreementID,
			Description: "Credit: " + l.Description,
			Net:         l.Net.Neg(),
			VATRate:     l.VATRate,
			VAT:         l.VAT.Neg(),
			WHTRate:     l.WHTRate,
			WHT:         l.WHT.Neg(),
			WHTTaxType:  l.WHTTaxType,
			Gross:       l.Gross.Neg(),
		})
	}
	return lines
}

func partialLines(original []Line, amounts map[int64]decimal.Decimal) ([]Line, error) {
	byID := make(map[int64]Line, len(original))
	for _, l := range original {
		byID[l.ID] = l
	}
	ids := make([]int64, 0, len(amounts))
	for id := range amounts {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: line %d", ErrUnknownLine, id)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return byID[ids[i]].Position < byID[ids[j]].Position })

	lines := make([]Line, 0, len(ids))
	for i, id := range ids {
		src := byID[id]
		amount := money.Round2(amounts[id])
		if !amount.IsPositive() || amount.GreaterThan(src.Net.Abs()) {
			return nil, fmt.Errorf("%w: line %d", ErrCreditAmount, id)
		}
		net := amount.Neg()
		vat := money.Mul(net, src.VATRate)
		lines = append(lines, Line{
			Position:    i + 1,
			AgreementID: src.AgreementID,
			Description: "Credit: " + src.Description,
			Net:         net,
			VATRate:     src.VATRate,
			VAT:         vat,
			WHTRate:     src.WHTRate,
			WHT:         money.Mul(net, src.WHTRate),
			WHTTaxType:  src.WHTTaxType,
			Gross:       money.Add(net, vat),
		})
	}
	return lines, nil
}

func (s *CreditNoteService) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "invoicing.credit_notes"))
	}
	return slog.Default().With(slog.String("component", "invoicing.credit_notes"))
}
