package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// Service records payments against invoices.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs the payments service.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// RecordIntercompanyPayment appends a payment, issues one WHT credit note per
// withheld tax type and moves the invoice to PART_PAID or PAID. Everything
// commits together.
func (s *Service) RecordIntercompanyPayment(ctx context.Context, in RecordPaymentInput) (PaymentResult, error) {
	if in.InvoiceID <= 0 {
		return PaymentResult{}, ErrInvoiceNotFound
	}
	if in.PaymentDate.IsZero() {
		return PaymentResult{}, ErrPaymentDateRequired
	}
	if !in.AmountPaid.IsPositive() {
		return PaymentResult{}, ErrAmountRequired
	}
	if in.WHTWithheld != nil && in.WHTWithheld.IsNegative() {
		return PaymentResult{}, ErrNegativeWHT
	}

	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, in.InvoiceID)
		if err != nil {
			return err
		}
		switch {
		case inv.Status == invoicing.StatusVoid:
			return ErrInvoiceVoid
		case inv.Period == "":
			return ErrMissingPeriod
		case inv.IsCreditNote:
			return ErrCreditNote
		}

		byType, expected := ExpectedWHT(inv.WHTLines)
		withheld, err := reconcileWHT(in.WHTWithheld, expected)
		if err != nil {
			return err
		}
		if len(byType) > 0 && inv.BuyerID == 0 {
			return ErrMissingPayer
		}

		payment := Payment{
			InvoiceID:   inv.ID,
			PayerID:     inv.BuyerID,
			PayeeID:     inv.SellerID,
			PaymentDate: in.PaymentDate,
			AmountPaid:  money.Round2(in.AmountPaid),
			WHTWithheld: withheld,
			Reference:   strings.TrimSpace(in.Reference),
			Notes:       strings.TrimSpace(in.Notes),
		}
		if payment.ID, err = tx.InsertPayment(ctx, payment); err != nil {
			return err
		}

		notes := make([]WHTCreditNote, 0, len(byType))
		for _, t := range byType {
			note := WHTCreditNote{
				PaymentID:     payment.ID,
				Period:        inv.Period,
				IssuerID:      inv.BuyerID,
				BeneficiaryID: inv.SellerID,
				TaxType:       t.TaxType,
				Amount:        money.Round2(t.Amount),
			}
			if note.ID, err = tx.InsertCreditNote(ctx, note); err != nil {
				return err
			}
			notes = append(notes, note)
		}

		paid, err := tx.SumPaid(ctx, inv.ID)
		if err != nil {
			return err
		}
		next := inv.Status.AfterPayment(paid, inv.Total)
		if next != inv.Status {
			if !inv.Status.CanTransitionTo(next) {
				return fmt.Errorf("%w: %s to %s", invoicing.ErrInvalidTransition, inv.Status, next)
			}
			if err := tx.UpdateInvoiceStatus(ctx, inv.ID, next); err != nil {
				return err
			}
		}

		result = PaymentResult{
			Payment:       payment,
			CreditNotes:   notes,
			ExpectedWHT:   expected,
			TotalPaid:     paid,
			InvoiceStatus: next,
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "payments.record",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(inv.ID, 10),
			Meta: map[string]any{
				"payment_id":   payment.ID,
				"amount_paid":  money.Format(payment.AmountPaid),
				"wht_withheld": money.Format(withheld),
				"status":       string(next),
			},
		})
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.log().Info("payment recorded",
		slog.Int64("invoice_id", in.InvoiceID),
		slog.Int64("payment_id", result.Payment.ID),
		slog.String("status", string(result.InvoiceStatus)))
	return result, nil
}

// ListPayments returns the payments recorded against an invoice.
func (s *Service) ListPayments(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, invoiceID)
}

// reconcileWHT returns the amount to record as withheld. An omitted amount
// takes the expected value.
func reconcileWHT(provided *decimal.Decimal, expected decimal.Decimal) (decimal.Decimal, error) {
	expected = money.Round2(expected)
	if provided == nil {
		return expected, nil
	}
	got := money.Round2(*provided)
	if expected.IsPositive() && got.IsZero() {
		return decimal.Zero, ErrWHTZero
	}
	if money.Sub(got, expected).Abs().GreaterThan(whtTolerance) {
		return decimal.Zero, fmt.Errorf("%w: expected %s, got %s", ErrWHTMismatch, money.Format(expected), money.Format(got))
	}
	return got, nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "payments"))
	}
	return slog.Default().With(slog.String("component", "payments"))
}
