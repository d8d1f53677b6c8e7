package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/holdco/internal/shared"
)

// GetWHTSchedule lists the issuer's unremitted WHT for the period, one row
// per tax type.
func (s *Service) GetWHTSchedule(ctx context.Context, issuerID int64, period string) ([]ScheduleRow, error) {
	if issuerID <= 0 {
		return nil, ErrRemittanceInput
	}
	period, err := shared.NormalizePeriod(period)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.WHTSchedule(ctx, issuerID, period)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ScheduleRow{}
	}
	return rows, nil
}

// MarkRemitted records a remittance against every matching unremitted note.
// Nothing matching is reported as not found.
func (s *Service) MarkRemitted(ctx context.Context, in MarkRemittedInput) (int64, error) {
	in.TaxType = strings.ToUpper(strings.TrimSpace(in.TaxType))
	in.ReceiptRef = strings.TrimSpace(in.ReceiptRef)
	if in.IssuerID <= 0 || in.TaxType == "" || in.ReceiptRef == "" || in.RemittanceDate.IsZero() {
		return 0, ErrRemittanceInput
	}
	period, err := shared.NormalizePeriod(in.Period)
	if err != nil {
		return 0, err
	}
	in.Period = period

	var updated int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, _ TxRepository) error {
		n, err := s.repo.MarkRemitted(ctx, in)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNothingToRemit
		}
		updated = n
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "payments.wht_remitted",
			Entity:   "company_period",
			EntityID: fmt.Sprintf("%d:%s", in.IssuerID, in.Period),
			Meta:     map[string]any{"tax_type": in.TaxType, "receipt_ref": in.ReceiptRef, "notes": n},
		})
	})
	if err != nil {
		return 0, err
	}
	s.log().Info("wht remitted",
		slog.Int64("issuer_id", in.IssuerID),
		slog.String("period", in.Period),
		slog.String("tax_type", in.TaxType),
		slog.Int64("notes", updated))
	return updated, nil
}
