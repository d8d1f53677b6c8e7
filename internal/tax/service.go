package tax

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// Service generates and files VAT returns and reports tax impact.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the tax service.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, mainly for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// GenerateVATReturn recomputes the company's VAT position and stores it as
// GENERATED. A filed return is never overwritten.
func (s *Service) GenerateVATReturn(ctx context.Context, companyID int64, period, actor string) (VATReturn, error) {
	period, err := scope(companyID, period)
	if err != nil {
		return VATReturn{}, err
	}
	var ret VATReturn
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, found, err := tx.LockReturn(ctx, companyID, period)
		if err != nil {
			return err
		}
		if found && existing.Status == ReturnFiled {
			return fmt.Errorf("%w: company %d period %s", ErrReturnFiled, companyID, period)
		}
		output, input, err := tx.VATTotals(ctx, companyID, period)
		if err != nil {
			return err
		}
		ret = VATReturn{
			CompanyID:   companyID,
			Period:      period,
			OutputVAT:   money.Round2(output),
			InputVAT:    money.Round2(input),
			NetPayable:  money.Sub(output, input),
			Status:      ReturnGenerated,
			GeneratedAt: s.now(),
		}
		if err := tx.UpsertReturn(ctx, ret); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "tax.vat_generate",
			Entity:   "vat_return",
			EntityID: fmt.Sprintf("%d:%s", companyID, period),
			Meta:     map[string]any{"net_payable": money.Format(ret.NetPayable)},
		})
	})
	if err != nil {
		return VATReturn{}, err
	}
	s.log().Info("vat return generated",
		slog.Int64("company_id", companyID),
		slog.String("period", period),
		slog.String("net_payable", money.Format(ret.NetPayable)))
	return ret, nil
}

// FileVATReturn moves a GENERATED return to FILED.
func (s *Service) FileVATReturn(ctx context.Context, in FileInput) (VATReturn, error) {
	in, err := in.normalize()
	if err != nil {
		return VATReturn{}, err
	}
	var ret VATReturn
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, found, err := tx.LockReturn(ctx, in.CompanyID, in.Period)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: company %d period %s", ErrReturnNotFound, in.CompanyID, in.Period)
		}
		if existing.Status == ReturnFiled {
			return fmt.Errorf("%w: company %d period %s", ErrReturnFiled, in.CompanyID, in.Period)
		}
		filedAt := s.now()
		if err := tx.MarkFiled(ctx, in.CompanyID, in.Period, filedAt, in.PaymentRef); err != nil {
			return err
		}
		existing.Status = ReturnFiled
		existing.FiledAt = &filedAt
		existing.PaymentRef = in.PaymentRef
		ret = existing
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    in.Actor,
			Action:   "tax.vat_file",
			Entity:   "vat_return",
			EntityID: fmt.Sprintf("%d:%s", in.CompanyID, in.Period),
			Meta:     map[string]any{"payment_ref": in.PaymentRef},
		})
	})
	if err != nil {
		return VATReturn{}, err
	}
	s.log().Info("vat return filed", slog.Int64("company_id", in.CompanyID), slog.String("period", in.Period))
	return ret, nil
}

// GetVATReturn returns the stored return.
func (s *Service) GetVATReturn(ctx context.Context, companyID int64, period string) (VATReturn, error) {
	period, err := scope(companyID, period)
	if err != nil {
		return VATReturn{}, err
	}
	ret, found, err := s.repo.GetReturn(ctx, companyID, period)
	if err != nil {
		return VATReturn{}, err
	}
	if !found {
		return VATReturn{}, fmt.Errorf("%w: company %d period %s", ErrReturnNotFound, companyID, period)
	}
	return ret, nil
}

// TaxImpact assembles VAT and WHT figures for the company. The underlying
// reads are independent and run concurrently.
func (s *Service) TaxImpact(ctx context.Context, companyID int64, period string) (Impact, error) {
	period, err := scope(companyID, period)
	if err != nil {
		return Impact{}, err
	}
	impact := Impact{CompanyID: companyID, Period: period}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		output, input, err := s.repo.VATTotals(gctx, companyID, period)
		if err != nil {
			return err
		}
		impact.OutputVAT = money.Round2(output)
		impact.InputVAT = money.Round2(input)
		impact.NetVATPayable = money.Sub(output, input)
		return nil
	})
	g.Go(func() error {
		ret, found, err := s.repo.GetReturn(gctx, companyID, period)
		if err != nil {
			return err
		}
		if found {
			impact.VATReturnStatus = ret.Status
		}
		return nil
	})
	g.Go(func() error {
		withheld, err := s.repo.WHTWithheld(gctx, companyID, period)
		if err != nil {
			return err
		}
		impact.WHTWithheldByTax, impact.WHTWithheld = totals(withheld)
		return nil
	})
	g.Go(func() error {
		credits, err := s.repo.WHTCredits(gctx, companyID, period)
		if err != nil {
			return err
		}
		impact.WHTCreditsByTax, impact.WHTCredits = totals(credits)
		return nil
	})
	g.Go(func() error {
		n, err := s.repo.CountUnremitted(gctx, companyID, period)
		if err != nil {
			return err
		}
		impact.UnremittedNotes = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Impact{}, err
	}
	return impact, nil
}

func totals(rows []TaxTypeTotal) ([]TaxTypeTotal, decimal.Decimal) {
	if rows == nil {
		rows = []TaxTypeTotal{}
	}
	sum := decimal.Zero
	for _, r := range rows {
		sum = money.Add(sum, r.Amount)
	}
	return rows, sum
}

func scope(companyID int64, period string) (string, error) {
	if companyID <= 0 {
		return "", ErrCompanyRequired
	}
	return shared.NormalizePeriod(period)
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "tax"))
	}
	return slog.Default().With(slog.String("component", "tax"))
}
