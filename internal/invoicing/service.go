package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/ledger"
	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// AllocationSource provides the allocated costs invoices are built from.
type AllocationSource interface {
	AllocationsForPeriod(ctx context.Context, companyID int64, period string) ([]costpool.Allocation, error)
}

// PeriodGuard rejects mutations against locked periods.
type PeriodGuard interface {
	AssertNotLocked(ctx context.Context, companyID int64, period string) error
}

// Poster writes and removes ledger entries for an invoice within the
// caller's transaction.
type Poster interface {
	PostInvoice(ctx context.Context, invoiceID int64) (ledger.PostingResult, error)
	UnpostInvoice(ctx context.Context, invoiceID int64) error
}

// Service generates, issues and voids invoices.
type Service struct {
	repo        Repository
	allocations AllocationSource
	locks       PeriodGuard
	poster      Poster
	runs        shared.RunLocker
	audit       shared.AuditRecorder
	logger      *slog.Logger
}

// NewService constructs the invoicing service.
func NewService(repo Repository, allocations AllocationSource, locks PeriodGuard, poster Poster, runs shared.RunLocker, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if runs == nil {
		runs = shared.NewLocalLocker()
	}
	return &Service{repo: repo, allocations: allocations, locks: locks, poster: poster, runs: runs, audit: audit, logger: logger}
}

type pricedRecipient struct {
	allocation costpool.Allocation
	management Agreement
	license    Agreement
}

// GenerateIntercompanyInvoices bills every recipient of the holdco's
// allocated pool. The run holds the (holdco, period) run lock and commits as
// one transaction; agreements for all recipients are resolved before anything
// is written.
func (s *Service) GenerateIntercompanyInvoices(ctx context.Context, in GenerateInput) (GenerateResult, error) {
	if err := in.normalize(); err != nil {
		return GenerateResult{}, err
	}
	result := GenerateResult{Period: in.Period}
	err := s.runs.Do(ctx, shared.RunLockKey(in.HoldcoID, in.Period), func(ctx context.Context) error {
		if err := s.locks.AssertNotLocked(ctx, in.HoldcoID, in.Period); err != nil {
			return err
		}
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			allocations, err := s.allocations.AllocationsForPeriod(ctx, in.HoldcoID, in.Period)
			if err != nil {
				return err
			}
			priced := make([]pricedRecipient, 0, len(allocations))
			for _, alloc := range allocations {
				p, err := s.resolveAgreements(ctx, tx, in, alloc)
				if err != nil {
					return err
				}
				priced = append(priced, p)
			}
			result.Invoices = make([]Invoice, 0, len(priced))
			for _, p := range priced {
				inv, created, err := s.upsertInvoice(ctx, tx, in, p)
				if err != nil {
					return err
				}
				if created {
					result.Created++
				} else {
					result.Updated++
				}
				result.Invoices = append(result.Invoices, inv)
			}
			return s.audit.Record(ctx, shared.AuditLog{
				Actor:    in.Actor,
				Action:   "invoicing.generate",
				Entity:   "company_period",
				EntityID: fmt.Sprintf("%d:%s", in.HoldcoID, in.Period),
				Meta:     map[string]any{"created": result.Created, "updated": result.Updated},
			})
		})
	})
	if err != nil {
		return GenerateResult{}, err
	}
	s.log().Info("intercompany invoices generated",
		slog.Int64("holdco_id", in.HoldcoID),
		slog.String("period", in.Period),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated))
	return result, nil
}

func (s *Service) resolveAgreements(ctx context.Context, tx TxRepository, in GenerateInput, alloc costpool.Allocation) (pricedRecipient, error) {
	management, err := s.singleAgreement(ctx, tx, in, alloc.RecipientID, AgreementManagement, PricingCostPlus)
	if err != nil {
		return pricedRecipient{}, err
	}
	license, err := s.singleAgreement(ctx, tx, in, alloc.RecipientID, AgreementIPLicense, PricingFixedMonthly)
	if err != nil {
		return pricedRecipient{}, err
	}
	return pricedRecipient{allocation: alloc, management: management, license: license}, nil
}

func (s *Service) singleAgreement(ctx context.Context, tx TxRepository, in GenerateInput, recipientID int64, typ AgreementType, model PricingModel) (Agreement, error) {
	found, err := tx.ActiveAgreements(ctx, in.HoldcoID, recipientID, typ, model, in.IssueDate)
	if err != nil {
		return Agreement{}, err
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return Agreement{}, shared.Configurationf("invoicing: no active %s/%s agreement for recipient company %d on %s",
			typ, model, recipientID, in.IssueDate.Format(time.DateOnly))
	default:
		return Agreement{}, shared.Configurationf("invoicing: %d active %s/%s agreements for recipient company %d on %s",
			len(found), typ, model, recipientID, in.IssueDate.Format(time.DateOnly))
	}
}

func (s *Service) upsertInvoice(ctx context.Context, tx TxRepository, in GenerateInput, p pricedRecipient) (Invoice, bool, error) {
	managementNet := money.Mul(p.allocation.AllocatedCost, decimal.NewFromInt(1).Add(p.management.MarkupRate))
	lines := []Line{
		agreementLine(1, "Management fee "+in.Period, p.management, managementNet),
		agreementLine(2, "IP license fee "+in.Period, p.license, p.license.FixedFee),
	}
	inv := Invoice{
		Type:      TypeIntercompany,
		Status:    StatusDraft,
		SellerID:  in.HoldcoID,
		BuyerID:   p.allocation.RecipientID,
		Period:    in.Period,
		IssueDate: in.IssueDate,
		DueDate:   in.IssueDate.AddDate(0, 0, in.DueDays),
		Lines:     lines,
	}
	inv.applyTotals()

	existing, found, err := tx.FindOpenInvoice(ctx, in.HoldcoID, p.allocation.RecipientID, in.Period)
	if err != nil {
		return Invoice{}, false, err
	}
	if found {
		inv.ID = existing.ID
		inv.Status = existing.Status
		inv.CreatedAt = existing.CreatedAt
		if err := tx.UpdateInvoice(ctx, inv); err != nil {
			return Invoice{}, false, err
		}
		if err := tx.ReplaceInvoiceLines(ctx, inv.ID, inv.Lines); err != nil {
			return Invoice{}, false, err
		}
		if inv.Status.Posted() {
			if _, err := s.poster.PostInvoice(ctx, inv.ID); err != nil {
				return Invoice{}, false, err
			}
		}
		return inv, false, nil
	}

	id, err := tx.CreateInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, false, err
	}
	inv.ID = id
	if err := tx.ReplaceInvoiceLines(ctx, id, inv.Lines); err != nil {
		return Invoice{}, false, err
	}
	return inv, true, nil
}

// IssueInvoice moves a draft to ISSUED and posts it in the same transaction.
// Already issued or paid invoices keep their status and are re-posted; VOID
// is terminal.
func (s *Service) IssueInvoice(ctx context.Context, id int64, actor string) (Invoice, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Status == StatusVoid {
			return fmt.Errorf("%w: id=%d", ErrInvoiceVoid, id)
		}
		if inv.Period == "" {
			return fmt.Errorf("%w: id=%d", ErrMissingPeriod, id)
		}
		if err := s.locks.AssertNotLocked(ctx, inv.SellerID, inv.Period); err != nil {
			return err
		}
		if inv.Status == StatusDraft {
			if err := tx.UpdateStatus(ctx, id, StatusIssued, ""); err != nil {
				return err
			}
		}
		if _, err := s.poster.PostInvoice(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "invoice.issue",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"from": string(inv.Status)},
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.log().Info("invoice issued", slog.Int64("invoice_id", id))
	return s.repo.GetInvoice(ctx, id)
}

// VoidInvoice voids a DRAFT or ISSUED invoice that has no payments and no
// active credit notes, removing its ledger entries.
func (s *Service) VoidInvoice(ctx context.Context, id int64, actor, reason string) (Invoice, error) {
	reason = strings.TrimSpace(reason)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, id)
		if err != nil {
			return err
		}
		if !inv.Status.CanTransitionTo(StatusVoid) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, StatusVoid)
		}
		if inv.Period != "" {
			if err := s.locks.AssertNotLocked(ctx, inv.SellerID, inv.Period); err != nil {
				return err
			}
		}
		payments, err := tx.CountPayments(ctx, id)
		if err != nil {
			return err
		}
		if payments > 0 {
			return ErrInvoiceHasPayments
		}
		credits, err := tx.CountActiveCreditNotes(ctx, id)
		if err != nil {
			return err
		}
		if credits > 0 {
			return ErrInvoiceHasCredits
		}
		if err := tx.UpdateStatus(ctx, id, StatusVoid, reason); err != nil {
			return err
		}
		if err := s.poster.UnpostInvoice(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "invoice.void",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(id, 10),
			Meta:     map[string]any{"from": string(inv.Status), "reason": reason},
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.log().Info("invoice voided", slog.Int64("invoice_id", id))
	return s.repo.GetInvoice(ctx, id)
}

// GetInvoice returns an invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns one page of the company's invoices for a period.
func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, shared.Pagination, error) {
	period, err := shared.NormalizePeriod(filter.Period)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.Period = period
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	list, total, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if list == nil {
		list = []Invoice{}
	}
	return list, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "invoicing"))
	}
	return slog.Default().With(slog.String("component", "invoicing"))
}
