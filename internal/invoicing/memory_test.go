package invoicing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/ledger"
)

type memoryRepo struct {
	invoices   map[int64]Invoice
	agreements []Agreement
	payments   map[int64]int
	nextID     int64
	nextLineID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]Invoice), payments: make(map[int64]int)}
}

func cloneInvoice(inv Invoice) Invoice {
	inv.Lines = append([]Line(nil), inv.Lines...)
	return inv
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		snapshot[id] = cloneInvoice(inv)
	}
	nextID, nextLineID := r.nextID, r.nextLineID
	if err := fn(ctx, r); err != nil {
		r.invoices, r.nextID, r.nextLineID = snapshot, nextID, nextLineID
		return err
	}
	return nil
}

func (r *memoryRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: id=%d", ErrInvoiceNotFound, id)
	}
	return cloneInvoice(inv), nil
}

func (r *memoryRepo) ListInvoices(_ context.Context, filter ListFilter) ([]Invoice, int, error) {
	var all []Invoice
	for _, inv := range r.invoices {
		if inv.Period == filter.Period && (inv.SellerID == filter.CompanyID || inv.BuyerID == filter.CompanyID) {
			all = append(all, cloneInvoice(inv))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := (filter.Page - 1) * filter.PerPage
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PerPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *memoryRepo) ActiveAgreements(_ context.Context, providerID, recipientID int64, typ AgreementType, model PricingModel, on time.Time) ([]Agreement, error) {
	var out []Agreement
	for _, a := range r.agreements {
		if a.ProviderID == providerID && a.RecipientID == recipientID && a.Type == typ && a.PricingModel == model && a.ActiveOn(on) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepo) FindOpenInvoice(_ context.Context, sellerID, buyerID int64, period string) (Invoice, bool, error) {
	var ids []int64
	for id, inv := range r.invoices {
		if inv.SellerID == sellerID && inv.BuyerID == buyerID && inv.Period == period && !inv.IsCreditNote && inv.Status.Open() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return Invoice{}, false, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return cloneInvoice(r.invoices[ids[0]]), true, nil
}

func (r *memoryRepo) LockInvoice(ctx context.Context, id int64) (Invoice, error) {
	return r.GetInvoice(ctx, id)
}

func (r *memoryRepo) CreateInvoice(_ context.Context, inv Invoice) (int64, error) {
	r.nextID++
	inv.ID = r.nextID
	inv.Lines = nil
	r.invoices[inv.ID] = inv
	return inv.ID, nil
}

func (r *memoryRepo) UpdateInvoice(_ context.Context, inv Invoice) error {
	stored := r.invoices[inv.ID]
	stored.IssueDate, stored.DueDate = inv.IssueDate, inv.DueDate
	stored.Subtotal, stored.VATAmount, stored.Total = inv.Subtotal, inv.VATAmount, inv.Total
	r.invoices[inv.ID] = stored
	return nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id int64, status Status, reason string) error {
	stored := r.invoices[id]
	stored.Status = status
	if reason != "" {
		stored.Reason = reason
	}
	r.invoices[id] = stored
	return nil
}

func (r *memoryRepo) ReplaceInvoiceLines(_ context.Context, invoiceID int64, lines []Line) error {
	stored := r.invoices[invoiceID]
	stored.Lines = make([]Line, 0, len(lines))
	for _, l := range lines {
		r.nextLineID++
		l.ID = r.nextLineID
		stored.Lines = append(stored.Lines, l)
	}
	r.invoices[invoiceID] = stored
	return nil
}

func (r *memoryRepo) CountPayments(_ context.Context, invoiceID int64) (int, error) {
	return r.payments[invoiceID], nil
}

func (r *memoryRepo) CountActiveCreditNotes(_ context.Context, invoiceID int64) (int, error) {
	n := 0
	for _, inv := range r.invoices {
		if inv.IsCreditNote && inv.RelatedInvoiceID == invoiceID && inv.Status != StatusVoid {
			n++
		}
	}
	return n, nil
}

type allocationStub struct {
	allocations []costpool.Allocation
}

func (a *allocationStub) AllocationsForPeriod(_ context.Context, companyID int64, period string) ([]costpool.Allocation, error) {
	if len(a.allocations) == 0 {
		return nil, fmt.Errorf("%w: company %d period %s", costpool.ErrNoAllocations, companyID, period)
	}
	return a.allocations, nil
}

type lockStub struct {
	locked map[string]bool
}

func (l *lockStub) AssertNotLocked(_ context.Context, companyID int64, period string) error {
	if l.locked[fmt.Sprintf("%d:%s", companyID, period)] {
		return fmt.Errorf("period locked: company %d period %s", companyID, period)
	}
	return nil
}

type posterSpy struct {
	posted   []int64
	unposted []int64
	err      error
}

func (p *posterSpy) PostInvoice(_ context.Context, id int64) (ledger.PostingResult, error) {
	if p.err != nil {
		return ledger.PostingResult{}, p.err
	}
	p.posted = append(p.posted, id)
	return ledger.PostingResult{InvoiceID: id}, nil
}

func (p *posterSpy) UnpostInvoice(_ context.Context, id int64) error {
	p.unposted = append(p.unposted, id)
	return nil
}
