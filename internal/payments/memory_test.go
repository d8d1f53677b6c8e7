package payments

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/money"
)

var errInjected = errors.New("injected failure")

type memoryRepo struct {
	invoices map[int64]InvoiceSnapshot
	payments []Payment
	notes    []WHTCreditNote
	nextID   int64
	failOn   string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{invoices: make(map[int64]InvoiceSnapshot)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	invoices := make(map[int64]InvoiceSnapshot, len(r.invoices))
	for id, inv := range r.invoices {
		invoices[id] = inv
	}
	payments := append([]Payment(nil), r.payments...)
	notes := append([]WHTCreditNote(nil), r.notes...)
	nextID := r.nextID
	if err := fn(ctx, r); err != nil {
		r.invoices, r.payments, r.notes, r.nextID = invoices, payments, notes, nextID
		return err
	}
	return nil
}

func (r *memoryRepo) ListPayments(_ context.Context, invoiceID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) WHTSchedule(_ context.Context, issuerID int64, period string) ([]ScheduleRow, error) {
	byType := map[string]*ScheduleRow{}
	for _, n := range r.notes {
		if n.IssuerID != issuerID || n.Period != period || n.RemittanceDate != nil {
			continue
		}
		row, ok := byType[n.TaxType]
		if !ok {
			row = &ScheduleRow{TaxType: n.TaxType, Total: decimal.Zero}
			byType[n.TaxType] = row
		}
		row.Total = money.Add(row.Total, n.Amount)
		row.Count++
	}
	var out []ScheduleRow
	for _, row := range byType {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaxType < out[j].TaxType })
	return out, nil
}

func (r *memoryRepo) MarkRemitted(_ context.Context, in MarkRemittedInput) (int64, error) {
	var n int64
	for i := range r.notes {
		note := &r.notes[i]
		if note.IssuerID == in.IssuerID && note.Period == in.Period && note.TaxType == in.TaxType && note.RemittanceDate == nil {
			date := in.RemittanceDate
			note.RemittanceDate = &date
			note.ReceiptRef = in.ReceiptRef
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) LockInvoice(_ context.Context, id int64) (InvoiceSnapshot, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return InvoiceSnapshot{}, ErrInvoiceNotFound
	}
	return inv, nil
}

func (r *memoryRepo) InsertPayment(_ context.Context, p Payment) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	r.payments = append(r.payments, p)
	return p.ID, nil
}

func (r *memoryRepo) InsertCreditNote(_ context.Context, note WHTCreditNote) (int64, error) {
	if r.failOn == "credit_note" {
		return 0, errInjected
	}
	r.nextID++
	note.ID = r.nextID
	r.notes = append(r.notes, note)
	return note.ID, nil
}

func (r *memoryRepo) SumPaid(_ context.Context, invoiceID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			total = money.Add(total, p.AmountPaid)
		}
	}
	return total, nil
}

func (r *memoryRepo) UpdateInvoiceStatus(_ context.Context, invoiceID int64, status invoicing.Status) error {
	inv := r.invoices[invoiceID]
	inv.Status = status
	r.invoices[invoiceID] = inv
	return nil
}
