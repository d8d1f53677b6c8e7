package tax

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/holdco/internal/money"
)

type invoiceRow struct {
	seller, buyer int64
	period        string
	void          bool
	vat           decimal.Decimal
}

type noteRow struct {
	issuer, beneficiary int64
	period, taxType     string
	amount              decimal.Decimal
	remitted            bool
}

type memoryRepo struct {
	invoices []invoiceRow
	notes    []noteRow
	returns  map[string]VATReturn
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{returns: make(map[string]VATReturn)}
}

func returnKey(companyID int64, period string) string {
	return fmt.Sprintf("%d/%s", companyID, period)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[string]VATReturn, len(r.returns))
	for k, v := range r.returns {
		snapshot[k] = v
	}
	if err := fn(ctx, r); err != nil {
		r.returns = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) GetReturn(_ context.Context, companyID int64, period string) (VATReturn, bool, error) {
	ret, ok := r.returns[returnKey(companyID, period)]
	return ret, ok, nil
}

func (r *memoryRepo) LockReturn(ctx context.Context, companyID int64, period string) (VATReturn, bool, error) {
	return r.GetReturn(ctx, companyID, period)
}

func (r *memoryRepo) VATTotals(_ context.Context, companyID int64, period string) (decimal.Decimal, decimal.Decimal, error) {
	output, input := decimal.Zero, decimal.Zero
	for _, inv := range r.invoices {
		if inv.period != period || inv.void {
			continue
		}
		if inv.seller == companyID {
			output = money.Add(output, inv.vat)
		}
		if inv.buyer == companyID {
			input = money.Add(input, inv.vat)
		}
	}
	return output, input, nil
}

func (r *memoryRepo) UpsertReturn(_ context.Context, ret VATReturn) error {
	r.returns[returnKey(ret.CompanyID, ret.Period)] = ret
	return nil
}

func (r *memoryRepo) MarkFiled(_ context.Context, companyID int64, period string, filedAt time.Time, paymentRef string) error {
	key := returnKey(companyID, period)
	ret := r.returns[key]
	ret.Status = ReturnFiled
	ret.FiledAt = &filedAt
	ret.PaymentRef = paymentRef
	r.returns[key] = ret
	return nil
}

func (r *memoryRepo) WHTWithheld(_ context.Context, issuerID int64, period string) ([]TaxTypeTotal, error) {
	return r.byType(period, func(n noteRow) bool { return n.issuer == issuerID }), nil
}

func (r *memoryRepo) WHTCredits(_ context.Context, beneficiaryID int64, period string) ([]TaxTypeTotal, error) {
	return r.byType(period, func(n noteRow) bool { return n.beneficiary == beneficiaryID }), nil
}

func (r *memoryRepo) byType(period string, match func(noteRow) bool) []TaxTypeTotal {
	sums := map[string]decimal.Decimal{}
	for _, n := range r.notes {
		if n.period == period && match(n) {
			sums[n.taxType] = money.Add(sums[n.taxType], n.amount)
		}
	}
	var out []TaxTypeTotal
	for taxType, amount := range sums {
		out = append(out, TaxTypeTotal{TaxType: taxType, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaxType < out[j].TaxType })
	return out
}

func (r *memoryRepo) CountUnremitted(_ context.Context, issuerID int64, period string) (int, error) {
	n := 0
	for _, note := range r.notes {
		if note.issuer == issuerID && note.period == period && !note.remitted {
			n++
		}
	}
	return n, nil
}
