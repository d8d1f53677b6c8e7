package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type memoryRepo struct {
	accounts map[string]Account
	docs     map[int64]Document
	groups   map[int64]int64 // company -> group
	entries  map[string][]Entry
	nextID   int64
	failOn   map[int64]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[string]Account),
		docs:     make(map[int64]Document),
		groups:   make(map[int64]int64),
		entries:  make(map[string][]Entry),
		failOn:   make(map[int64]error),
	}
}

func accountKey(companyID int64, code string) string {
	return fmt.Sprintf("%d:%s", companyID, code)
}

func (r *memoryRepo) addAccount(companyID int64, code string, typ AccountType) Account {
	r.nextID++
	a := Account{ID: r.nextID, CompanyID: companyID, Code: code, Name: code, Type: typ}
	r.accounts[accountKey(companyID, code)] = a
	return a
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Stage writes so a failing callback leaves the store untouched.
	staged := &memoryTx{repo: r, writes: make(map[string][]Entry)}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	for ref, entries := range staged.writes {
		if len(entries) == 0 {
			delete(r.entries, ref)
			continue
		}
		r.entries[ref] = entries
	}
	return nil
}

func (r *memoryRepo) ListAccounts(_ context.Context, companyID int64) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if a.CompanyID == companyID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryRepo) FindAccount(_ context.Context, companyID int64, code string) (Account, bool, error) {
	a, ok := r.accounts[accountKey(companyID, code)]
	return a, ok, nil
}

func (r *memoryRepo) ListPostableInvoiceIDs(_ context.Context, groupID int64, period string) ([]int64, error) {
	var ids []int64
	for id, d := range r.docs {
		if d.Period == period && d.Status != documentVoid && r.groups[d.SellerID] == groupID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryRepo) ListEntriesBySource(_ context.Context, sourceType, sourceRef string) ([]Entry, error) {
	return r.entries[sourceType+":"+sourceRef], nil
}

type memoryTx struct {
	repo   *memoryRepo
	writes map[string][]Entry
}

func (t *memoryTx) LoadDocument(_ context.Context, invoiceID int64) (Document, error) {
	if err, ok := t.repo.failOn[invoiceID]; ok {
		return Document{}, err
	}
	d, ok := t.repo.docs[invoiceID]
	if !ok {
		return Document{}, ErrInvoiceNotFound
	}
	return d, nil
}

func (t *memoryTx) FindAccount(ctx context.Context, companyID int64, code string) (Account, bool, error) {
	return t.repo.FindAccount(ctx, companyID, code)
}

func (t *memoryTx) ReplaceSourceEntries(_ context.Context, sourceType, sourceRef string, entries []Entry) error {
	t.writes[sourceType+":"+sourceRef] = append([]Entry(nil), entries...)
	return nil
}

var issueDate = time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
