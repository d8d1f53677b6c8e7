package ledger

import (
	"context"
	"strings"
)

// Registry answers chart-of-accounts lookups.
type Registry struct {
	repo Repository
}

// NewRegistry constructs the registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// Resolve returns the account for code or a configuration error naming the
// code and company.
func (r *Registry) Resolve(ctx context.Context, companyID int64, code string) (Account, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	acct, found, err := r.repo.FindAccount(ctx, companyID, code)
	if err != nil {
		return Account{}, err
	}
	if !found {
		return Account{}, MissingAccountError(code, companyID)
	}
	return acct, nil
}

// ListAccounts returns the company's accounts ordered by code.
func (r *Registry) ListAccounts(ctx context.Context, companyID int64) ([]Account, error) {
	return r.repo.ListAccounts(ctx, companyID)
}
