package consol

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/holdco/internal/money"
	"github.com/odyssey-erp/holdco/internal/platform/cache"
	"github.com/odyssey-erp/holdco/internal/shared"
)

const reportPL = "pl"

// ReportCache stores built reports. *cache.Versioned satisfies it.
type ReportCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) (bool, error)
}

// ProfitLossService performs aggregation of the consolidated profit and loss statement.
type ProfitLossService struct {
	repo    Repository
	cache   ReportCache
	metrics *Metrics
	builds  singleflight.Group
	logger  *slog.Logger
}

// NewProfitLossService constructs a new service instance. A nil cache
// disables caching.
func NewProfitLossService(repo Repository, reports ReportCache, metrics *Metrics, logger *slog.Logger) *ProfitLossService {
	if reports == nil {
		reports = cache.NewVersioned(nil, "consol", 0)
	}
	return &ProfitLossService{repo: repo, cache: reports, metrics: metrics, logger: logger}
}

// Build returns the consolidated P&L for the group and period. Concurrent
// callers for the same report share one build.
func (s *ProfitLossService) Build(ctx context.Context, filters Filters) (Report, error) {
	if filters.GroupID <= 0 {
		return Report{}, ErrGroupRequired
	}
	period, err := shared.NormalizePeriod(filters.Period)
	if err != nil {
		return Report{}, err
	}
	filters.Period = period

	key, err := s.cache.BuildKey(ctx, reportPL, strconv.FormatInt(filters.GroupID, 10), period, strconv.FormatBool(filters.IncludeIntercompany))
	if err != nil {
		return Report{}, err
	}
	// The shared build outlives any single caller's cancellation.
	buildCtx := context.WithoutCancel(ctx)
	result := s.builds.DoChan(key, func() (any, error) {
		start := time.Now()
		var report Report
		hit, err := s.cache.FetchJSON(buildCtx, key, &report, func(ctx context.Context) (any, error) {
			return s.compute(ctx, filters)
		})
		if err != nil {
			return Report{}, err
		}
		s.metrics.observe(reportPL, filters.GroupID, hit, time.Since(start))
		return report, nil
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

func (s *ProfitLossService) compute(ctx context.Context, filters Filters) (Report, error) {
	balances, err := s.repo.AccountBalances(ctx, filters.GroupID, filters.Period)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		GroupID:             filters.GroupID,
		Period:              filters.Period,
		IncludeIntercompany: filters.IncludeIntercompany,
		Lines:               make([]Line, 0, len(balances)),
	}
	revenue, cogs, expense := decimal.Zero, decimal.Zero, decimal.Zero
	for _, b := range balances {
		if !filters.IncludeIntercompany && (b.AccountCode == accountICRevenue || b.AccountCode == accountICExpense) {
			continue
		}
		section, ok := sectionFor(b.AccountType)
		if !ok {
			continue
		}
		line := Line{AccountCode: b.AccountCode, AccountName: b.AccountName, Section: section}
		switch section {
		case SectionRevenue:
			line.Amount = money.Sub(b.Credit, b.Debit)
			revenue = money.Add(revenue, line.Amount)
		case SectionCOGS:
			line.Amount = money.Sub(b.Debit, b.Credit)
			cogs = money.Add(cogs, line.Amount)
		case SectionExpense:
			line.Amount = money.Sub(b.Debit, b.Credit)
			expense = money.Add(expense, line.Amount)
		}
		report.Lines = append(report.Lines, line)
	}
	cogs, expense = cogs.Abs(), expense.Abs()
	gross := money.Sub(revenue, cogs)
	report.Totals = Totals{
		Revenue:     revenue,
		COGS:        cogs,
		GrossProfit: gross,
		Expense:     expense,
		NetProfit:   money.Sub(gross, expense),
	}
	s.log().Debug("consolidated pl built",
		slog.Int64("group_id", filters.GroupID),
		slog.String("period", filters.Period),
		slog.Int("lines", len(report.Lines)))
	return report, nil
}

func (s *ProfitLossService) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(slog.String("component", "consol"))
	}
	return slog.Default().With(slog.String("component", "consol"))
}
