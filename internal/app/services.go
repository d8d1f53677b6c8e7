package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/holdco/internal/consol"
	"github.com/odyssey-erp/holdco/internal/costpool"
	"github.com/odyssey-erp/holdco/internal/export"
	"github.com/odyssey-erp/holdco/internal/invoicing"
	"github.com/odyssey-erp/holdco/internal/ledger"
	"github.com/odyssey-erp/holdco/internal/monthclose"
	"github.com/odyssey-erp/holdco/internal/observability"
	"github.com/odyssey-erp/holdco/internal/payments"
	"github.com/odyssey-erp/holdco/internal/periodlock"
	"github.com/odyssey-erp/holdco/internal/platform/cache"
	"github.com/odyssey-erp/holdco/internal/shared"
	"github.com/odyssey-erp/holdco/internal/tax"
)

// Services is the composition root shared by the API server and the worker.
type Services struct {
	Audit       *shared.AuditLogger
	Directory   *shared.CompanyDirectory
	Idempotency *shared.IdempotencyStore
	Runs        shared.RunLocker
	ReportCache *cache.Versioned

	Registry    *ledger.Registry
	Poster      *ledger.Poster
	CostPools   *costpool.Service
	Invoices    *invoicing.Service
	CreditNotes *invoicing.CreditNoteService
	Payments    *payments.Service
	Tax         *tax.Service
	PeriodLocks *periodlock.Service
	ProfitLoss  *consol.ProfitLossService
	MonthClose  *monthclose.Orchestrator
	Exports     *export.Service
}

// BuildServices wires repositories and services over one pool. A nil Redis
// client falls back to an in-process run locker and an uncached P&L.
func BuildServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) (*Services, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	var runs shared.RunLocker = shared.NewLocalLocker()
	if redisClient != nil {
		runs = shared.NewRedisLocker(redisClient, cfg.RunLockTTL)
	}
	reportCache := cache.NewVersioned(redisClient, "consol:pl", cfg.PLCacheTTL)

	consolMetrics, err := consol.NewMetrics(metrics.Registerer())
	if err != nil {
		return nil, err
	}

	audit := shared.NewAuditLogger(pool)
	locks := periodlock.NewService(periodlock.NewRepository(pool), audit, logger)
	ledgerRepo := ledger.NewRepository(pool)
	poster := ledger.NewPoster(ledgerRepo, reportCache, logger)
	pools := costpool.NewService(costpool.NewRepository(pool), locks, audit, logger)
	invoiceRepo := invoicing.NewRepository(pool)
	invoices := invoicing.NewService(invoiceRepo, pools, locks, poster, runs, audit, logger)

	return &Services{
		Audit:       audit,
		Directory:   shared.NewCompanyDirectory(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Runs:        runs,
		ReportCache: reportCache,
		Registry:    ledger.NewRegistry(ledgerRepo),
		Poster:      poster,
		CostPools:   pools,
		Invoices:    invoices,
		CreditNotes: invoicing.NewCreditNoteService(invoiceRepo, locks, poster, audit, logger),
		Payments:    payments.NewService(payments.NewRepository(pool), audit, logger),
		Tax:         tax.NewService(tax.NewRepository(pool), audit, logger),
		PeriodLocks: locks,
		ProfitLoss:  consol.NewProfitLossService(consol.NewRepository(pool), reportCache, consolMetrics, logger),
		MonthClose:  monthclose.NewOrchestrator(monthclose.NewRepository(pool), pools, invoices, locks, runs, audit, logger),
		Exports:     export.NewService(export.NewRepository(pool), logger),
	}, nil
}

// Handlers builds the API route mounters for the router.
func (s *Services) Handlers(logger *slog.Logger, params *RouterParams) {
	params.LedgerHandler = ledger.NewHandler(logger, s.Poster, s.Registry)
	params.CostPoolHandler = costpool.NewHandler(logger, s.CostPools)
	params.InvoicingHandler = invoicing.NewHandler(logger, s.Invoices, s.CreditNotes)
	params.PaymentsHandler = payments.NewHandler(logger, s.Payments)
	params.TaxHandler = tax.NewHandler(logger, s.Tax)
	params.PeriodLockHandler = periodlock.NewHandler(logger, s.PeriodLocks)
	params.ConsolHandler = consol.NewHandler(logger, s.ProfitLoss)
	params.MonthCloseHandler = monthclose.NewHandler(logger, s.MonthClose)
	params.ExportHandler = export.NewHandler(logger, s.Exports)
	params.Directory = s.Directory
	params.Idempotency = s.Idempotency
}
