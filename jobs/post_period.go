package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/holdco/internal/jobs"
	"github.com/odyssey-erp/holdco/internal/ledger"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// PeriodPoster posts every invoice of a group period.
type PeriodPoster interface {
	PostAllInvoicesForPeriod(ctx context.Context, groupID int64, period string) (int, error)
}

// PostPeriodJob posts a period's invoices from the queue. Re-posting is
// idempotent so a retried task converges.
type PostPeriodJob struct {
	Poster  PeriodPoster
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPostPeriodJob constructs the job handler.
func NewPostPeriodJob(poster PeriodPoster, logger *slog.Logger, metrics *jobmetrics.Metrics) *PostPeriodJob {
	return &PostPeriodJob{Poster: poster, Logger: logger, Metrics: metrics}
}

// Handle executes the posting task.
func (j *PostPeriodJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Poster == nil {
		return errors.New("post period: dependencies not configured")
	}
	var payload PostPeriodPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskPostPeriod)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ctx = shared.ContextWithIdentity(ctx, shared.Identity{GroupID: payload.GroupID, Actor: "worker"})
	posted, err := j.Poster.PostAllInvoicesForPeriod(ctx, payload.GroupID, payload.Period)
	tracker.Items(posted)
	if err != nil {
		attrs := []any{slog.Int64("group_id", payload.GroupID), slog.String("period", payload.Period), slog.Int("posted", posted), slog.Any("error", err)}
		var batchErr *ledger.BatchError
		if errors.As(err, &batchErr) {
			attrs = append(attrs, slog.Int64("invoice_id", batchErr.InvoiceID))
		}
		j.log().Error("post period failed", attrs...)
		return permanent(err)
	}
	j.log().Info("posted period", slog.Int64("group_id", payload.GroupID), slog.String("period", payload.Period), slog.Int("posted", posted))
	return nil
}

func (j *PostPeriodJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PostPeriodJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPostPeriod))
	}
	return slog.Default().With(slog.String("job", TaskPostPeriod))
}
