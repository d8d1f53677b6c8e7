package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/holdco/internal/jobs"
)

// KeyCleaner removes stale idempotency records.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob purges Idempotency-Key records past their TTL.
type IdempotencyCleanupJob struct {
	Cleaner KeyCleaner
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob constructs the job handler.
func NewIdempotencyCleanupJob(cleaner KeyCleaner, ttl time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Cleaner: cleaner, TTL: ttl, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup task.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Cleaner == nil {
		return errors.New("idempotency cleanup: dependencies not configured")
	}
	var payload CleanupPayload
	if len(task.Payload()) > 0 {
		if err := decode(task, &payload); err != nil {
			return err
		}
	}
	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = j.TTL
	}
	if olderThan <= 0 {
		olderThan = 24 * time.Hour
	}

	tracker := j.metrics().Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Cleaner.Cleanup(ctx, olderThan)
	if err != nil {
		j.log().Error("cleanup failed", slog.Any("error", err))
		return err
	}
	tracker.Items(int(removed))
	j.log().Info("removed expired idempotency keys", slog.Int64("removed", removed), slog.Duration("older_than", olderThan))
	return nil
}

func (j *IdempotencyCleanupJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IdempotencyCleanupJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencyCleanup))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencyCleanup))
}
