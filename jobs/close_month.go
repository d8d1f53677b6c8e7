package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/holdco/internal/jobs"
	"github.com/odyssey-erp/holdco/internal/monthclose"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// CloseMonthPayload carries a month-close request for background execution.
type CloseMonthPayload struct {
	GroupID int64               `json:"group_id"`
	Input   monthclose.RunInput `json:"input"`
}

// CloseRunner executes the month-close pipeline.
type CloseRunner interface {
	Run(ctx context.Context, in monthclose.RunInput) (monthclose.Result, error)
}

// CloseMonthJob runs month close from the queue.
type CloseMonthJob struct {
	Runner  CloseRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCloseMonthJob constructs the job handler.
func NewCloseMonthJob(runner CloseRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CloseMonthJob {
	return &CloseMonthJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// NewCloseMonthTask constructs a month-close task. Concurrent runs for the
// same company and period are rejected by the run lock, so a failed close can
// be enqueued again once its cause is fixed.
func NewCloseMonthTask(payload CloseMonthPayload) (*asynq.Task, error) {
	if payload.GroupID <= 0 {
		return nil, errors.New("close month: group id required")
	}
	period, err := shared.NormalizePeriod(payload.Input.Period)
	if err != nil {
		return nil, err
	}
	payload.Input.Period = period
	return newTask(TaskCloseMonth, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(3),
	)
}

// Handle executes the month-close task.
func (j *CloseMonthJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Runner == nil {
		return errors.New("close month: dependencies not configured")
	}
	var payload CloseMonthPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskCloseMonth)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ctx = shared.ContextWithIdentity(ctx, shared.Identity{GroupID: payload.GroupID, Actor: payload.Input.LockedBy})
	logger := j.log().With(slog.Int64("holdco_id", payload.Input.HoldcoID), slog.String("period", payload.Input.Period))

	result, err := j.Runner.Run(ctx, payload.Input)
	if err != nil {
		var stepErr *monthclose.StepError
		if errors.As(err, &stepErr) {
			logger.Error("month close step failed", slog.String("step", string(stepErr.Step)), slog.Any("error", stepErr.Err))
		} else {
			logger.Error("month close failed", slog.Any("error", err))
		}
		return permanent(err)
	}
	tracker.Items(len(result.Allocations))
	logger.Info("month close completed", slog.Int64("run_id", result.RunID), slog.Int("allocations", len(result.Allocations)))
	return nil
}

func (j *CloseMonthJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CloseMonthJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCloseMonth))
	}
	return slog.Default().With(slog.String("job", TaskCloseMonth))
}
