package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/holdco/internal/jobs"
	"github.com/odyssey-erp/holdco/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries month-close work ahead of reporting jobs.
	QueueCritical = "critical"

	// TaskCloseMonth runs the month-close pipeline for one holding company.
	TaskCloseMonth = "close:month"
	// TaskPostPeriod posts every non-void invoice of a group period.
	TaskPostPeriod = "ledger:post_period"
	// TaskExportPeriod renders period exports and uploads them to object storage.
	TaskExportPeriod = "export:period"
	// TaskIdempotencyCleanup purges expired Idempotency-Key records.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PostPeriodPayload scopes a ledger posting run.
type PostPeriodPayload struct {
	GroupID int64  `json:"group_id"`
	Period  string `json:"period"`
}

// ExportPeriodPayload scopes an export run. GroupID zero exports every group;
// an empty period means the month before the run.
type ExportPeriodPayload struct {
	GroupID int64  `json:"group_id,omitempty"`
	Period  string `json:"period,omitempty"`
}

// CleanupPayload configures the idempotency cleanup. Zero keeps the job default.
type CleanupPayload struct {
	OlderThan time.Duration `json:"older_than,omitempty"`
}

// NewPostPeriodTask constructs a ledger posting task.
func NewPostPeriodTask(payload PostPeriodPayload) (*asynq.Task, error) {
	if payload.GroupID <= 0 {
		return nil, errors.New("post period: group id required")
	}
	period, err := shared.NormalizePeriod(payload.Period)
	if err != nil {
		return nil, err
	}
	payload.Period = period
	return newTask(TaskPostPeriod, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// NewExportPeriodTask constructs an export task.
func NewExportPeriodTask(payload ExportPeriodPayload) (*asynq.Task, error) {
	if payload.Period != "" {
		period, err := shared.NormalizePeriod(payload.Period)
		if err != nil {
			return nil, err
		}
		payload.Period = period
	}
	return newTask(TaskExportPeriod, payload, asynq.Queue(QueueDefault), asynq.MaxRetry(5))
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{OlderThan: olderThan}, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

func newTask(taskType string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode payload: %w", taskType, err)
	}
	return asynq.NewTask(taskType, body, opts...), nil
}

// decode unmarshals a payload; malformed payloads are never retried.
func decode(task *asynq.Task, dest any) error {
	if err := json.Unmarshal(task.Payload(), dest); err != nil {
		return fmt.Errorf("%s: decode payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// permanent marks validation, configuration and not-found failures as not
// retryable; anything else goes back to asynq for retry.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrConfiguration) || errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
