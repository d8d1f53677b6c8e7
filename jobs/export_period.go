package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/holdco/internal/export"
	jobmetrics "github.com/odyssey-erp/holdco/internal/jobs"
	"github.com/odyssey-erp/holdco/internal/shared"
)

// TableBuilder renders one export table.
type TableBuilder interface {
	Build(ctx context.Context, kind export.Kind, f export.Filter) (export.Table, error)
}

// ObjectStore uploads rendered files.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// GroupLister enumerates the groups to export when the payload names none.
type GroupLister interface {
	ListGroupIDs(ctx context.Context) ([]int64, error)
}

// ExportPeriodJob renders every export kind as CSV per group and uploads it.
type ExportPeriodJob struct {
	Builder TableBuilder
	Store   ObjectStore
	Groups  GroupLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
	newID   func() string
}

// NewExportPeriodJob constructs the job handler.
func NewExportPeriodJob(builder TableBuilder, store ObjectStore, groups GroupLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExportPeriodJob {
	return &ExportPeriodJob{
		Builder: builder,
		Store:   store,
		Groups:  groups,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newID: func() string {
			return uuid.NewString()
		},
	}
}

// Handle executes the export task.
func (j *ExportPeriodJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Builder == nil || j.Store == nil {
		return errors.New("export period: dependencies not configured")
	}
	var payload ExportPeriodPayload
	if err := decode(task, &payload); err != nil {
		return err
	}

	tracker := j.metrics().Track(TaskExportPeriod)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	period := payload.Period
	if period == "" {
		period = shared.PreviousPeriod(j.now())
	}
	groupIDs, err := j.resolveGroups(ctx, payload.GroupID)
	if err != nil {
		j.log().Error("resolve groups", slog.Any("error", err))
		return err
	}

	start := j.now()
	runID := j.newID()
	uploaded := 0
	for _, groupID := range groupIDs {
		for _, kind := range export.Kinds {
			key, err := j.exportOne(ctx, groupID, period, kind, runID)
			if err != nil {
				j.log().Error("export failed", slog.Int64("group_id", groupID), slog.String("kind", string(kind)), slog.Any("error", err))
				return permanent(err)
			}
			uploaded++
			j.log().Debug("export uploaded", slog.String("key", key))
		}
	}
	tracker.Items(uploaded)
	j.log().Info("exported period", slog.String("period", period), slog.Int("groups", len(groupIDs)),
		slog.Int("objects", uploaded), slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *ExportPeriodJob) exportOne(ctx context.Context, groupID int64, period string, kind export.Kind, runID string) (string, error) {
	table, err := j.Builder.Build(ctx, kind, export.Filter{GroupID: groupID, Period: period})
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, table); err != nil {
		return "", fmt.Errorf("render %s: %w", kind, err)
	}
	key := fmt.Sprintf("group-%d/%s/%s/%s", groupID, period, runID, export.FileName(table, export.FormatCSV))
	return j.Store.Put(ctx, key, export.ContentType(export.FormatCSV), buf.Bytes())
}

func (j *ExportPeriodJob) resolveGroups(ctx context.Context, groupID int64) ([]int64, error) {
	if groupID > 0 {
		return []int64{groupID}, nil
	}
	if j.Groups == nil {
		return nil, errors.New("export period: group lister not configured")
	}
	return j.Groups.ListGroupIDs(ctx)
}

func (j *ExportPeriodJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ExportPeriodJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskExportPeriod))
	}
	return slog.Default().With(slog.String("job", TaskExportPeriod))
}

func (j *ExportPeriodJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ExportPeriodJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
