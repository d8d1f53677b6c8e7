package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/holdco/internal/export"
	jobmetrics "github.com/odyssey-erp/holdco/internal/jobs"
	"github.com/odyssey-erp/holdco/internal/monthclose"
	"github.com/odyssey-erp/holdco/internal/periodlock"
	"github.com/odyssey-erp/holdco/internal/shared"
)

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

type runnerStub struct {
	identity shared.Identity
	input    monthclose.RunInput
	err      error
}

func (r *runnerStub) Run(ctx context.Context, in monthclose.RunInput) (monthclose.Result, error) {
	r.identity, _ = shared.IdentityFromContext(ctx)
	r.input = in
	if r.err != nil {
		return monthclose.Result{}, r.err
	}
	return monthclose.Result{RunID: 7}, nil
}

func closeTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewCloseMonthTask(CloseMonthPayload{
		GroupID: 9,
		Input: monthclose.RunInput{
			HoldcoID:  1,
			Period:    "2025-01",
			IssueDate: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			DueDays:   30,
			LockedBy:  "scheduler",
		},
	})
	require.NoError(t, err)
	return task
}

func TestCloseMonthJobRunsWithIdentity(t *testing.T) {
	runner := &runnerStub{}
	job := NewCloseMonthJob(runner, nil, testMetrics())

	require.NoError(t, job.Handle(context.Background(), closeTask(t)))
	assert.Equal(t, shared.Identity{GroupID: 9, Actor: "scheduler"}, runner.identity)
	assert.Equal(t, int64(1), runner.input.HoldcoID)
	assert.Equal(t, 30, runner.input.DueDays)
	assert.True(t, runner.input.IssueDate.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)))
}

func TestCloseMonthJobRetryPolicy(t *testing.T) {
	runner := &runnerStub{err: &monthclose.StepError{Step: monthclose.StepLock, Err: periodlock.ErrPeriodLocked}}
	job := NewCloseMonthJob(runner, nil, testMetrics())

	err := job.Handle(context.Background(), closeTask(t))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, periodlock.ErrPeriodLocked)

	runner.err = shared.ErrRunInProgress
	err = job.Handle(context.Background(), closeTask(t))
	require.ErrorIs(t, err, shared.ErrRunInProgress)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskCloseMonth, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewTasksValidatePayloads(t *testing.T) {
	_, err := NewCloseMonthTask(CloseMonthPayload{Input: monthclose.RunInput{Period: "2025-01"}})
	assert.Error(t, err)

	_, err = NewPostPeriodTask(PostPeriodPayload{GroupID: 9, Period: "2025/01"})
	assert.ErrorIs(t, err, shared.ErrInvalidPeriod)

	task, err := NewPostPeriodTask(PostPeriodPayload{GroupID: 9, Period: " 2025-03 "})
	require.NoError(t, err)
	var payload PostPeriodPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "2025-03", payload.Period)
}

type posterStub struct {
	groupID int64
	period  string
	posted  int
	err     error
}

func (p *posterStub) PostAllInvoicesForPeriod(_ context.Context, groupID int64, period string) (int, error) {
	p.groupID, p.period = groupID, period
	return p.posted, p.err
}

func TestPostPeriodJob(t *testing.T) {
	poster := &posterStub{posted: 4}
	job := NewPostPeriodJob(poster, nil, testMetrics())
	task, err := NewPostPeriodTask(PostPeriodPayload{GroupID: 9, Period: "2025-01"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, int64(9), poster.groupID)
	assert.Equal(t, "2025-01", poster.period)

	poster.err = errors.New("connection reset")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type builderStub struct {
	filters []export.Filter
	err     error
}

func (b *builderStub) Build(_ context.Context, kind export.Kind, f export.Filter) (export.Table, error) {
	if b.err != nil {
		return export.Table{}, b.err
	}
	b.filters = append(b.filters, f)
	return export.Table{Kind: kind, Period: f.Period, Columns: []string{"id"}, Rows: [][]any{{int64(1)}}}, nil
}

type storeStub struct {
	objects map[string]string
}

func (s *storeStub) Put(_ context.Context, key, contentType string, body []byte) (string, error) {
	if s.objects == nil {
		s.objects = map[string]string{}
	}
	s.objects["exports/"+key] = contentType + "|" + string(body)
	return "exports/" + key, nil
}

type groupsStub []int64

func (g groupsStub) ListGroupIDs(context.Context) ([]int64, error) { return g, nil }

func TestExportPeriodJobUploadsEveryKindForPreviousPeriod(t *testing.T) {
	builder, store := &builderStub{}, &storeStub{}
	job := NewExportPeriodJob(builder, store, groupsStub{9, 12}, nil, testMetrics())
	job.WithClock(func() time.Time { return time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC) })
	job.newID = func() string { return "run-1" }

	task, err := NewExportPeriodTask(ExportPeriodPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, store.objects, 2*len(export.Kinds))
	body, ok := store.objects["exports/group-9/2025-02/run-1/payments_2025-02.csv"]
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(body, "text/csv; charset=utf-8|id\r\n1\r\n"))
	for _, f := range builder.filters {
		assert.Equal(t, "2025-02", f.Period)
	}
}

func TestExportPeriodJobSingleGroupAndFailure(t *testing.T) {
	builder, store := &builderStub{}, &storeStub{}
	job := NewExportPeriodJob(builder, store, nil, nil, testMetrics())
	task, err := NewExportPeriodTask(ExportPeriodPayload{GroupID: 9, Period: "2025-01"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Len(t, store.objects, len(export.Kinds))

	builder.err = export.ErrGroupRequired
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type cleanerStub struct {
	olderThan time.Duration
}

func (c *cleanerStub) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return 3, nil
}

func TestIdempotencyCleanupJobUsesTTL(t *testing.T) {
	cleaner := &cleanerStub{}
	job := NewIdempotencyCleanupJob(cleaner, 48*time.Hour, nil, testMetrics())

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 48*time.Hour, cleaner.olderThan)

	task, err := NewIdempotencyCleanupTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, time.Hour, cleaner.olderThan)
}

func TestScheduleRegistersCronTasks(t *testing.T) {
	entries, err := Schedule(ScheduleConfig{ExportCron: "0 2 1 * *", IdempotencyCleanupCron: "@hourly", IdempotencyTTL: time.Hour})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, TaskExportPeriod, entries[0].Task.Type())
	assert.Equal(t, TaskIdempotencyCleanup, entries[1].Task.Type())

	entries, err = Schedule(ScheduleConfig{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type enqueuerStub struct {
	tasks []*asynq.Task
}

func (e *enqueuerStub) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (e *enqueuerStub) Close() error { return nil }

func TestClientEnqueues(t *testing.T) {
	stub := &enqueuerStub{}
	client := &Client{client: stub}

	_, err := client.EnqueuePostPeriod(context.Background(), PostPeriodPayload{GroupID: 9, Period: "2025-01"})
	require.NoError(t, err)
	_, err = client.EnqueueExportPeriod(context.Background(), ExportPeriodPayload{Period: "2025-01"})
	require.NoError(t, err)
	_, err = client.EnqueueIdempotencyCleanup(context.Background(), 0)
	require.NoError(t, err)
	_, err = client.EnqueuePostPeriod(context.Background(), PostPeriodPayload{Period: "2025-01"})
	require.Error(t, err)

	require.Len(t, stub.tasks, 3)
	assert.Equal(t, TaskPostPeriod, stub.tasks[0].Type())
	assert.Equal(t, TaskExportPeriod, stub.tasks[1].Type())
	assert.NoError(t, client.Close())
}

type inspectorStub map[string]*asynq.QueueInfo

func (i inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := i[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHandlerReportsQueues(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(inspectorStub{QueueDefault: {Queue: QueueDefault, Pending: 2, Retry: 1}}, nil).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue":"critical","pending":0`)
	assert.Contains(t, rec.Body.String(), `"queue":"default","pending":2,"active":0,"scheduled":0,"retry":1`)
}
