package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	tracker := m.Track("close:month")
	tracker.Items(3)
	require.NoError(t, tracker.End(nil))

	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("close:month").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("close:month", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("close:month", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("close:month")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("close:month")))
}

func TestNilMetricsTrackerIsNoop(t *testing.T) {
	var m *Metrics
	tracker := m.Track("export:period")
	tracker.Items(5)
	assert.NoError(t, tracker.End(nil))
}
