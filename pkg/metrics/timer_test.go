package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimerStartsNow(t *testing.T) {
	timer := NewTimer()

	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestObserveDurationVecRecordsOneSample(t *testing.T) {
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_phase_duration_seconds",
			Help:    "Test phase duration histogram",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(histogram))

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	timer.ObserveDurationVec(histogram, "filter")

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Len(t, families[0].Metric, 1)

	h := families[0].Metric[0].Histogram
	assert.Equal(t, uint64(1), h.GetSampleCount())
	assert.Greater(t, h.GetSampleSum(), 0.0)
}
