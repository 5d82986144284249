package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incident-agent/backend/internal/contracts"
)

type stubMetricsSource struct {
	metrics []contracts.Metric
	err     error
	calls   int
}

func (s *stubMetricsSource) QueryMetrics(_ context.Context, _ contracts.MonitoringQuery) ([]contracts.Metric, error) {
	s.calls++
	return s.metrics, s.err
}

type stubLogsSource struct {
	logs  []contracts.LogMessage
	err   error
	calls int
}

func (s *stubLogsSource) QueryLogs(_ context.Context, _ contracts.MonitoringQuery) ([]contracts.LogMessage, error) {
	s.calls++
	return s.logs, s.err
}

type stubCache struct {
	entries map[string]contracts.MonitoringData
	getErr  error
	sets    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: map[string]contracts.MonitoringData{}}
}

func (s *stubCache) GetMonitoringData(_ context.Context, queryHash string) (contracts.MonitoringData, bool, error) {
	if s.getErr != nil {
		return contracts.MonitoringData{}, false, s.getErr
	}
	data, ok := s.entries[queryHash]
	return data, ok, nil
}

func (s *stubCache) SetMonitoringData(_ context.Context, queryHash string, data contracts.MonitoringData) error {
	s.sets++
	s.entries[queryHash] = data
	return nil
}

func validQuery() contracts.MonitoringQuery {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return contracts.MonitoringQuery{
		MetricName: "*",
		LogLevel:   "error",
		DateRange:  contracts.DateTimeRange{Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
	}
}

func sampleMetrics() []contracts.Metric {
	return []contracts.Metric{
		{Name: "cpu_usage", Value: 0.92, Type: contracts.MetricGauge, Timestamp: time.Now().UTC()},
	}
}

func sampleLogs() []contracts.LogMessage {
	return []contracts.LogMessage{
		{Timestamp: time.Now().UTC(), Level: "error", Message: "timeout"},
	}
}

func TestSystemQueryBothSources(t *testing.T) {
	system := NewSystem(
		&stubMetricsSource{metrics: sampleMetrics()},
		&stubLogsSource{logs: sampleLogs()},
		nil,
	)

	data := system.Query(context.Background(), validQuery())

	assert.Len(t, data.Metrics, 1)
	assert.Len(t, data.Logs, 1)
	assert.False(t, data.Empty())
}

func TestSystemQueryDegradesOnSourceFailure(t *testing.T) {
	t.Run("metrics source fails", func(t *testing.T) {
		system := NewSystem(
			&stubMetricsSource{err: errors.New("prometheus down")},
			&stubLogsSource{logs: sampleLogs()},
			nil,
		)

		data := system.Query(context.Background(), validQuery())

		assert.Empty(t, data.Metrics)
		assert.Len(t, data.Logs, 1)
	})

	t.Run("logs source fails", func(t *testing.T) {
		system := NewSystem(
			&stubMetricsSource{metrics: sampleMetrics()},
			&stubLogsSource{err: errors.New("coralogix down")},
			nil,
		)

		data := system.Query(context.Background(), validQuery())

		assert.Len(t, data.Metrics, 1)
		assert.Empty(t, data.Logs)
	})

	t.Run("both sources fail", func(t *testing.T) {
		system := NewSystem(
			&stubMetricsSource{err: errors.New("down")},
			&stubLogsSource{err: errors.New("down")},
			nil,
		)

		data := system.Query(context.Background(), validQuery())
		assert.True(t, data.Empty())
		assert.NotNil(t, data.Metrics)
		assert.NotNil(t, data.Logs)
	})
}

func TestSystemQueryInvalidRange(t *testing.T) {
	metricsSource := &stubMetricsSource{metrics: sampleMetrics()}
	system := NewSystem(metricsSource, &stubLogsSource{}, nil)

	query := validQuery()
	query.DateRange.End = query.DateRange.Start

	data := system.Query(context.Background(), query)

	assert.True(t, data.Empty())
	assert.Equal(t, 0, metricsSource.calls)
}

func TestSystemQueryNilSources(t *testing.T) {
	system := NewSystem(nil, nil, nil)

	data := system.Query(context.Background(), validQuery())
	assert.True(t, data.Empty())
}

func TestSystemQueryCaching(t *testing.T) {
	cache := newStubCache()
	metricsSource := &stubMetricsSource{metrics: sampleMetrics()}
	logsSource := &stubLogsSource{logs: sampleLogs()}
	system := NewSystem(metricsSource, logsSource, cache)

	first := system.Query(context.Background(), validQuery())
	require.False(t, first.Empty())
	assert.Equal(t, 1, cache.sets)

	second := system.Query(context.Background(), validQuery())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, metricsSource.calls)
	assert.Equal(t, 1, logsSource.calls)
}

func TestSystemQueryCacheLookupFailureFallsThrough(t *testing.T) {
	cache := newStubCache()
	cache.getErr = errors.New("redis down")
	metricsSource := &stubMetricsSource{metrics: sampleMetrics()}
	system := NewSystem(metricsSource, &stubLogsSource{logs: sampleLogs()}, cache)

	data := system.Query(context.Background(), validQuery())

	assert.False(t, data.Empty())
	assert.Equal(t, 1, metricsSource.calls)
}

func TestSystemQueryEmptyResultNotCached(t *testing.T) {
	cache := newStubCache()
	system := NewSystem(&stubMetricsSource{}, &stubLogsSource{}, cache)

	data := system.Query(context.Background(), validQuery())

	assert.True(t, data.Empty())
	assert.Equal(t, 0, cache.sets)
}

func TestHashQueryStable(t *testing.T) {
	a := hashQuery(validQuery())
	b := hashQuery(validQuery())
	assert.Equal(t, a, b)

	other := validQuery()
	other.LogLevel = "warn"
	assert.NotEqual(t, a, hashQuery(other))
}
