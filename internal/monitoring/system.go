package monitoring

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/internal/metrics"
	"github.com/incident-agent/backend/pkg/logger"
	"github.com/incident-agent/backend/pkg/utils"
)

type MetricsSource interface {
	QueryMetrics(ctx context.Context, query contracts.MonitoringQuery) ([]contracts.Metric, error)
}

type LogsSource interface {
	QueryLogs(ctx context.Context, query contracts.MonitoringQuery) ([]contracts.LogMessage, error)
}

// Cache is an optional short-TTL cache for query results.
type Cache interface {
	GetMonitoringData(ctx context.Context, queryHash string) (contracts.MonitoringData, bool, error)
	SetMonitoringData(ctx context.Context, queryHash string, data contracts.MonitoringData) error
}

// System is the monitoring gateway. It queries the logs and metrics
// sources independently and never propagates backend failure: a
// failing source contributes empty results and a warning, so analysis
// proceeds with whatever evidence exists.
type System struct {
	metricsSource MetricsSource
	logsSource    LogsSource
	cache         Cache
}

// NewSystem creates a gateway. cache may be nil; a nil source always
// contributes empty results.
func NewSystem(metricsSource MetricsSource, logsSource LogsSource, cache Cache) *System {
	return &System{
		metricsSource: metricsSource,
		logsSource:    logsSource,
		cache:         cache,
	}
}

func (s *System) Query(ctx context.Context, query contracts.MonitoringQuery) contracts.MonitoringData {
	if err := query.Validate(); err != nil {
		logger.Warn("Invalid monitoring query", zap.Error(err))
		return contracts.MonitoringData{Metrics: []contracts.Metric{}, Logs: []contracts.LogMessage{}}
	}

	queryHash := hashQuery(query)

	if s.cache != nil {
		if data, ok, err := s.cache.GetMonitoringData(ctx, queryHash); err != nil {
			logger.Warn("Monitoring cache lookup failed", zap.Error(err))
		} else if ok {
			metrics.CacheHits.WithLabelValues("monitoring").Inc()
			return data
		} else {
			metrics.CacheMisses.WithLabelValues("monitoring").Inc()
		}
	}

	data := contracts.MonitoringData{
		Metrics: s.queryMetrics(ctx, query),
		Logs:    s.queryLogs(ctx, query),
	}

	logger.Info("Monitoring data retrieved",
		zap.Int("metrics", len(data.Metrics)),
		zap.Int("logs", len(data.Logs)),
	)

	if s.cache != nil && !data.Empty() {
		if err := s.cache.SetMonitoringData(ctx, queryHash, data); err != nil {
			logger.Warn("Failed to cache monitoring data", zap.Error(err))
		}
	}

	return data
}

func (s *System) queryMetrics(ctx context.Context, query contracts.MonitoringQuery) []contracts.Metric {
	if s.metricsSource == nil {
		return []contracts.Metric{}
	}

	result, err := s.metricsSource.QueryMetrics(ctx, query)
	if err != nil {
		logger.Warn("Metrics source query failed", zap.Error(err))
		metrics.MonitoringQueryTotal.WithLabelValues("metrics", "error").Inc()
		return []contracts.Metric{}
	}

	metrics.MonitoringQueryTotal.WithLabelValues("metrics", "ok").Inc()
	metrics.MonitoringRecordsRetrieved.WithLabelValues("metrics").Observe(float64(len(result)))
	return result
}

func (s *System) queryLogs(ctx context.Context, query contracts.MonitoringQuery) []contracts.LogMessage {
	if s.logsSource == nil {
		return []contracts.LogMessage{}
	}

	result, err := s.logsSource.QueryLogs(ctx, query)
	if err != nil {
		logger.Warn("Logs source query failed", zap.Error(err))
		metrics.MonitoringQueryTotal.WithLabelValues("logs", "error").Inc()
		return []contracts.LogMessage{}
	}

	metrics.MonitoringQueryTotal.WithLabelValues("logs", "ok").Inc()
	metrics.MonitoringRecordsRetrieved.WithLabelValues("logs").Observe(float64(len(result)))
	return result
}

func hashQuery(query contracts.MonitoringQuery) string {
	key := fmt.Sprintf("%s|%s|%s|%s",
		query.MetricName,
		query.LogLevel,
		strconv.FormatInt(query.DateRange.Start.Unix(), 10),
		strconv.FormatInt(query.DateRange.End.Unix(), 10),
	)
	return utils.HashString(key)
}
