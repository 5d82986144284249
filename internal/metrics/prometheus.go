package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incident_agent_analysis_duration_seconds",
			Help:    "Analysis stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_analysis_total",
			Help: "Total number of incident analyses run",
		},
		[]string{"status"},
	)

	IncidentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "incident_agent_incidents_created_total",
			Help: "Total incidents created",
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	MonitoringQueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_monitoring_query_total",
			Help: "Monitoring backend queries by source and outcome",
		},
		[]string{"source", "status"},
	)

	MonitoringRecordsRetrieved = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "incident_agent_monitoring_records_retrieved",
			Help:    "Number of monitoring records retrieved per query",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
		},
		[]string{"source"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incident_agent_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ConfidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "incident_agent_confidence_score",
			Help:    "Recorded analysis step confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	StoredStates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "incident_agent_stored_states",
			Help: "Incident states currently held in the context store",
		},
	)
)

func Init() {
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AnalysisTotal)
	prometheus.MustRegister(IncidentsCreated)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(MonitoringQueryTotal)
	prometheus.MustRegister(MonitoringRecordsRetrieved)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ConfidenceScore)
	prometheus.MustRegister(StoredStates)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
