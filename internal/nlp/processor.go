package nlp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/internal/llm"
	"github.com/incident-agent/backend/internal/memory"
	"github.com/incident-agent/backend/internal/metrics"
	"github.com/incident-agent/backend/pkg/logger"
)

// Completer is the language-model completion capability.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// MonitoringSource provides monitoring evidence for a time window and
// never fails: backend errors degrade to empty data.
type MonitoringSource interface {
	Query(ctx context.Context, query contracts.MonitoringQuery) contracts.MonitoringData
}

// Placeholder until real per-stage confidence scoring exists.
const stageConfidence = 0.8

// monitoringWindow is how far around the incident creation time the
// pipeline looks for monitoring evidence.
const monitoringWindow = time.Hour

const (
	stepRootCause   = "root_cause_analysis"
	stepCode        = "code_analysis"
	stepPerformance = "performance_analysis"
)

// Processor runs the three-stage analysis pipeline for one incident:
// fetch monitoring evidence, merge it into the incident, run the root
// cause, code and performance stages in order, and record every step
// into the incident state. It always returns a well-formed result;
// stage failures produce the fixed failure shape instead of an error.
type Processor struct {
	store      *memory.ContextStore
	monitoring MonitoringSource
	completer  Completer
}

func NewProcessor(store *memory.ContextStore, monitoring MonitoringSource, completer Completer) *Processor {
	return &Processor{
		store:      store,
		monitoring: monitoring,
		completer:  completer,
	}
}

func (p *Processor) AnalyzeIncident(ctx context.Context, incident *contracts.Incident) *contracts.AnalysisResult {
	if incident == nil || incident.ID == "" {
		return p.failBeforeState(incident, errors.New("malformed incident: missing id"))
	}

	runID := uuid.New().String()
	logger.Info("Analyzing incident",
		zap.String("incident_id", incident.ID),
		zap.String("run_id", runID),
	)

	monitoringData := p.fetchMonitoringData(ctx, incident)

	state, err := p.store.Get(incident.ID)
	if err != nil {
		logger.Info("Creating new state for incident", zap.String("incident_id", incident.ID))
		state = contracts.NewIncidentState(incident)
		p.store.Save(state)
	}

	// Retrieved monitoring evidence supersedes caller-supplied logs
	// and metrics.
	incident.SetMonitoringData(monitoringData)
	state.SetIncident(incident)
	p.store.Save(state)

	incidentDetails := incident.Description
	logsText := formatLogs(monitoringData.Logs)
	codeRefsText := formatCodeReferences(incident.CodeReferences)
	metricsText := formatMetrics(monitoringData.Metrics)

	rootCause, err := p.runStage(ctx, stepRootCause, rootCausePrompt(incidentDetails, logsText, codeRefsText))
	if err != nil {
		return p.failAnalysis(state, err)
	}
	state.AddAnalysisStep(stepRootCause,
		map[string]interface{}{
			"incident_details": incidentDetails,
			"logs_count":       len(monitoringData.Logs),
			"code_refs_count":  len(incident.CodeReferences),
		},
		map[string]interface{}{"analysis": rootCause},
		stageConfidence,
	)

	codeAnalysis, err := p.runStage(ctx, stepCode, codeAnalysisPrompt(codeRefsText))
	if err != nil {
		return p.failAnalysis(state, err)
	}
	state.AddAnalysisStep(stepCode,
		map[string]interface{}{
			"code_refs_count": len(incident.CodeReferences),
		},
		map[string]interface{}{"analysis": codeAnalysis},
		stageConfidence,
	)

	performance, err := p.runStage(ctx, stepPerformance, performancePrompt(incidentDetails, metricsText, logsText))
	if err != nil {
		return p.failAnalysis(state, err)
	}
	state.AddAnalysisStep(stepPerformance,
		map[string]interface{}{
			"metrics_count": len(monitoringData.Metrics),
			"logs_count":    len(monitoringData.Logs),
		},
		map[string]interface{}{"analysis": performance},
		stageConfidence,
	)

	p.store.Save(state)

	result := &contracts.AnalysisResult{
		RootCause:           rootCause,
		CodeAnalysis:        codeAnalysis,
		PerformanceAnalysis: performance,
		Metadata: &contracts.AnalysisMetadata{
			AnalyzedAt:             time.Now().UTC(),
			MonitoringDataIncluded: !monitoringData.Empty(),
			AnalysisCoverage: contracts.AnalysisCoverage{
				LogsAnalyzed:    len(monitoringData.Logs),
				MetricsAnalyzed: len(monitoringData.Metrics),
				HasErrorLogs:    monitoringData.HasErrorLogs(),
			},
		},
	}

	state.SetAnalysisResults(result)
	state.AddConversationMessage("system", "Analysis completed successfully", "summary")
	p.store.Save(state)

	metrics.AnalysisTotal.WithLabelValues("success").Inc()
	logger.Info("Incident analysis completed",
		zap.String("incident_id", incident.ID),
		zap.String("run_id", runID),
		zap.Int("logs_analyzed", len(monitoringData.Logs)),
		zap.Int("metrics_analyzed", len(monitoringData.Metrics)),
	)

	return result
}

func (p *Processor) runStage(ctx context.Context, stage string, req llm.CompletionRequest) (string, error) {
	start := time.Now()

	resp, err := p.completer.Complete(ctx, req)
	metrics.AnalysisDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}

	metrics.ConfidenceScore.Observe(stageConfidence)
	logger.Debug("Analysis stage completed",
		zap.String("stage", stage),
		zap.Int("response_length", len(resp.Content)),
	)
	return resp.Content, nil
}

// fetchMonitoringData derives the [created_at - 1h, created_at + 1h]
// window and queries the gateway for error logs plus all metrics.
// The gateway degrades to empty data instead of failing.
func (p *Processor) fetchMonitoringData(ctx context.Context, incident *contracts.Incident) contracts.MonitoringData {
	query := contracts.MonitoringQuery{
		MetricName: "*",
		LogLevel:   "error",
		DateRange: contracts.DateTimeRange{
			Start: incident.CreatedAt.Add(-monitoringWindow),
			End:   incident.CreatedAt.Add(monitoringWindow),
		},
	}

	data := p.monitoring.Query(ctx, query)
	if data.Empty() {
		logger.Warn("No monitoring data retrieved for incident", zap.String("incident_id", incident.ID))
	}
	return data
}

// failAnalysis records a stage failure in the state and returns the
// fixed failure shape. Completed stages are not rolled back, so the
// recorded steps remain a replayable audit trail of the partial run.
func (p *Processor) failAnalysis(state *contracts.IncidentState, err error) *contracts.AnalysisResult {
	logger.Error("Error during analysis stages",
		zap.String("incident_id", state.IncidentID),
		zap.Error(err),
	)

	state.AddConversationMessage("system", "Error during analysis: "+err.Error(), "error")

	failed := contracts.NewFailureResult(err)
	state.SetAnalysisResults(failed)
	p.store.Save(state)

	metrics.AnalysisTotal.WithLabelValues("error").Inc()
	return failed
}

// failBeforeState handles failures before any state exists: a minimal
// state is built solely to carry the error message. It is not saved,
// since a malformed incident has no usable id to key it under.
func (p *Processor) failBeforeState(incident *contracts.Incident, err error) *contracts.AnalysisResult {
	logger.Error("Error during incident analysis", zap.Error(err))

	state := &contracts.IncidentState{
		ConversationHistory: []contracts.ConversationMessage{},
		AnalysisSteps:       []contracts.AnalysisStep{},
		ConfidenceScores:    map[string]float64{},
		LastUpdated:         time.Now().UTC(),
	}
	if incident != nil {
		state.IncidentID = incident.ID
		state.Incident = incident
	}
	state.AddConversationMessage("system", "Error during incident analysis: "+err.Error(), "error")

	failed := contracts.NewFailureResult(err)
	state.SetAnalysisResults(failed)

	metrics.AnalysisTotal.WithLabelValues("error").Inc()
	return failed
}
