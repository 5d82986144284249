package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/internal/memory"
	"github.com/incident-agent/backend/internal/nlp"
	"github.com/incident-agent/backend/pkg/logger"
)

// Analyzer coordinates one incident analysis: it acquires or creates
// the incident state, records system messages around the pipeline
// call, and always persists the final state whether the pipeline
// succeeded or not.
type Analyzer struct {
	store     *memory.ContextStore
	processor *nlp.Processor
}

func NewAnalyzer(store *memory.ContextStore, processor *nlp.Processor) *Analyzer {
	return &Analyzer{
		store:     store,
		processor: processor,
	}
}

func (a *Analyzer) Analyze(ctx context.Context, incident *contracts.Incident) *contracts.AnalysisResult {
	logger.Info("Analyzing incident", zap.String("incident_id", incident.ID))

	state := a.getOrCreateState(incident)

	state.AddConversationMessage("system",
		fmt.Sprintf("Starting incident analysis at %s", time.Now().UTC().Format(time.RFC3339)),
		"system",
	)

	results := a.processor.AnalyzeIncident(ctx, incident)

	// Second line of defense; the pipeline contract is to always
	// return a well-formed result, so this should not trigger.
	if results == nil {
		errMsg := "Critical error in incident analysis: pipeline returned no result"
		logger.Error(errMsg, zap.String("incident_id", incident.ID))
		state.AddConversationMessage("system", errMsg, "error")
		a.store.Save(state)
		return contracts.NewFailureResult(fmt.Errorf("pipeline returned no result"))
	}

	if results.Failed() {
		logger.Error("Analysis failed for incident",
			zap.String("incident_id", incident.ID),
			zap.String("error", results.Error),
		)
		state.AddConversationMessage("system", "Analysis failed: "+results.Error, "error")
	} else {
		logger.Info("Analysis completed successfully", zap.String("incident_id", incident.ID))
		a.recordCompletion(state, results)
	}

	a.store.Save(state)
	return results
}

func (a *Analyzer) getOrCreateState(incident *contracts.Incident) *contracts.IncidentState {
	state, err := a.store.Get(incident.ID)
	if err == nil {
		logger.Debug("Retrieved existing state for incident", zap.String("incident_id", incident.ID))
		return state
	}

	logger.Info("Creating new state for incident", zap.String("incident_id", incident.ID))
	state = contracts.NewIncidentState(incident)
	state.AddConversationMessage("system", "Incident analysis initiated", "system")
	a.store.Save(state)
	return state
}

func (a *Analyzer) recordCompletion(state *contracts.IncidentState, results *contracts.AnalysisResult) {
	state.SetAnalysisResults(results)
	state.AddConversationMessage("system", "Analysis completed successfully", "system")

	if results.Metadata != nil {
		state.AddAnalysisStep("analysis_completion",
			map[string]interface{}{},
			metadataMap(results.Metadata),
			0.0,
		)
	}
}

func metadataMap(md *contracts.AnalysisMetadata) map[string]interface{} {
	return map[string]interface{}{
		"analyzed_at":              md.AnalyzedAt.Format(time.RFC3339),
		"monitoring_data_included": md.MonitoringDataIncluded,
		"analysis_coverage": map[string]interface{}{
			"logs_analyzed":    md.AnalysisCoverage.LogsAnalyzed,
			"metrics_analyzed": md.AnalysisCoverage.MetricsAnalyzed,
			"has_error_logs":   md.AnalysisCoverage.HasErrorLogs,
		},
	}
}
