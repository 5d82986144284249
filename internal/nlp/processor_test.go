package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/internal/llm"
	"github.com/incident-agent/backend/internal/memory"
)

type fakeCompleter struct {
	calls  []llm.CompletionRequest
	failAt int // 1-based call index that fails; 0 means never
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls = append(f.calls, req)
	if f.failAt != 0 && len(f.calls) == f.failAt {
		return nil, errors.New("llm unavailable")
	}
	return &llm.CompletionResponse{Content: fmt.Sprintf("stage %d output", len(f.calls))}, nil
}

type fakeMonitoring struct {
	data    contracts.MonitoringData
	queries []contracts.MonitoringQuery
}

func (f *fakeMonitoring) Query(_ context.Context, query contracts.MonitoringQuery) contracts.MonitoringData {
	f.queries = append(f.queries, query)
	return f.data
}

func testIncident(id string) *contracts.Incident {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &contracts.Incident{
		ID:          id,
		Title:       "Checkout latency spike",
		Description: "p99 latency on checkout exceeded 5s",
		Severity:    contracts.SeverityHigh,
		Status:      contracts.StatusNew,
		Context: contracts.EnvironmentContext{
			Application: "shop",
			Environment: "production",
			Component:   "checkout-service",
		},
		CodeReferences: []contracts.CodeReference{
			{FilePath: "internal/checkout/cart.go", LineNumber: 42, FunctionName: "Total"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func monitoringFixture() contracts.MonitoringData {
	ts := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	return contracts.MonitoringData{
		Metrics: []contracts.Metric{
			{Name: "cpu_usage", Value: 0.92, Type: contracts.MetricGauge, Timestamp: ts},
		},
		Logs: []contracts.LogMessage{
			{Timestamp: ts, Level: "error", Message: "connection pool exhausted"},
		},
	}
}

func TestAnalyzeIncidentSuccess(t *testing.T) {
	store := memory.NewContextStore(nil)
	monitoring := &fakeMonitoring{data: monitoringFixture()}
	completer := &fakeCompleter{}
	processor := NewProcessor(store, monitoring, completer)

	incident := testIncident("INC-1")
	result := processor.AnalyzeIncident(context.Background(), incident)

	require.NotNil(t, result)
	assert.False(t, result.Failed())
	assert.Equal(t, "stage 1 output", result.RootCause)
	assert.Equal(t, "stage 2 output", result.CodeAnalysis)
	assert.Equal(t, "stage 3 output", result.PerformanceAnalysis)

	require.NotNil(t, result.Metadata)
	assert.True(t, result.Metadata.MonitoringDataIncluded)
	assert.Equal(t, 1, result.Metadata.AnalysisCoverage.LogsAnalyzed)
	assert.Equal(t, 1, result.Metadata.AnalysisCoverage.MetricsAnalyzed)
	assert.True(t, result.Metadata.AnalysisCoverage.HasErrorLogs)

	state, err := store.Get("INC-1")
	require.NoError(t, err)

	require.Len(t, state.AnalysisSteps, 3)
	assert.Equal(t, "root_cause_analysis", state.AnalysisSteps[0].StepType)
	assert.Equal(t, "code_analysis", state.AnalysisSteps[1].StepType)
	assert.Equal(t, "performance_analysis", state.AnalysisSteps[2].StepType)
	for _, step := range state.AnalysisSteps {
		assert.Equal(t, 0.8, step.ConfidenceScore)
	}
	assert.Equal(t, 0.8, state.ConfidenceScores["root_cause_analysis"])

	require.NotEmpty(t, state.ConversationHistory)
	last := state.ConversationHistory[len(state.ConversationHistory)-1]
	assert.Equal(t, "Analysis completed successfully", last.Content)

	require.NotNil(t, state.AnalysisResults)
	assert.Equal(t, "stage 1 output", state.AnalysisResults.RootCause)
}

func TestAnalyzeIncidentMonitoringWindow(t *testing.T) {
	store := memory.NewContextStore(nil)
	monitoring := &fakeMonitoring{data: monitoringFixture()}
	processor := NewProcessor(store, monitoring, &fakeCompleter{})

	incident := testIncident("INC-1")
	processor.AnalyzeIncident(context.Background(), incident)

	require.Len(t, monitoring.queries, 1)
	query := monitoring.queries[0]
	assert.Equal(t, "*", query.MetricName)
	assert.Equal(t, "error", query.LogLevel)
	assert.Equal(t, incident.CreatedAt.Add(-time.Hour), query.DateRange.Start)
	assert.Equal(t, incident.CreatedAt.Add(time.Hour), query.DateRange.End)
}

func TestAnalyzeIncidentReplacesLogsWithMonitoringData(t *testing.T) {
	store := memory.NewContextStore(nil)
	monitoring := &fakeMonitoring{data: monitoringFixture()}
	processor := NewProcessor(store, monitoring, &fakeCompleter{})

	incident := testIncident("INC-1")
	require.NoError(t, incident.AddLog("info", "caller supplied log"))

	processor.AnalyzeIncident(context.Background(), incident)

	require.Len(t, incident.Logs, 1)
	assert.Equal(t, "connection pool exhausted", incident.Logs[0].Message)
	require.Len(t, incident.Metrics, 1)
	assert.Equal(t, "cpu_usage", incident.Metrics[0].Name)
}

func TestAnalyzeIncidentStageInputContexts(t *testing.T) {
	store := memory.NewContextStore(nil)
	monitoring := &fakeMonitoring{data: monitoringFixture()}
	processor := NewProcessor(store, monitoring, &fakeCompleter{})

	incident := testIncident("INC-1")
	processor.AnalyzeIncident(context.Background(), incident)

	state, err := store.Get("INC-1")
	require.NoError(t, err)
	require.Len(t, state.AnalysisSteps, 3)

	rootCause := state.AnalysisSteps[0]
	assert.Equal(t, incident.Description, rootCause.InputContext["incident_details"])
	assert.Equal(t, 1, rootCause.InputContext["logs_count"])
	assert.Equal(t, 1, rootCause.InputContext["code_refs_count"])
	assert.Equal(t, "stage 1 output", rootCause.OutputResult["analysis"])

	code := state.AnalysisSteps[1]
	assert.Equal(t, 1, code.InputContext["code_refs_count"])

	performance := state.AnalysisSteps[2]
	assert.Equal(t, 1, performance.InputContext["metrics_count"])
	assert.Equal(t, 1, performance.InputContext["logs_count"])
}

func TestAnalyzeIncidentStageFailure(t *testing.T) {
	store := memory.NewContextStore(nil)
	monitoring := &fakeMonitoring{data: monitoringFixture()}
	completer := &fakeCompleter{failAt: 2}
	processor := NewProcessor(store, monitoring, completer)

	result := processor.AnalyzeIncident(context.Background(), testIncident("INC-1"))

	require.NotNil(t, result)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "llm unavailable")
	assert.Equal(t, "Analysis failed", result.RootCause)
	assert.Equal(t, "Analysis failed", result.CodeAnalysis)
	assert.Equal(t, "Analysis failed", result.PerformanceAnalysis)
	assert.Nil(t, result.Metadata)

	// The completed first stage stays recorded; no later stages run.
	state, err := store.Get("INC-1")
	require.NoError(t, err)
	require.Len(t, state.AnalysisSteps, 1)
	assert.Equal(t, "root_cause_analysis", state.AnalysisSteps[0].StepType)
	assert.Len(t, completer.calls, 2)

	require.NotEmpty(t, state.ConversationHistory)
	last := state.ConversationHistory[len(state.ConversationHistory)-1]
	assert.Contains(t, last.Content, "Error during analysis")

	require.NotNil(t, state.AnalysisResults)
	assert.True(t, state.AnalysisResults.Failed())
}

func TestAnalyzeIncidentEmptyMonitoringUsesSentinels(t *testing.T) {
	store := memory.NewContextStore(nil)
	monitoring := &fakeMonitoring{}
	completer := &fakeCompleter{}
	processor := NewProcessor(store, monitoring, completer)

	incident := testIncident("INC-1")
	incident.CodeReferences = nil

	result := processor.AnalyzeIncident(context.Background(), incident)

	require.NotNil(t, result)
	assert.False(t, result.Failed())
	require.NotNil(t, result.Metadata)
	assert.False(t, result.Metadata.MonitoringDataIncluded)
	assert.Equal(t, 0, result.Metadata.AnalysisCoverage.LogsAnalyzed)

	require.Len(t, completer.calls, 3)
	assert.True(t, strings.Contains(completer.calls[0].UserPrompt, "No logs available"))
	assert.True(t, strings.Contains(completer.calls[0].UserPrompt, "No code references available"))
	assert.True(t, strings.Contains(completer.calls[1].UserPrompt, "No code references available"))
	assert.True(t, strings.Contains(completer.calls[2].UserPrompt, "No metrics available"))
}

func TestAnalyzeIncidentMalformedIncident(t *testing.T) {
	store := memory.NewContextStore(nil)
	processor := NewProcessor(store, &fakeMonitoring{}, &fakeCompleter{})

	result := processor.AnalyzeIncident(context.Background(), nil)
	require.NotNil(t, result)
	assert.True(t, result.Failed())
	assert.Contains(t, result.Error, "missing id")

	result = processor.AnalyzeIncident(context.Background(), &contracts.Incident{})
	require.NotNil(t, result)
	assert.True(t, result.Failed())

	assert.Equal(t, 0, store.Len())
}

func TestAnalyzeIncidentReusesExistingState(t *testing.T) {
	store := memory.NewContextStore(nil)
	incident := testIncident("INC-1")
	existing := contracts.NewIncidentState(incident)
	existing.AddConversationMessage("user", "please investigate", "system")
	store.Save(existing)

	processor := NewProcessor(store, &fakeMonitoring{data: monitoringFixture()}, &fakeCompleter{})
	processor.AnalyzeIncident(context.Background(), incident)

	state, err := store.Get("INC-1")
	require.NoError(t, err)
	assert.Same(t, existing, state)
	assert.Equal(t, "please investigate", state.ConversationHistory[0].Content)
}
