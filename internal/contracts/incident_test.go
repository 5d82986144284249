package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIncident() *Incident {
	now := time.Now().UTC()
	return &Incident{
		ID:          "INC-1001",
		Title:       "Checkout latency spike",
		Description: "p99 latency on checkout exceeded 5s",
		Severity:    SeverityHigh,
		Status:      StatusNew,
		Context: EnvironmentContext{
			Application: "shop",
			Environment: "production",
			Component:   "checkout-service",
		},
		Logs:           []LogMessage{},
		CodeReferences: []CodeReference{},
		Metrics:        []Metric{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestIncidentValidate(t *testing.T) {
	t.Run("valid incident passes", func(t *testing.T) {
		require.NoError(t, validIncident().Validate())
	})

	t.Run("missing id fails", func(t *testing.T) {
		incident := validIncident()
		incident.ID = ""
		assert.Error(t, incident.Validate())
	})

	t.Run("unknown severity fails", func(t *testing.T) {
		incident := validIncident()
		incident.Severity = "catastrophic"
		assert.Error(t, incident.Validate())
	})

	t.Run("unknown status fails", func(t *testing.T) {
		incident := validIncident()
		incident.Status = "pending"
		assert.Error(t, incident.Validate())
	})

	t.Run("incomplete context fails", func(t *testing.T) {
		incident := validIncident()
		incident.Context.Component = ""
		assert.Error(t, incident.Validate())
	})

	t.Run("negative code reference line fails", func(t *testing.T) {
		incident := validIncident()
		incident.CodeReferences = []CodeReference{
			{FilePath: "internal/checkout/cart.go", LineNumber: -5, FunctionName: "Total"},
		}
		assert.Error(t, incident.Validate())
	})

	t.Run("updated_at before created_at fails", func(t *testing.T) {
		incident := validIncident()
		incident.UpdatedAt = incident.CreatedAt.Add(-time.Minute)
		assert.Error(t, incident.Validate())
	})
}

func TestIncidentAddLog(t *testing.T) {
	incident := validIncident()
	before := incident.UpdatedAt

	require.NoError(t, incident.AddLog("error", "connection refused"))
	require.Len(t, incident.Logs, 1)
	assert.Equal(t, "error", incident.Logs[0].Level)
	assert.Equal(t, "connection refused", incident.Logs[0].Message)
	assert.False(t, incident.Logs[0].Timestamp.IsZero())
	assert.False(t, incident.UpdatedAt.Before(before))

	err := incident.AddLog("", "no level")
	assert.Error(t, err)
	assert.Len(t, incident.Logs, 1)

	err = incident.AddLog("warn", "")
	assert.Error(t, err)
	assert.Len(t, incident.Logs, 1)
}

func TestIncidentSetMonitoringData(t *testing.T) {
	incident := validIncident()
	require.NoError(t, incident.AddLog("info", "caller supplied log"))

	data := MonitoringData{
		Metrics: []Metric{{Name: "cpu_usage", Value: 0.92, Type: MetricGauge, Timestamp: time.Now().UTC()}},
		Logs:    []LogMessage{{Timestamp: time.Now().UTC(), Level: "error", Message: "OOM killed"}},
	}
	incident.SetMonitoringData(data)

	require.Len(t, incident.Logs, 1)
	assert.Equal(t, "OOM killed", incident.Logs[0].Message)
	require.Len(t, incident.Metrics, 1)
	assert.Equal(t, "cpu_usage", incident.Metrics[0].Name)
}

func TestNewFailureResult(t *testing.T) {
	result := NewFailureResult(assert.AnError)

	assert.True(t, result.Failed())
	assert.Equal(t, assert.AnError.Error(), result.Error)
	assert.Equal(t, "Analysis failed", result.RootCause)
	assert.Equal(t, "Analysis failed", result.CodeAnalysis)
	assert.Equal(t, "Analysis failed", result.PerformanceAnalysis)
	assert.Nil(t, result.Metadata)
}

func TestIncidentStateMutators(t *testing.T) {
	state := NewIncidentState(validIncident())
	initial := state.LastUpdated

	state.AddConversationMessage("system", "Incident created", "system")
	require.Len(t, state.ConversationHistory, 1)
	assert.Equal(t, "Incident created", state.ConversationHistory[0].Content)

	state.AddAnalysisStep("root_cause_analysis",
		map[string]interface{}{"logs_count": 3},
		map[string]interface{}{"analysis": "disk full"},
		0.8,
	)
	require.Len(t, state.AnalysisSteps, 1)
	assert.Equal(t, 0.8, state.ConfidenceScores["root_cause_analysis"])

	state.SetAnalysisResults(&AnalysisResult{RootCause: "disk full"})
	require.NotNil(t, state.AnalysisResults)

	assert.False(t, state.LastUpdated.Before(initial))
}
