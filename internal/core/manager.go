package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/internal/memory"
	"github.com/incident-agent/backend/internal/metrics"
	"github.com/incident-agent/backend/pkg/logger"
)

// Manager owns the incident lifecycle: create, read, update, resolve,
// append log and analyze. Work on one incident id is serialized with
// a keyed mutex so concurrent requests cannot lose each other's
// history writes. Unlike the lower layers, Manager surfaces failures
// to its caller as errors.
type Manager struct {
	store    *memory.ContextStore
	analyzer *Analyzer
	locks    *memory.KeyedMutex
}

func NewManager(store *memory.ContextStore, analyzer *Analyzer) *Manager {
	return &Manager{
		store:    store,
		analyzer: analyzer,
		locks:    memory.NewKeyedMutex(),
	}
}

// Create validates and stores a new incident with a fresh state.
func (m *Manager) Create(incident *contracts.Incident) (string, error) {
	if incident == nil {
		return "", fmt.Errorf("failed to create incident: incident is required")
	}

	now := time.Now().UTC()
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.CreatedAt
	}
	if incident.Logs == nil {
		incident.Logs = []contracts.LogMessage{}
	}
	if incident.CodeReferences == nil {
		incident.CodeReferences = []contracts.CodeReference{}
	}
	if incident.Metrics == nil {
		incident.Metrics = []contracts.Metric{}
	}

	if err := incident.Validate(); err != nil {
		return "", fmt.Errorf("failed to create incident: %w", err)
	}

	m.locks.Lock(incident.ID)
	defer m.locks.Unlock(incident.ID)

	logger.Info("Creating incident state", zap.String("incident_id", incident.ID))

	state := contracts.NewIncidentState(incident)
	state.AddConversationMessage("system", "Incident created", "system")
	m.store.Save(state)

	metrics.IncidentsCreated.Inc()
	metrics.StoredStates.Set(float64(m.store.Len()))

	return incident.ID, nil
}

// Get returns the incident snapshot for the id.
func (m *Manager) Get(incidentID string) (*contracts.Incident, error) {
	state, err := m.store.Get(incidentID)
	if err != nil {
		return nil, fmt.Errorf("incident %q: %w", incidentID, err)
	}
	return state.Incident, nil
}

// ListIDs returns all known incident ids, order unspecified.
func (m *Manager) ListIDs() []string {
	return m.store.ListIDs()
}

// Update merges partial fields into the incident and re-validates the
// whole record. An invalid value anywhere in the merged record fails
// the update, not just the changed fields.
func (m *Manager) Update(incidentID string, updates map[string]interface{}) error {
	m.locks.Lock(incidentID)
	defer m.locks.Unlock(incidentID)

	return m.updateLocked(incidentID, updates)
}

func (m *Manager) updateLocked(incidentID string, updates map[string]interface{}) error {
	state, err := m.store.Get(incidentID)
	if err != nil {
		return fmt.Errorf("incident %q: %w", incidentID, err)
	}

	updated, err := mergeIncident(state.Incident, updates)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}

	updated.UpdatedAt = time.Now().UTC()
	if err := updated.Validate(); err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}

	state.SetIncident(updated)
	state.AddConversationMessage("system",
		"Incident updated: "+strings.Join(sortedKeys(updates), ", "),
		"update",
	)
	m.store.Save(state)

	return nil
}

// Resolve marks the incident resolved and records the status change.
func (m *Manager) Resolve(incidentID string) error {
	m.locks.Lock(incidentID)
	defer m.locks.Unlock(incidentID)

	err := m.updateLocked(incidentID, map[string]interface{}{
		"status": string(contracts.StatusResolved),
	})
	if err != nil {
		return fmt.Errorf("failed to resolve incident: %w", err)
	}

	state, err := m.store.Get(incidentID)
	if err != nil {
		return fmt.Errorf("incident %q: %w", incidentID, err)
	}
	state.AddConversationMessage("system", "Incident marked as resolved", "status_change")
	m.store.Save(state)

	return nil
}

// AddLog appends a validated log entry to the incident.
func (m *Manager) AddLog(incidentID, level, message string) error {
	m.locks.Lock(incidentID)
	defer m.locks.Unlock(incidentID)

	state, err := m.store.Get(incidentID)
	if err != nil {
		return fmt.Errorf("incident %q: %w", incidentID, err)
	}

	if err := state.Incident.AddLog(level, message); err != nil {
		return fmt.Errorf("failed to add log: %w", err)
	}

	state.SetIncident(state.Incident)
	m.store.Save(state)
	return nil
}

// Analyze runs the full analysis pipeline for a known incident. A
// pipeline failure is surfaced as an error to the caller, alongside
// the degraded result shape for callers that want it.
func (m *Manager) Analyze(ctx context.Context, incidentID, followUpQuery string) (*contracts.AnalysisResult, error) {
	m.locks.Lock(incidentID)
	defer m.locks.Unlock(incidentID)

	logger.Info("Analyzing incident", zap.String("incident_id", incidentID))

	state, err := m.store.Get(incidentID)
	if err != nil {
		return nil, fmt.Errorf("incident %q: %w", incidentID, err)
	}

	startMsg := "Starting incident analysis"
	if followUpQuery != "" {
		startMsg += " with follow-up query"
	}
	state.AddConversationMessage("system", startMsg, "analysis_start")

	results := m.analyzer.Analyze(ctx, state.Incident)

	inputContext := map[string]interface{}{}
	if followUpQuery != "" {
		inputContext["query"] = followUpQuery
	}
	state.AddAnalysisStep("full_analysis", inputContext, resultMap(results), 0.8)
	m.store.Save(state)

	if results.Failed() {
		errMsg := "Analysis failed: " + results.Error
		logger.Error(errMsg, zap.String("incident_id", incidentID))
		state.AddConversationMessage("system", errMsg, "error")
		m.store.Save(state)
		return results, fmt.Errorf("analysis failed: %s", results.Error)
	}

	return results, nil
}

// mergeIncident applies partial updates onto a JSON snapshot of the
// incident and reconstructs the full record.
func mergeIncident(incident *contracts.Incident, updates map[string]interface{}) (*contracts.Incident, error) {
	snapshot, err := json.Marshal(incident)
	if err != nil {
		return nil, err
	}

	var merged map[string]interface{}
	if err := json.Unmarshal(snapshot, &merged); err != nil {
		return nil, err
	}
	for key, value := range updates {
		merged[key] = value
	}

	remarshalled, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	var updated contracts.Incident
	if err := json.Unmarshal(remarshalled, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func resultMap(results *contracts.AnalysisResult) map[string]interface{} {
	data, err := json.Marshal(results)
	if err != nil {
		return map[string]interface{}{}
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
