package memory

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/pkg/logger"
)

var ErrNotFound = errors.New("incident not found")

// Snapshotter is an optional durable write-through target for saved
// states. Snapshot failures are logged and never surfaced: the
// in-memory table is the source of truth for a running process.
type Snapshotter interface {
	SaveState(state *contracts.IncidentState) error
	DeleteState(incidentID string) error
}

// ContextStore keeps at most one IncidentState per incident id.
// The mutex protects the table itself; read-modify-write sequences
// across Get/Save are coordinated by the caller (see KeyedMutex).
type ContextStore struct {
	mu       sync.RWMutex
	store    map[string]*contracts.IncidentState
	snapshot Snapshotter
}

// NewContextStore creates a store. snapshot may be nil.
func NewContextStore(snapshot Snapshotter) *ContextStore {
	return &ContextStore{
		store:    make(map[string]*contracts.IncidentState),
		snapshot: snapshot,
	}
}

// Save upserts by incident id, overwriting any prior entry entirely.
func (s *ContextStore) Save(state *contracts.IncidentState) {
	s.mu.Lock()
	s.store[state.IncidentID] = state
	s.mu.Unlock()

	logger.Debug("Incident state saved",
		zap.String("incident_id", state.IncidentID),
		zap.Int("history_len", len(state.ConversationHistory)),
		zap.Int("steps_len", len(state.AnalysisSteps)),
	)

	if s.snapshot != nil {
		if err := s.snapshot.SaveState(state); err != nil {
			logger.Warn("Failed to snapshot incident state",
				zap.String("incident_id", state.IncidentID),
				zap.Error(err),
			)
		}
	}
}

// Get returns the state for the id, or ErrNotFound.
func (s *ContextStore) Get(incidentID string) (*contracts.IncidentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.store[incidentID]
	if !ok {
		return nil, ErrNotFound
	}
	return state, nil
}

// ListIDs returns all incident ids, order unspecified.
func (s *ContextStore) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.store))
	for id := range s.store {
		ids = append(ids, id)
	}
	return ids
}

// Cleanup irreversibly removes every state whose last_updated is
// older than now minus maxAgeDays. Returns the removed ids.
func (s *ContextStore) Cleanup(maxAgeDays int) []string {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	s.mu.Lock()
	var removed []string
	for id, state := range s.store {
		if state.LastUpdated.Before(cutoff) {
			delete(s.store, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	for _, id := range removed {
		if s.snapshot != nil {
			if err := s.snapshot.DeleteState(id); err != nil {
				logger.Warn("Failed to delete state snapshot",
					zap.String("incident_id", id),
					zap.Error(err),
				)
			}
		}
	}

	if len(removed) > 0 {
		logger.Info("Removed expired incident states",
			zap.Int("count", len(removed)),
			zap.Int("max_age_days", maxAgeDays),
		)
	}
	return removed
}

// Restore loads previously snapshotted states into the table. Used
// once at boot, before the store is shared.
func (s *ContextStore) Restore(states []*contracts.IncidentState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, state := range states {
		s.store[state.IncidentID] = state
	}
	if len(states) > 0 {
		logger.Info("Restored incident states from snapshots", zap.Int("count", len(states)))
	}
}

func (s *ContextStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.store)
}
