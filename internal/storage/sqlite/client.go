package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/pkg/logger"
)

// Client persists IncidentState snapshots so a restarted process can
// restore its context store. States are stored whole as JSON keyed by
// incident id, with RFC 3339 timestamps inside the document.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS incident_states (
		incident_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		last_updated INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_states_updated ON incident_states(last_updated);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) SaveState(state *contracts.IncidentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal incident state: %w", err)
	}

	query := `
		INSERT INTO incident_states (incident_id, state, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(incident_id) DO UPDATE SET
			state = excluded.state,
			last_updated = excluded.last_updated
	`

	_, err = c.db.Exec(query, state.IncidentID, string(data), state.LastUpdated.Unix())
	if err != nil {
		return fmt.Errorf("failed to save incident state: %w", err)
	}

	logger.Debug("Incident state snapshotted", zap.String("incident_id", state.IncidentID))
	return nil
}

func (c *Client) GetState(incidentID string) (*contracts.IncidentState, error) {
	query := `SELECT state FROM incident_states WHERE incident_id = ?`

	var data string
	err := c.db.QueryRow(query, incidentID).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("failed to get incident state: %w", err)
	}

	var state contracts.IncidentState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident state: %w", err)
	}

	return &state, nil
}

func (c *Client) LoadAll() ([]*contracts.IncidentState, error) {
	query := `SELECT state FROM incident_states ORDER BY last_updated`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident states: %w", err)
	}
	defer rows.Close()

	var states []*contracts.IncidentState
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		var state contracts.IncidentState
		if err := json.Unmarshal([]byte(data), &state); err != nil {
			logger.Warn("Skipping unreadable state snapshot", zap.Error(err))
			continue
		}
		states = append(states, &state)
	}

	return states, rows.Err()
}

func (c *Client) DeleteState(incidentID string) error {
	_, err := c.db.Exec(`DELETE FROM incident_states WHERE incident_id = ?`, incidentID)
	if err != nil {
		return fmt.Errorf("failed to delete incident state: %w", err)
	}
	return nil
}
