package coralogix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/pkg/logger"
)

// Client reads log entries from a Coralogix-style log search API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

type logsRequest struct {
	Query string `json:"query"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type logsResponse struct {
	Logs []struct {
		Timestamp  time.Time              `json:"timestamp"`
		Level      string                 `json:"level"`
		Message    string                 `json:"message"`
		Attributes map[string]interface{} `json:"attributes"`
	} `json:"logs"`
}

func (c *Client) QueryLogs(ctx context.Context, query contracts.MonitoringQuery) ([]contracts.LogMessage, error) {
	searchQuery := "*"
	if query.LogLevel != "" {
		searchQuery = fmt.Sprintf("severity:%s", query.LogLevel)
	}

	payload, err := json.Marshal(logsRequest{
		Query: searchQuery,
		From:  query.DateRange.Start.Format(time.RFC3339),
		To:    query.DateRange.End.Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal logs query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/logs/query", c.baseURL)

	logger.Debug("Querying Coralogix logs", zap.String("query", searchQuery))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build logs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("logs backend returned status %d", resp.StatusCode)
	}

	var parsed logsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode logs response: %w", err)
	}

	logs := make([]contracts.LogMessage, 0, len(parsed.Logs))
	for _, entry := range parsed.Logs {
		logs = append(logs, contracts.LogMessage{
			Timestamp:  entry.Timestamp.UTC(),
			Level:      entry.Level,
			Message:    entry.Message,
			Attributes: contracts.CoerceAttributes(entry.Attributes),
		})
	}

	logger.Debug("Retrieved Coralogix logs", zap.Int("count", len(logs)))
	return logs, nil
}
