package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/pkg/logger"
)

// Client caches monitoring query results so repeated analyses of the
// same incident window do not hammer the monitoring backends.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetMonitoringData(ctx context.Context, queryHash string, data contracts.MonitoringData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal monitoring data: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("monitoring:%s", queryHash), payload, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set monitoring cache: %w", err)
	}

	logger.Debug("Monitoring data cached", zap.String("query_hash", queryHash), zap.Duration("ttl", c.ttl))
	return nil
}

func (c *Client) GetMonitoringData(ctx context.Context, queryHash string) (contracts.MonitoringData, bool, error) {
	var data contracts.MonitoringData

	payload, err := c.client.Get(ctx, fmt.Sprintf("monitoring:%s", queryHash)).Bytes()
	if err == redis.Nil {
		return data, false, nil
	}
	if err != nil {
		return data, false, fmt.Errorf("failed to get monitoring cache: %w", err)
	}

	if err := json.Unmarshal(payload, &data); err != nil {
		return data, false, fmt.Errorf("failed to unmarshal monitoring data: %w", err)
	}

	logger.Debug("Monitoring cache hit", zap.String("query_hash", queryHash))
	return data, true, nil
}
