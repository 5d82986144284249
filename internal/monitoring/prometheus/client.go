package prometheus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/incident-agent/backend/internal/contracts"
	"github.com/incident-agent/backend/pkg/logger"
)

// Client reads metrics from a Prometheus server's range-query API.
type Client struct {
	baseURL    string
	step       string
	httpClient *http.Client
}

func NewClient(baseURL, step string, timeoutSec int) *Client {
	if step == "" {
		step = "5m"
	}
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &Client{
		baseURL: baseURL,
		step:    step,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

type rangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Values [][2]json.Number  `json:"values"`
		} `json:"result"`
	} `json:"data"`
	Error string `json:"error"`
}

func (c *Client) QueryMetrics(ctx context.Context, query contracts.MonitoringQuery) ([]contracts.Metric, error) {
	params := url.Values{}
	params.Set("query", promQLFor(query.MetricName))
	params.Set("start", strconv.FormatInt(query.DateRange.Start.Unix(), 10))
	params.Set("end", strconv.FormatInt(query.DateRange.End.Unix(), 10))
	params.Set("step", c.step)

	endpoint := fmt.Sprintf("%s/api/v1/query_range?%s", c.baseURL, params.Encode())

	logger.Debug("Querying Prometheus metrics",
		zap.String("query", params.Get("query")),
		zap.String("step", c.step),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build prometheus request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("prometheus request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus returned status %d", resp.StatusCode)
	}

	var parsed rangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode prometheus response: %w", err)
	}
	if parsed.Status != "success" {
		return nil, fmt.Errorf("prometheus query failed: %s", parsed.Error)
	}

	var metrics []contracts.Metric
	for _, series := range parsed.Data.Result {
		name := series.Metric["__name__"]
		if name == "" {
			continue
		}

		labels := make(map[string]string, len(series.Metric))
		for k, v := range series.Metric {
			if k != "__name__" {
				labels[k] = v
			}
		}
		if len(labels) == 0 {
			labels = nil
		}

		for _, sample := range series.Values {
			ts, err := sample[0].Float64()
			if err != nil {
				continue
			}
			value, err := sample[1].Float64()
			if err != nil {
				continue
			}

			metrics = append(metrics, contracts.Metric{
				Name:      name,
				Value:     value,
				Timestamp: time.Unix(int64(ts), 0).UTC(),
				Type:      contracts.MetricGauge,
				Labels:    labels,
			})
		}
	}

	logger.Debug("Retrieved Prometheus metrics", zap.Int("count", len(metrics)))
	return metrics, nil
}

// promQLFor maps the query's metric-name filter to a PromQL selector.
// The wildcard filter matches every series.
func promQLFor(metricName string) string {
	if metricName == "" || metricName == "*" {
		return `{__name__=~".+"}`
	}
	return metricName
}
