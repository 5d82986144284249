package contracts

import (
	"fmt"
	"strings"
	"time"
)

type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
	MetricSummary   MetricType = "summary"
)

func (t MetricType) Valid() bool {
	switch t {
	case MetricCounter, MetricGauge, MetricHistogram, MetricSummary:
		return true
	}
	return false
}

type Metric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Type      MetricType        `json:"type"`
	Labels    map[string]string `json:"labels,omitempty"`
}

func (m Metric) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	if !m.Type.Valid() {
		return fmt.Errorf("invalid metric type: %q", m.Type)
	}
	return nil
}

type LogMessage struct {
	Timestamp  time.Time         `json:"timestamp"`
	Level      string            `json:"level"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewLogMessage is the single validated construction path for log
// entries; all appends to an incident's log sequence go through it.
func NewLogMessage(level, message string) (LogMessage, error) {
	if level == "" {
		return LogMessage{}, fmt.Errorf("log level is required")
	}
	if message == "" {
		return LogMessage{}, fmt.Errorf("log message is required")
	}
	return LogMessage{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}, nil
}

// CoerceAttributes converts loosely-typed attribute values to strings.
// Non-string values arrive from JSON payloads and monitoring backends.
func CoerceAttributes(raw map[string]interface{}) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			attrs[k] = s
		} else {
			attrs[k] = fmt.Sprintf("%v", v)
		}
	}
	return attrs
}

type MonitoringQuery struct {
	MetricName string        `json:"metric_name,omitempty"`
	LogLevel   string        `json:"log_level,omitempty"`
	DateRange  DateTimeRange `json:"date_range"`
}

func (q MonitoringQuery) Validate() error {
	return q.DateRange.Validate()
}

type MonitoringData struct {
	Metrics []Metric     `json:"metrics"`
	Logs    []LogMessage `json:"logs"`
}

func (d MonitoringData) Empty() bool {
	return len(d.Metrics) == 0 && len(d.Logs) == 0
}

func (d MonitoringData) MetricsInTimeframe(start, end time.Time) []Metric {
	r := DateTimeRange{Start: start, End: end}
	var out []Metric
	for _, m := range d.Metrics {
		if r.Contains(m.Timestamp) {
			out = append(out, m)
		}
	}
	return out
}

func (d MonitoringData) LogsInTimeframe(start, end time.Time) []LogMessage {
	r := DateTimeRange{Start: start, End: end}
	var out []LogMessage
	for _, l := range d.Logs {
		if r.Contains(l.Timestamp) {
			out = append(out, l)
		}
	}
	return out
}

func (d MonitoringData) LogsByLevel(level string) []LogMessage {
	var out []LogMessage
	for _, l := range d.Logs {
		if strings.EqualFold(l.Level, level) {
			out = append(out, l)
		}
	}
	return out
}

func (d MonitoringData) HasErrorLogs() bool {
	for _, l := range d.Logs {
		if strings.EqualFold(l.Level, "error") {
			return true
		}
	}
	return false
}
