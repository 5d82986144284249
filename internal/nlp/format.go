package nlp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/incident-agent/backend/internal/contracts"
)

const (
	noLogsSentinel     = "No logs available"
	noCodeRefsSentinel = "No code references available"
	noMetricsSentinel  = "No metrics available"
)

func formatLogs(logs []contracts.LogMessage) string {
	if len(logs) == 0 {
		return noLogsSentinel
	}

	lines := make([]string, 0, len(logs))
	for _, log := range logs {
		line := fmt.Sprintf("[%s] %s: %s", log.Timestamp.Format(time.RFC3339), log.Level, log.Message)
		if len(log.Attributes) > 0 {
			line += " | " + formatKeyValues(log.Attributes)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func formatCodeReferences(refs []contracts.CodeReference) string {
	if len(refs) == 0 {
		return noCodeRefsSentinel
	}

	lines := make([]string, 0, len(refs))
	for _, ref := range refs {
		entry := fmt.Sprintf("File: %s:%d | Function: %s", ref.FilePath, ref.LineNumber, ref.FunctionName)
		if ref.Code != "" {
			entry += fmt.Sprintf("\nCode:\n%s", ref.Code)
		}
		lines = append(lines, entry)
	}
	return strings.Join(lines, "\n")
}

func formatMetrics(metrics []contracts.Metric) string {
	if len(metrics) == 0 {
		return noMetricsSentinel
	}

	lines := make([]string, 0, len(metrics))
	for _, metric := range metrics {
		line := fmt.Sprintf("%s = %v", metric.Name, metric.Value)
		if len(metric.Labels) > 0 {
			line += fmt.Sprintf(" | Labels: {%s}", formatKeyValues(metric.Labels))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// formatKeyValues renders a map sorted by key so prompt text is stable.
func formatKeyValues(kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, kv[k]))
	}
	return strings.Join(pairs, ", ")
}
