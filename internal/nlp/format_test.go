package nlp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/incident-agent/backend/internal/contracts"
)

func TestFormatLogs(t *testing.T) {
	assert.Equal(t, "No logs available", formatLogs(nil))

	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	logs := []contracts.LogMessage{
		{Timestamp: ts, Level: "error", Message: "connection refused"},
		{Timestamp: ts, Level: "warn", Message: "slow query", Attributes: map[string]string{
			"table":       "orders",
			"duration_ms": "4200",
		}},
	}

	got := formatLogs(logs)
	assert.Equal(t,
		"[2026-03-01T12:30:00Z] error: connection refused\n"+
			"[2026-03-01T12:30:00Z] warn: slow query | duration_ms=4200, table=orders",
		got,
	)
}

func TestFormatCodeReferences(t *testing.T) {
	assert.Equal(t, "No code references available", formatCodeReferences(nil))

	refs := []contracts.CodeReference{
		{FilePath: "internal/checkout/cart.go", LineNumber: 42, FunctionName: "Total"},
		{FilePath: "internal/db/pool.go", LineNumber: 7, FunctionName: "Acquire", Code: "conn := <-p.free"},
	}

	got := formatCodeReferences(refs)
	assert.Equal(t,
		"File: internal/checkout/cart.go:42 | Function: Total\n"+
			"File: internal/db/pool.go:7 | Function: Acquire\nCode:\nconn := <-p.free",
		got,
	)
}

func TestFormatMetrics(t *testing.T) {
	assert.Equal(t, "No metrics available", formatMetrics(nil))

	metrics := []contracts.Metric{
		{Name: "cpu_usage", Value: 0.92},
		{Name: "http_errors", Value: 17, Labels: map[string]string{"code": "502", "app": "shop"}},
	}

	got := formatMetrics(metrics)
	assert.Equal(t,
		"cpu_usage = 0.92\n"+
			"http_errors = 17 | Labels: {app=shop, code=502}",
		got,
	)
}
