// Package metrics holds the prometheus collectors for imports and email.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Import modes.
const (
	ModeRoster           = "roster"
	ModeRosterDryRun     = "roster_dry_run"
	ModeCompliance       = "compliance"
	ModeComplianceDryRun = "compliance_dry_run"
)

var (
	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benefits_imports_total",
			Help: "Spreadsheet imports processed, by mode.",
		},
		[]string{"mode"},
	)

	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benefits_import_rows_total",
			Help: "Spreadsheet rows by reconciliation outcome.",
		},
		[]string{"outcome"},
	)

	ImportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "benefits_import_duration_seconds",
			Help:    "Wall time of one import.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"mode"},
	)

	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "benefits_emails_total",
			Help: "Outbound emails by kind, provider and result.",
		},
		[]string{"kind", "provider", "result"},
	)
)

// ImportMode returns the mode label for an import.
func ImportMode(base string, dryRun bool) string {
	if !dryRun {
		return base
	}
	return base + "_dry_run"
}

// TimeImport starts a timer for one import and returns the function that
// records it.
func TimeImport(mode string) func() time.Duration {
	timer := prometheus.NewTimer(ImportDuration.WithLabelValues(mode))
	return timer.ObserveDuration
}

// AddRows adds n to the row counter for outcome. Zero counts are skipped.
func AddRows(outcome string, n int) {
	if n > 0 {
		ImportRowsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
