// Package metrics exposes Prometheus counters for extraction runs.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/insightdelivered/medical-billing-extractor/internal/models"
	"github.com/insightdelivered/medical-billing-extractor/internal/oracle"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	Registry    *prometheus.Registry
	Documents   *prometheus.CounterVec
	Records     *prometheus.CounterVec
	Lines       *prometheus.CounterVec
	Duplicates  *prometheus.CounterVec
	RowsWritten *prometheus.CounterVec
	OracleCalls *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_documents_total",
			Help: "Documents processed, by report and outcome.",
		}, []string{"report", "outcome"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_records_parsed_total",
			Help: "Records produced by the parsers.",
		}, []string{"report"}),
		Lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_lines_total",
			Help: "Source lines by classification result.",
		}, []string{"report", "result"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_records_duplicate_total",
			Help: "Records dropped as already persisted or repeated.",
		}, []string{"report"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_rows_written_total",
			Help: "Rows appended to the workbook.",
		}, []string{"report"}),
		OracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_oracle_calls_total",
			Help: "Oracle requests by outcome.",
		}, []string{"outcome"}),
	}
	m.Registry.MustRegister(m.Documents, m.Records, m.Lines, m.Duplicates, m.RowsWritten, m.OracleCalls)
	return m
}

// ObserveExtraction adds the line and record counters of one document.
func (m *Metrics) ObserveExtraction(ext *models.Extraction) {
	report := string(ext.Report)
	m.Records.WithLabelValues(report).Add(float64(len(ext.Records)))
	for result, n := range map[string]int{
		"parsed":    ext.Stats.Parsed,
		"ignored":   ext.Stats.Ignored,
		"group":     ext.Stats.Groups,
		"orphan":    ext.Stats.Orphaned,
		"invalid":   ext.Stats.Invalid,
		"unmatched": ext.Stats.Unparsed,
	} {
		m.Lines.WithLabelValues(report, result).Add(float64(n))
	}
}

// Generator wraps g so every request is counted by outcome.
func (m *Metrics) Generator(g oracle.Generator) oracle.Generator {
	return &countingGenerator{next: g, calls: m.OracleCalls}
}

type countingGenerator struct {
	next  oracle.Generator
	calls *prometheus.CounterVec
}

func (c *countingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := c.next.Generate(ctx, prompt)
	switch {
	case err == nil:
		c.calls.WithLabelValues("ok").Inc()
	case errors.Is(err, oracle.ErrRateLimited):
		c.calls.WithLabelValues("rate_limited").Inc()
	default:
		c.calls.WithLabelValues("error").Inc()
	}
	return out, err
}
