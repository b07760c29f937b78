// Package metrics exposes pipeline counters for batch runs. Counters live in
// a private registry and are written to a node_exporter textfile at exit.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline groups the counters shared by the kp tools. A nil *Pipeline is
// valid and records nothing.
type Pipeline struct {
	registry *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	fetchBytes     prometheus.Counter
	samplesWritten *prometheus.CounterVec
	yearsFailed    *prometheus.CounterVec
	records        *prometheus.CounterVec
	staleLookups   prometheus.Counter
}

// New creates a Pipeline with its own registry.
func New() *Pipeline {
	p := &Pipeline{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kp_fetch_attempts_total",
				Help: "Total number of remote fetch attempts.",
			},
			[]string{"host"},
		),
		fetchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kp_fetch_failures_total",
				Help: "Total number of failed remote fetch attempts.",
			},
			[]string{"host"},
		),
		fetchBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kp_fetch_bytes_total",
			Help: "Total bytes received from remote archives.",
		}),
		samplesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kp_samples_written_total",
				Help: "Total Kp samples written to disk.",
			},
			[]string{"format"},
		),
		yearsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kp_years_failed_total",
				Help: "Requested years that produced no output.",
			},
			[]string{"reason"},
		),
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kp_magephem_records_total",
				Help: "Magnetic ephemeris records written.",
			},
			[]string{"model"},
		),
		staleLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kp_stale_lookups_total",
			Help: "Kp lookups with no sample within three hours.",
		}),
	}
	p.registry.MustRegister(
		p.fetchAttempts,
		p.fetchFailures,
		p.fetchBytes,
		p.samplesWritten,
		p.yearsFailed,
		p.records,
		p.staleLookups,
	)
	return p
}

// Registry returns the underlying registry.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// FetchAttempt counts one attempt against host.
func (p *Pipeline) FetchAttempt(host string) {
	if p == nil {
		return
	}
	p.fetchAttempts.WithLabelValues(host).Inc()
}

// FetchFailure counts one failed attempt against host.
func (p *Pipeline) FetchFailure(host string) {
	if p == nil {
		return
	}
	p.fetchFailures.WithLabelValues(host).Inc()
}

// FetchBytes adds n received bytes.
func (p *Pipeline) FetchBytes(n int) {
	if p == nil {
		return
	}
	p.fetchBytes.Add(float64(n))
}

// SamplesWritten adds n samples stored for a format.
func (p *Pipeline) SamplesWritten(format string, n int) {
	if p == nil {
		return
	}
	p.samplesWritten.WithLabelValues(format).Add(float64(n))
}

// YearFailed counts a year that was skipped for reason.
func (p *Pipeline) YearFailed(reason string) {
	if p == nil {
		return
	}
	p.yearsFailed.WithLabelValues(reason).Inc()
}

// RecordsWritten adds n magephem rows for model.
func (p *Pipeline) RecordsWritten(model string, n int) {
	if p == nil {
		return
	}
	p.records.WithLabelValues(model).Add(float64(n))
}

// StaleLookups adds n stale Kp lookups.
func (p *Pipeline) StaleLookups(n int) {
	if p == nil {
		return
	}
	p.staleLookups.Add(float64(n))
}

// WriteTextfile writes all counters in the text exposition format. An empty
// path is a no-op.
func (p *Pipeline) WriteTextfile(path string) error {
	if p == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, p.registry)
}
