// Package metrics exposes reconciliation counters through Prometheus.
// Runs are short-lived, so metrics are exported with WriteTextfile for the
// node exporter's textfile collector rather than served over HTTP.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all zonectl metrics on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Reconcile metrics
	PhaseOutcomes *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	RunDuration   prometheus.Gauge
	LastRun       prometheus.Gauge
	RunErrors     prometheus.Gauge
	RulesCompiled *prometheus.CounterVec

	// Appliance metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// Get returns the process-wide registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
	})
	return registry
}

// New creates an independent registry.
func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}
	f := promauto.With(r.reg)

	r.PhaseOutcomes = f.NewCounterVec(prometheus.CounterOpts{
		Name: "zonectl_phase_outcomes_total",
		Help: "Per-zone outcomes by reconcile phase",
	}, []string{"phase", "outcome"})
	r.PhaseDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zonectl_phase_duration_seconds",
		Help:    "Time spent in each reconcile phase",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"phase"})
	r.RunDuration = f.NewGauge(prometheus.GaugeOpts{
		Name: "zonectl_last_run_duration_seconds",
		Help: "Duration of the last reconcile run",
	})
	r.LastRun = f.NewGauge(prometheus.GaugeOpts{
		Name: "zonectl_last_run_timestamp_seconds",
		Help: "Unix timestamp of the last reconcile run",
	})
	r.RunErrors = f.NewGauge(prometheus.GaugeOpts{
		Name: "zonectl_last_run_errors",
		Help: "Number of error outcomes in the last reconcile run",
	})
	r.RulesCompiled = f.NewCounterVec(prometheus.CounterOpts{
		Name: "zonectl_rules_compiled_total",
		Help: "Firewall rules compiled from access policies",
	}, []string{"zone"})

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "zonectl_appliance_requests_total",
		Help: "Appliance operations by name and result",
	}, []string{"op", "result"})
	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zonectl_appliance_request_duration_seconds",
		Help:    "Appliance operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// RecordOutcome counts one zone outcome for a phase.
func (r *Registry) RecordOutcome(phase, outcome string) {
	r.PhaseOutcomes.WithLabelValues(phase, outcome).Inc()
}

// ObservePhase records how long a phase took.
func (r *Registry) ObservePhase(phase string, d time.Duration) {
	r.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordRun records the summary of a finished run.
func (r *Registry) RecordRun(started time.Time, d time.Duration, errs int) {
	r.LastRun.Set(float64(started.Unix()))
	r.RunDuration.Set(d.Seconds())
	r.RunErrors.Set(float64(errs))
}

// WriteTextfile writes all metrics in the text exposition format, atomically.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

// Instrument wraps an invoker so every operation is counted and timed.
func (r *Registry) Instrument(next appliance.Invoker) appliance.Invoker {
	return &instrumented{next: next, reg: r}
}

type instrumented struct {
	next appliance.Invoker
	reg  *Registry
}

func (i *instrumented) Invoke(ctx context.Context, name appliance.OperationName, params any, dryRun bool) (*appliance.Result, error) {
	start := time.Now()
	res, err := i.next.Invoke(ctx, name, params, dryRun)
	i.reg.APILatency.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
	i.reg.APIRequests.WithLabelValues(string(name), resultLabel(res, err)).Inc()
	return res, err
}

func resultLabel(res *appliance.Result, err error) string {
	var re *appliance.ResourceError
	switch {
	case err == nil && res != nil && res.Changed:
		return "changed"
	case err == nil:
		return "ok"
	case appliance.IsConnection(err):
		return "connection_error"
	case errors.As(err, &re):
		return re.Code.String()
	default:
		return "error"
	}
}
