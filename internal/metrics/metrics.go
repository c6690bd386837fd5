// Package metrics provides Prometheus metrics for shard planning runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for shardplan.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Run metrics
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Plan metrics
	PlannedBuckets prometheus.Gauge
	PlannedShards  prometheus.Gauge
	ShardsByKind   *prometheus.CounterVec

	// Input metrics
	InputPaths *prometheus.CounterVec

	// Stage metrics
	StageFailures *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metrics on a fresh registry.
func New(namespace string) *Metrics {
	return NewWithRegistry(namespace, prometheus.NewRegistry())
}

// NewWithRegistry creates the metrics and registers them on reg.
func NewWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "shardplan"
	}
	factory := promauto.With(reg)

	return &Metrics{
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of determination runs by outcome",
			},
			[]string{"mode", "outcome"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Time to complete a determination run",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
			},
		),
		PlannedBuckets: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "planned_buckets",
				Help:      "Number of time buckets in the last committed plan",
			},
		),
		PlannedShards: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "planned_shards",
				Help:      "Number of shards in the last committed plan",
			},
		),
		ShardsByKind: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shard_specs_total",
				Help:      "Total number of shard specs assigned, by routing kind",
			},
			[]string{"kind"},
		),
		InputPaths: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "input_paths_registered_total",
				Help:      "Total number of literal input paths registered, by format",
			},
			[]string{"format"},
		),
		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of failed pipeline stages",
			},
			[]string{"stage"},
		),
		registry: reg,
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRun records the outcome and duration of a determination run.
func (m *Metrics) ObserveRun(mode string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Runs.WithLabelValues(mode, outcome).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObservePlan records the shape of a committed plan.
func (m *Metrics) ObservePlan(buckets int, shardsByKind map[string]int) {
	if m == nil {
		return
	}
	total := 0
	for kind, n := range shardsByKind {
		m.ShardsByKind.WithLabelValues(kind).Add(float64(n))
		total += n
	}
	m.PlannedBuckets.Set(float64(buckets))
	m.PlannedShards.Set(float64(total))
}

// IncInputPaths increments the registered input path counter.
func (m *Metrics) IncInputPaths(format string) {
	if m == nil {
		return
	}
	m.InputPaths.WithLabelValues(format).Inc()
}

// IncStageFailures increments the failed stage counter.
func (m *Metrics) IncStageFailures(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// Handler returns the HTTP handler serving the metrics and a health check.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	if m != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs an HTTP server for Prometheus scraping on address until ctx is
// canceled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	srv := &http.Server{
		Addr:              address,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
