// Package metrics provides Prometheus metrics for the product publisher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the publisher.
type Metrics struct {
	AttemptsTotal   *prometheus.CounterVec
	CompileFailures *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	RowsPublished   *prometheus.CounterVec
	BranchesKept    prometheus.Gauge
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string // address for the metrics HTTP server, e.g. ":9090"
}

// Init initializes the publisher metrics.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "product_publisher"
	}

	return &Metrics{
		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Publish attempts by terminal outcome",
			},
			[]string{"product", "outcome"},
		),
		CompileFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_compile_failures_total",
				Help:      "Contracts rejected because a quality rule could not be compiled",
			},
			[]string{"product"},
		),
		RunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "End-to-end publish attempt duration",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"product", "outcome"},
		),
		RowsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_published_total",
				Help:      "Rows merged into the output branch",
			},
			[]string{"product"},
		),
		BranchesKept: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "preserved_branches",
				Help:      "Staging branches preserved for inspection since process start",
			},
		),
	}
}

// Serve starts the metrics HTTP endpoint. It blocks, so callers run it
// in a goroutine.
func Serve(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(cfg.Address, mux)
}
