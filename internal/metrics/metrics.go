// Package metrics exposes prometheus collectors for range-slice traffic.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "widescan"

// buckets for seconds resolutions of histograms
var buckets = []float64{.0005, .001, .005, .01, .05, .1, .5, 1}

// Metrics holds the collectors of one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	served        *prometheus.CounterVec
	servedRows    prometheus.Counter
	serveDuration prometheus.Histogram

	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// New registers a fresh set of collectors, plus the Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_slices_served_total",
			Help:      "Range-slice requests answered by the server.",
		}, []string{"status"}),
		servedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_slice_rows_served_total",
			Help:      "Rows returned by the server across all range slices.",
		}),
		serveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "range_slice_serve_duration_seconds",
			Help:      "Time taken to read a range slice from the store.",
			Buckets:   buckets,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_slice_requests_total",
			Help:      "Range-slice requests issued by clients, by outcome.",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "range_slice_request_duration_seconds",
			Help:      "Round-trip time of remote range slices, retries included.",
			Buckets:   buckets,
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.served,
		m.servedRows,
		m.serveDuration,
		m.requests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Served records one range slice answered by the server.
func (m *Metrics) Served(status string, rows int, took time.Duration) {
	if m == nil {
		return
	}
	m.served.WithLabelValues(status).Inc()
	m.servedRows.Add(float64(rows))
	m.serveDuration.Observe(took.Seconds())
}

// Requested records one remote range slice issued by a client.
func (m *Metrics) Requested(err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(took.Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ListenAndServe serves /metrics on addr until ctx is done.
func (m *Metrics) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown) //nolint:errcheck
	}()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
