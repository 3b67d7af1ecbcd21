// Copyright (c) 2026 Keymaster Team
// keyps - authorized_keys synchronization agent
// This source code is licensed under the MIT license found in the LICENSE file.

// Package metrics exposes reconciliation outcomes as Prometheus metrics.
package metrics // import "github.com/toeirei/keyps/internal/metrics"

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toeirei/keyps/internal/fetch"
	"github.com/toeirei/keyps/internal/logging"
	"github.com/toeirei/keyps/internal/reconcile"
)

// Metrics holds the keyps collectors.
type Metrics struct {
	cycleDuration *prometheus.SummaryVec
	cycles        *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	managedKeys   prometheus.Gauge
	lastSuccess   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycleDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name: "keyps_cycle_duration_seconds",
			Help: "Summary of reconciliation durations",
		}, []string{"op", "status"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyps_cycles_total",
			Help: "How many reconciliation passes have run, by op and status",
		}, []string{"op", "status"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyps_source_fetch_errors_total",
			Help: "How many fetches have failed, by source",
		}, []string{"source"}),
		managedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyps_managed_keys",
			Help: "Number of keys inside the managed block after the last refresh",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyps_last_success_timestamp_seconds",
			Help: "Unix time of the last refresh that wrote or confirmed the managed block",
		}),
	}
	reg.MustRegister(m.cycleDuration, m.cycles, m.fetchErrors, m.managedKeys, m.lastSuccess)
	return m
}

// Observe records o.
func (m *Metrics) Observe(o reconcile.Outcome) {
	op, status := string(o.Op), string(o.Status)
	m.cycles.WithLabelValues(op, status).Inc()
	m.cycleDuration.WithLabelValues(op, status).Observe(o.Duration.Seconds())

	for _, err := range o.FetchErrors {
		name := "unknown"
		var fe *fetch.FetchError
		if errors.As(err, &fe) {
			name = fe.Source
		}
		m.fetchErrors.WithLabelValues(name).Inc()
	}

	if o.Op == reconcile.OpRefresh && (o.Status == reconcile.StatusSuccess || o.Status == reconcile.StatusPartial) {
		m.managedKeys.Set(float64(o.Keys))
		m.lastSuccess.SetToCurrentTime()
	}
	if o.Op == reconcile.OpCleanup && o.Status == reconcile.StatusSuccess {
		m.managedKeys.Set(0)
	}
}

// NewRegistry returns a registry with the Go runtime and process
// collectors already registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves g on /metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve starts an HTTP server exposing /metrics from g on addr. The
// returned server is already listening; shut it down with Close.
func Serve(addr string, g prometheus.Gatherer) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("metrics server on %s stopped: %v", addr, err)
		}
	}()
	return srv, nil
}
