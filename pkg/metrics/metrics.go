// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides Prometheus instrumentation for wasp.
package metrics

import (
	"errors"
	"strconv"
	"time"

	perrors "github.com/absmach/wasp/pkg/errors"
	"github.com/absmach/wasp/pkg/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for wasp.
type Metrics struct {
	// Connection metrics
	ActiveConnections  prometheus.Gauge
	TotalConnections   *prometheus.CounterVec
	ConnectionDuration prometheus.Histogram

	// Request metrics
	RequestsTotal *prometheus.CounterVec
	ParseErrors   *prometheus.CounterVec
	ParseDuration prometheus.Histogram
	BodySize      *prometheus.HistogramVec
	UploadedFiles prometheus.Counter
	UploadedBytes prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitedRequests prometheus.Counter

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Worker pool metrics
	PoolBusyWorkers prometheus.Gauge
	PoolQueueDepth  prometheus.Gauge
}

// New creates a new Metrics instance registered with reg. A nil reg
// means the default registerer.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "wasp"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently active connections",
			},
		),
		TotalConnections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connections_total",
				Help:      "Total number of connections",
			},
			[]string{"status"},
		),
		ConnectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "connection_duration_seconds",
				Help:      "Connection duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600},
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests parsed and answered",
			},
			[]string{"method", "status"},
		),
		ParseErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "parse_errors_total",
				Help:      "Total number of rejected requests by error kind",
			},
			[]string{"kind"},
		),
		ParseDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "parse_duration_seconds",
				Help:      "Time from the first request byte to a complete request",
				Buckets:   prometheus.DefBuckets,
			},
		),
		BodySize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "body_size_bytes",
				Help:      "Decoded request body size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"content"},
		),
		UploadedFiles: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_files_total",
				Help:      "Total number of uploaded files",
			},
		),
		UploadedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_bytes_total",
				Help:      "Total number of uploaded payload bytes",
			},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"sink"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"sink"},
		),
		RateLimitedRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Total number of rate limited requests",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of rejected connections and requests",
			},
			[]string{"stage"},
		),
		PoolBusyWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_busy_workers",
				Help:      "Number of workers serving a connection",
			},
		),
		PoolQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_queue_depth",
				Help:      "Number of accepted connections waiting for a worker",
			},
		),
	}
}

// ObserveConnection tracks a connection lifecycle.
func (m *Metrics) ObserveConnection(f func() error) error {
	m.ActiveConnections.Inc()
	defer m.ActiveConnections.Dec()

	start := time.Now()
	defer func() {
		m.ConnectionDuration.Observe(time.Since(start).Seconds())
	}()

	err := f()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TotalConnections.WithLabelValues(status).Inc()

	return err
}

// ObserveParse records the outcome of reading one request. A closed
// connection between requests is not counted.
func (m *Metrics) ObserveParse(start time.Time, req *request.Request, err error) {
	if err != nil {
		if errors.Is(err, perrors.ErrConnectionClosed) {
			return
		}
		kind := "transport"
		if k, ok := perrors.KindOf(err); ok {
			kind = k.String()
		} else if errors.Is(err, perrors.ErrSinkUnavailable) {
			kind = "sink"
		}
		m.ParseErrors.WithLabelValues(kind).Inc()
		return
	}

	m.ParseDuration.Observe(time.Since(start).Seconds())
	m.BodySize.WithLabelValues(req.ContentKind().String()).Observe(float64(len(req.Body())))
	for _, key := range req.Files().Keys() {
		for _, f := range req.Files().GetAll(key) {
			if f.Path == "" {
				continue
			}
			m.UploadedFiles.Inc()
			m.UploadedBytes.Add(float64(f.Size))
		}
	}
}

// ObserveResponse counts an answered request.
func (m *Metrics) ObserveResponse(method string, status int) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// ObservePool records worker pool occupancy.
func (m *Metrics) ObservePool(busy, queued int) {
	m.PoolBusyWorkers.Set(float64(busy))
	m.PoolQueueDepth.Set(float64(queued))
}

// ObserveBreaker records a circuit breaker transition for sink. state is
// the numeric breaker state; open marks a trip.
func (m *Metrics) ObserveBreaker(sink string, state int, open bool) {
	m.CircuitBreakerState.WithLabelValues(sink).Set(float64(state))
	if open {
		m.CircuitBreakerTrips.WithLabelValues(sink).Inc()
	}
}
