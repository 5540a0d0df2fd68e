// Package metrics exposes engine activity as Prometheus metrics.
//
// Metrics are kept in a private registry so the engine never exports the
// process-wide default collectors by accident. The HTTP endpoint is
// optional and serves /metrics only.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ibusafrim/internal/ime"
)

// Namespace prefixes every metric name.
const Namespace = "ibus_afrim"

// Key event results.
const (
	ResultConsumed = "consumed"
	ResultPassed   = "passed"
)

// Reload statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// EngineMetrics holds all engine metrics. It implements ime.Observer.
type EngineMetrics struct {
	registry *prometheus.Registry

	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	KeyEventsTotal   *prometheus.CounterVec
	CommitsTotal     prometheus.Counter
	ReloadsTotal     *prometheus.CounterVec
	ReloadDuration   prometheus.Histogram
	DictionaryLoaded prometheus.Gauge
}

var _ ime.Observer = (*EngineMetrics)(nil)

// New creates and registers all engine metrics on a fresh registry,
// along with the Go runtime and process collectors.
func New() *EngineMetrics {
	registry := prometheus.NewRegistry()

	m := &EngineMetrics{
		registry: registry,

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Number of engine sessions currently alive",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_total",
			Help:      "Total number of engine sessions created",
		}),
		KeyEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "key_events_total",
			Help:      "Key events processed, by whether the engine consumed them",
		}, []string{"result"}),
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commits_total",
			Help:      "Total number of texts committed to clients",
		}),
		ReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dictionary_reloads_total",
			Help:      "Dictionary reloads, by status",
		}, []string{"status"}),
		ReloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "dictionary_reload_duration_seconds",
			Help:      "Time spent loading a dictionary",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		DictionaryLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "dictionary_last_reload_timestamp_seconds",
			Help:      "Unix time of the last successful dictionary load",
		}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.KeyEventsTotal,
		m.CommitsTotal,
		m.ReloadsTotal,
		m.ReloadDuration,
		m.DictionaryLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Expose both label values from the start.
	m.KeyEventsTotal.WithLabelValues(ResultConsumed)
	m.KeyEventsTotal.WithLabelValues(ResultPassed)
	m.ReloadsTotal.WithLabelValues(StatusOK)
	m.ReloadsTotal.WithLabelValues(StatusError)

	return m
}

// Registry returns the registry the metrics live in.
func (m *EngineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionOpened records a new engine session.
func (m *EngineMetrics) SessionOpened() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionClosed records a destroyed engine session.
func (m *EngineMetrics) SessionClosed() {
	m.SessionsActive.Dec()
}

// KeyProcessed records one key event.
func (m *EngineMetrics) KeyProcessed(consumed bool) {
	result := ResultPassed
	if consumed {
		result = ResultConsumed
	}
	m.KeyEventsTotal.WithLabelValues(result).Inc()
}

// Committed records a commit.
func (m *EngineMetrics) Committed() {
	m.CommitsTotal.Inc()
}

// RecordReload records a dictionary load that started at start.
func (m *EngineMetrics) RecordReload(start time.Time, err error) {
	m.ReloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.ReloadsTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.ReloadsTotal.WithLabelValues(StatusOK).Inc()
	m.DictionaryLoaded.SetToCurrentTime()
}

// Handler returns the /metrics handler for this registry.
func (m *EngineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Server serves the metrics endpoint.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger

	wg  sync.WaitGroup
	err error
}

// Listen binds addr and starts serving m in the background.
func Listen(addr string, m *EngineMetrics, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err)
			s.err = err
		}
	}()
	logger.Info("metrics endpoint listening", "address", ln.Addr().String())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return err
	}
	return s.err
}
