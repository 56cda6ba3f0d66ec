// Package metrics provides Prometheus metrics for crowdcast.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector crowdcast exports. All recording helpers
// accept a nil receiver so components can run without metrics in tests.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FeedFetchesTotal  *prometheus.CounterVec
	FeedFetchDuration *prometheus.HistogramVec
	FeedCacheTotal    *prometheus.CounterVec
	DecodeErrorsTotal *prometheus.CounterVec

	CrowdingScore *prometheus.GaugeVec

	// schedule store connection pool
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	logger *slog.Logger

	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger is New with a logger used for collector failures.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdcast_http_requests_total",
			Help: "HTTP requests by route pattern, transit mode and status",
		}, []string{"method", "path", "mode", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crowdcast_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		FeedFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdcast_feed_fetches_total",
			Help: "Upstream feed fetches by feed kind and result",
		}, []string{"feed", "result"}),
		FeedFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crowdcast_feed_fetch_duration_seconds",
			Help:    "Upstream feed fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"feed"}),
		FeedCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdcast_feed_cache_lookups_total",
			Help: "Feed cache lookups by feed kind and outcome",
		}, []string{"feed", "outcome"}),
		DecodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdcast_decode_errors_total",
			Help: "Payloads rejected by the protobuf decoder or alert validator",
		}, []string{"source"}),
		CrowdingScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crowdcast_route_crowding_score",
			Help: "Most recently computed 0-100 crowding score per route",
		}, []string{"mode", "route"}),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdcast_schedule_db_connections_open",
			Help: "Number of open schedule database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdcast_schedule_db_connections_in_use",
			Help: "Number of schedule database connections currently in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdcast_schedule_db_connections_idle",
			Help: "Number of idle schedule database connections",
		}),
		DBWaitSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crowdcast_schedule_db_wait_seconds_total",
			Help: "Total time blocked waiting for a schedule database connection",
		}),
		logger: logger,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.FeedFetchesTotal,
		m.FeedFetchDuration,
		m.FeedCacheTotal,
		m.DecodeErrorsTotal,
		m.CrowdingScore,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitSecondsTotal,
	)

	return m
}

// ObserveFetch records one upstream fetch. result is "ok", "error",
// "status" (non-2xx) or "skipped".
func (m *Metrics) ObserveFetch(feed, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FeedFetchesTotal.WithLabelValues(feed, result).Inc()
	if result == "ok" || result == "error" || result == "status" {
		m.FeedFetchDuration.WithLabelValues(feed).Observe(d.Seconds())
	}
}

func (m *Metrics) CacheLookup(feed string, hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.FeedCacheTotal.WithLabelValues(feed, outcome).Inc()
}

func (m *Metrics) DecodeFailed(source string) {
	if m == nil {
		return
	}
	m.DecodeErrorsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordScore(mode, route string, score int) {
	if m == nil {
		return
	}
	m.CrowdingScore.WithLabelValues(mode, route).Set(float64(score))
}

// StartDBStatsCollector samples db.Stats() every interval until Shutdown.
// Calls after the first are ignored.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil && m.logger != nil {
				m.logger.Error("panic in schedule DB stats collector", "error", r)
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastWait time.Duration
		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))
				if delta := stats.WaitDuration - lastWait; delta > 0 {
					m.DBWaitSecondsTotal.Add(delta.Seconds())
				}
				lastWait = stats.WaitDuration
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the stats collector and waits for it. Safe to call twice.
func (m *Metrics) Shutdown() {
	if m == nil {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
