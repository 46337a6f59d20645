package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gerun/internal/alloc"
)

// Cache type labels known to the hit-ratio read-back
var cacheTypes = []string{"prices_latest", "prices_mapping", "ticks_redis"}

// MetricsRegistry holds the service's Prometheus metrics on a dedicated
// registry, so tests can build as many instances as they like without
// colliding on the global default.
type MetricsRegistry struct {
	registry *prometheus.Registry

	// Allocation pipeline
	AllocationRequests *prometheus.CounterVec
	AllocationDuration prometheus.Histogram
	StepDuration       *prometheus.HistogramVec
	UtilizationRate    prometheus.Gauge
	PlannedTrades      *prometheus.CounterVec

	// Signal ingest
	IngestRecords *prometheus.CounterVec

	// Cache performance
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	// Websocket subscribers
	WSClients prometheus.Gauge
}

// NewMetricsRegistry creates and registers all service metrics
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		AllocationRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerun_allocation_requests_total",
				Help: "Allocation runs by outcome",
			},
			[]string{"result"},
		),

		AllocationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gerun_allocation_duration_seconds",
				Help:    "Wall time of one allocation run",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gerun_step_duration_seconds",
				Help:    "Duration of each request-handling step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"step", "result"},
		),

		UtilizationRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gerun_capital_utilization_rate",
				Help: "Share of bankroll committed by the last plan (0.0 to 1.0)",
			},
		),

		PlannedTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerun_planned_trades_total",
				Help: "Trades emitted in plans by strategy",
			},
			[]string{"strategy"},
		),

		IngestRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerun_ingest_records_total",
				Help: "Opportunity stream records by ingest outcome",
			},
			[]string{"result"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gerun_cache_hit_ratio",
				Help: "Current cache hit ratio across all cache types (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerun_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gerun_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		WSClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gerun_ws_clients",
				Help: "Connected plan-feed websocket clients",
			},
		),
	}

	m.registry.MustRegister(
		m.AllocationRequests,
		m.AllocationDuration,
		m.StepDuration,
		m.UtilizationRate,
		m.PlannedTrades,
		m.IngestRecords,
		m.CacheHitRatio,
		m.CacheHits,
		m.CacheMisses,
		m.WSClients,
	)

	return m
}

// StepTimer tracks execution time for one request-handling step
type StepTimer struct {
	metrics *MetricsRegistry
	step    string
	start   time.Time
}

// StartStepTimer begins timing a step
func (m *MetricsRegistry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{metrics: m, step: step, start: time.Now()}
}

// Stop completes the timing and records the observation
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("step completed")
}

// RecordAllocation counts one allocation run and, on success, its duration
func (m *MetricsRegistry) RecordAllocation(result string, duration time.Duration) {
	m.AllocationRequests.WithLabelValues(result).Inc()
	if result == "ok" {
		m.AllocationDuration.Observe(duration.Seconds())
	}
}

// RecordPlan publishes the plan-level gauges and counters
func (m *MetricsRegistry) RecordPlan(plan *alloc.AllocationPlan) {
	if plan.TotalCapital > 0 {
		m.UtilizationRate.Set(plan.TotalAllocated / plan.TotalCapital)
	} else {
		m.UtilizationRate.Set(0)
	}
	m.PlannedTrades.WithLabelValues(string(alloc.StrategyInstantFlip)).
		Add(float64(len(plan.InstantFlips.Trades)))
	m.PlannedTrades.WithLabelValues(string(alloc.StrategyPatientOffer)).
		Add(float64(len(plan.PatientOffers.Trades)))
}

// RecordIngest counts one opportunity stream record by outcome
func (m *MetricsRegistry) RecordIngest(result string) {
	m.IngestRecords.WithLabelValues(result).Inc()
}

// RecordCacheHit records a cache hit for the given cache type
func (m *MetricsRegistry) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the given cache type
func (m *MetricsRegistry) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// IncWSClients counts a websocket subscriber joining
func (m *MetricsRegistry) IncWSClients() { m.WSClients.Inc() }

// DecWSClients counts a websocket subscriber leaving
func (m *MetricsRegistry) DecWSClients() { m.WSClients.Dec() }

// updateCacheHitRatio reads the hit/miss counters back and derives the ratio
// gauge from their sum
func (m *MetricsRegistry) updateCacheHitRatio() {
	var sample io_prometheus_client.Metric
	totalHits := 0.0
	totalMisses := 0.0

	for _, cacheType := range cacheTypes {
		if counter, err := m.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := counter.Write(&sample); err == nil {
				totalHits += sample.GetCounter().GetValue()
			}
		}
		if counter, err := m.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := counter.Write(&sample); err == nil {
				totalMisses += sample.GetCounter().GetValue()
			}
		}
	}

	if total := totalHits + totalMisses; total > 0 {
		m.CacheHitRatio.Set(totalHits / total)
	}
}

// Handler serves the registry in Prometheus exposition format
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests
func (m *MetricsRegistry) Gather() ([]*io_prometheus_client.MetricFamily, error) {
	return m.registry.Gather()
}
