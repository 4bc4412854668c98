package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream call rate by upstream (countries, pokeapi, weather) and status class.
	UpstreamCallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p95 > 2s on weather (country-info latency follows it).
	UpstreamDuration *prometheus.HistogramVec

	// Retry attempts per upstream. High values = unstable upstream.
	UpstreamRetriesTotal *prometheus.CounterVec

	// Upstream failures by category (timeout, network, not_found, upstream_5xx...).
	UpstreamErrorsTotal *prometheus.CounterVec

	// Failures absorbed without failing the request (weather, description).
	SoftFailuresTotal *prometheus.CounterVec

	// Weather events derived for country-info responses; event="none" when no event.
	WeatherEventsTotal *prometheus.CounterVec

	// Habitat lookups by primary type. Type is a closed set of 18 labels.
	HabitatLookupsTotal *prometheus.CounterVec

	// Callers that joined an upstream lookup already in flight, by lookup kind.
	RequestCoalescingHitsTotal *prometheus.CounterVec

	// Startup warm runs, errors and durations per cache (countries, names).
	CacheWarmingTotal           *prometheus.CounterVec
	CacheWarmingErrorsTotal     *prometheus.CounterVec
	CacheWarmingDurationSeconds *prometheus.HistogramVec

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState       *prometheus.GaugeVec
	CircuitBreakerTransitions *prometheus.CounterVec

	cacheGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of upstream API calls",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Upstream API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"upstream", "status"},
	)
	UpstreamRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamRetriesTotal",
			Help: "Total number of retry attempts for upstream API calls",
		},
		[]string{"upstream"},
	)
	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamErrorsTotal",
			Help: "Upstream API failures by category",
		},
		[]string{"upstream", "category"},
	)
	SoftFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "softFailuresTotal",
			Help: "Upstream failures absorbed into a degraded but successful response",
		},
		[]string{"kind"},
	)
	WeatherEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherEventsTotal",
			Help: "Weather-derived type events served with country info",
		},
		[]string{"event"},
	)
	HabitatLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habitatLookupsTotal",
			Help: "Habitat lookups by species primary type",
		},
		[]string{"type"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Lookups served by joining an identical upstream call in flight",
		},
		[]string{"kind"},
	)
	CacheWarmingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Startup cache population runs",
		},
		[]string{"cache"},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Startup cache population failures",
		},
		[]string{"cache"},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Startup cache population duration in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"cache"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamCallsTotal, UpstreamDuration, UpstreamRetriesTotal, UpstreamErrorsTotal,
		SoftFailuresTotal, WeatherEventsTotal, HabitatLookupsTotal, RequestCoalescingHitsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		CircuitBreakerState, CircuitBreakerTransitions,
	)
}

// RegisterCacheGauges registers size gauges for the country and name caches.
// Call once from main after the caches exist; later calls are ignored.
func RegisterCacheGauges(countries, names func() int) {
	cacheGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name:        "cacheEntries",
					Help:        "Entries held by a process-lifetime cache",
					ConstLabels: prometheus.Labels{"cache": "countries"},
				},
				func() float64 { return float64(countries()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name:        "cacheEntries",
					Help:        "Entries held by a process-lifetime cache",
					ConstLabels: prometheus.Labels{"cache": "names"},
				},
				func() float64 { return float64(names()) },
			),
		)
	})
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, state int) {
	CircuitBreakerTransitions.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(state))
}

// RecordWeatherEvent counts the event attached to a weather snapshot ("" = none).
func RecordWeatherEvent(event string) {
	if event == "" {
		event = "none"
	}
	WeatherEventsTotal.WithLabelValues(event).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
