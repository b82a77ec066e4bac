package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bbb_streaming"

type PrometheusCollector struct {
	// Lifecycle
	startsTotal *prometheus.CounterVec
	stopsTotal  *prometheus.CounterVec

	// Capacity
	workersLoad     prometheus.Gauge
	workersCapacity prometheus.Gauge

	// Histograms
	admissionWait   prometheus.Histogram
	requestDuration *prometheus.HistogramVec

	requestsTotal *prometheus.CounterVec

	directoryBreakerState prometheus.Gauge
	eventSubscribers      prometheus.Gauge
}

// NewPrometheusCollector registers on reg, or on the default registry when
// reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		startsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_starts_total",
			Help:      "Stream start attempts by outcome",
		}, []string{"outcome"}),

		stopsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_stops_total",
			Help:      "Stream stop attempts by outcome",
		}, []string{"outcome"}),

		workersLoad: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_load",
			Help:      "Worker instances visible on the host at the last check",
		}),

		workersCapacity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_capacity",
			Help:      "Configured maximum number of concurrent streams",
		}),

		admissionWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for the admission guard",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		directoryBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_circuit_breaker_state",
			Help:      "Meeting directory circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),

		eventSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Connected lifecycle event subscribers",
		}),
	}
}

func (p *PrometheusCollector) RecordStart(outcome string) {
	p.startsTotal.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) RecordStop(outcome string) {
	p.stopsTotal.WithLabelValues(outcome).Inc()
}

func (p *PrometheusCollector) SetLoad(load, limit int) {
	p.workersLoad.Set(float64(load))
	p.workersCapacity.Set(float64(limit))
}

func (p *PrometheusCollector) ObserveAdmissionWait(seconds float64) {
	p.admissionWait.Observe(seconds)
}

func (p *PrometheusCollector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (p *PrometheusCollector) SetDirectoryBreakerState(state int) {
	p.directoryBreakerState.Set(float64(state))
}

func (p *PrometheusCollector) SetEventSubscribers(n int) {
	p.eventSubscribers.Set(float64(n))
}
