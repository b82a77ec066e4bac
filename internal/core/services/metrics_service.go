package services

import (
	"sync"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
)

// MetricsService keeps in-process counters behind GET /bot/stats.
type MetricsService struct {
	mu sync.RWMutex

	starts map[string]int
	stops  map[string]int

	load             int
	limit            int
	admissionWaitMax time.Duration
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		starts: make(map[string]int),
		stops:  make(map[string]int),
	}
}

func (m *MetricsService) RecordStart(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts[outcome]++
}

func (m *MetricsService) RecordStop(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops[outcome]++
}

func (m *MetricsService) SetLoad(load, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.load = load
	m.limit = limit
}

func (m *MetricsService) ObserveAdmissionWait(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d := time.Duration(seconds * float64(time.Second)); d > m.admissionWaitMax {
		m.admissionWaitMax = d
	}
}

func (m *MetricsService) Snapshot() domain.StreamStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return domain.StreamStats{
		Starts:           copyCounts(m.starts),
		Stops:            copyCounts(m.stops),
		Load:             m.load,
		Limit:            m.limit,
		Utilization:      utilization(m.load, m.limit),
		AdmissionWaitMax: m.admissionWaitMax,
		Timestamp:        time.Now(),
	}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func utilization(load, limit int) float64 {
	if limit <= 0 {
		return 1.0
	}
	u := float64(load) / float64(limit)
	if u > 1.0 {
		return 1.0
	}
	return u
}

// MultiMetrics fans every observation out to several sinks.
type MultiMetrics []ports.StreamMetrics

func (mm MultiMetrics) RecordStart(outcome string) {
	for _, m := range mm {
		m.RecordStart(outcome)
	}
}

func (mm MultiMetrics) RecordStop(outcome string) {
	for _, m := range mm {
		m.RecordStop(outcome)
	}
}

func (mm MultiMetrics) SetLoad(load, limit int) {
	for _, m := range mm {
		m.SetLoad(load, limit)
	}
}

func (mm MultiMetrics) ObserveAdmissionWait(seconds float64) {
	for _, m := range mm {
		m.ObserveAdmissionWait(seconds)
	}
}
