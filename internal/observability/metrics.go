package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	ExtractionRuns   *prometheus.CounterVec
	MemoriesAdded    prometheus.Counter
	MemoryDuplicates prometheus.Counter
	LLMCalls         *prometheus.CounterVec
	LLMLatency       prometheus.Histogram
	TaskServiceCalls *prometheus.CounterVec
	RemindersFired   prometheus.Counter
	EventSubscribers prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		ExtractionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_runs_total",
			Help:      "Fact extraction runs by strategy (generative, heuristic, skipped).",
		}, []string{"strategy"}),
		MemoriesAdded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memories_added_total",
			Help:      "Memories stored after deduplication.",
		}),
		MemoryDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_duplicates_dropped_total",
			Help:      "Candidate memories dropped as duplicates.",
		}),
		LLMCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Text generation calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		LLMLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_ms",
			Help:      "Text generation latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		TaskServiceCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_service_calls_total",
			Help:      "Task service calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		RemindersFired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_fired_total",
			Help:      "Reminders marked complete by the sweeper.",
		}),
		EventSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Connected live refresh websocket clients.",
		}),
	}
}

func (m *Metrics) ObserveHTTPRequest(route, method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveExtraction(strategy string, added, dropped int) {
	if m == nil {
		return
	}
	m.ExtractionRuns.WithLabelValues(strategy).Inc()
	m.ObserveMemories(added, dropped)
}

func (m *Metrics) ObserveMemories(added, dropped int) {
	if m == nil {
		return
	}
	if added > 0 {
		m.MemoriesAdded.Add(float64(added))
	}
	if dropped > 0 {
		m.MemoryDuplicates.Add(float64(dropped))
	}
}

func (m *Metrics) ObserveLLMCall(purpose, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMCalls.WithLabelValues(purpose, outcome).Inc()
	m.LLMLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveTaskServiceCall(op, outcome string) {
	if m == nil {
		return
	}
	m.TaskServiceCalls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveReminderFired() {
	if m == nil {
		return
	}
	m.RemindersFired.Inc()
}

func (m *Metrics) SubscriberConnected() {
	if m == nil {
		return
	}
	m.EventSubscribers.Inc()
}

func (m *Metrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.EventSubscribers.Dec()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
