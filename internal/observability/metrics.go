package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions       prometheus.Gauge
	storedMessages       prometheus.Gauge
	messageAppendTotal   *prometheus.CounterVec
	messageAppendSeconds prometheus.Histogram
	pageLoadSeconds      prometheus.Histogram
	evictionsTotal       prometheus.Counter
	decodeFailuresTotal  prometheus.Counter
	queueDepth           *prometheus.GaugeVec
	turnsFinalizedTotal  prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "session_active_total",
				Help: "Number of sessions present in the directory.",
			}),
			storedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "history_messages_total",
				Help: "Number of messages currently stored in the history log.",
			}),
			messageAppendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "history_append_total",
					Help: "Total message append operations by status.",
				},
				[]string{"status"},
			),
			messageAppendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "history_append_duration_seconds",
				Help:    "Duration of message append operations.",
				Buckets: prometheus.DefBuckets,
			}),
			pageLoadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "history_page_load_duration_seconds",
				Help:    "Duration of paginated history reads.",
				Buckets: prometheus.DefBuckets,
			}),
			evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "history_evictions_total",
				Help: "Messages evicted by the storage cap.",
			}),
			decodeFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "event_decode_failures_total",
				Help: "Raw event envelopes dropped by the codec.",
			}),
			queueDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "taskqueue_depth",
					Help: "Pending tasks per queue lane.",
				},
				[]string{"lane"},
			),
			turnsFinalizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stream_turns_finalized_total",
				Help: "Assistant turns finalized by the aggregator.",
			}),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.storedMessages,
			m.messageAppendTotal,
			m.messageAppendSeconds,
			m.pageLoadSeconds,
			m.evictionsTotal,
			m.decodeFailuresTotal,
			m.queueDepth,
			m.turnsFinalizedTotal,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered registers all module metrics with the default registry.
// Safe to call from every package that records metrics.
func EnsureRegistered() {
	getMetrics()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

// SetActiveSessions records the current session count.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// SetStoredMessages records the current history size.
func SetStoredMessages(n int) {
	getMetrics().storedMessages.Set(float64(n))
}

// RecordMessageAppend records one append operation.
func RecordMessageAppend(d time.Duration, err error) {
	m := getMetrics()
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.messageAppendTotal.WithLabelValues(status).Inc()
	m.messageAppendSeconds.Observe(d.Seconds())
}

// RecordPageLoad records one paginated read.
func RecordPageLoad(d time.Duration) {
	getMetrics().pageLoadSeconds.Observe(d.Seconds())
}

// AddEvictions counts cap-driven message evictions.
func AddEvictions(n int) {
	if n > 0 {
		getMetrics().evictionsTotal.Add(float64(n))
	}
}

// IncDecodeFailure counts one dropped envelope.
func IncDecodeFailure() {
	getMetrics().decodeFailuresTotal.Inc()
}

// SetQueueDepth records the pending task count for a lane.
func SetQueueDepth(lane string, n int) {
	getMetrics().queueDepth.WithLabelValues(lane).Set(float64(n))
}

// IncTurnFinalized counts one finalized assistant turn.
func IncTurnFinalized() {
	getMetrics().turnsFinalizedTotal.Inc()
}
