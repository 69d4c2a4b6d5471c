package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ResultOK          = "ok"
	ResultEmpty       = "empty"
	ResultConfigError = "config_error"
	ResultError       = "error"
	ResultAppended    = "appended"
	ResultFailed      = "failed"
)

// Metrics holds the collectors of one process. All methods are safe on a nil receiver.
type Metrics struct {
	registry      *prometheus.Registry
	served        *prometheus.CounterVec
	queueItems    prometheus.Gauge
	flushes       *prometheus.CounterVec
	flushDuration prometheus.Histogram
	ingested      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		served: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rss_priority_served_total",
			Help: "Serve-next requests by result.",
		}, []string{"result"}),
		queueItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rss_priority_queue_items",
			Help: "Items currently held in the consumer cache.",
		}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rss_priority_flush_total",
			Help: "Cache flushes to the store by result.",
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rss_priority_flush_duration_seconds",
			Help:    "Time spent flushing, including lock wait.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rss_priority_ingest_items_total",
			Help: "Ingested candidates by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.served,
		m.queueItems,
		m.flushes,
		m.flushDuration,
		m.ingested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveServe(result string) {
	if m == nil {
		return
	}
	m.served.WithLabelValues(result).Inc()
}

func (m *Metrics) SetQueueItems(n int) {
	if m == nil {
		return
	}
	m.queueItems.Set(float64(n))
}

func (m *Metrics) ObserveFlush(err error, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.flushes.WithLabelValues(result).Inc()
	m.flushDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveIngest(appended, failed int) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(ResultAppended).Add(float64(appended))
	m.ingested.WithLabelValues(ResultFailed).Add(float64(failed))
}
