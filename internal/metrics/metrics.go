// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Noop implements core.Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveExtraction(string, int, int64, time.Duration) {}

func (Noop) ObserveDelivery(string, string) {}

// Prom records extraction outcomes in a dedicated registry.
type Prom struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	files     prometheus.Counter
	bytes     prometheus.Counter
	durations *prometheus.HistogramVec
	delivered *prometheus.CounterVec
}

// NewProm creates collectors under namespace and registers them, together
// with the Go and process collectors, on a fresh registry.
func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction requests by outcome",
		}, []string{"outcome"}),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extracted_files_total",
			Help:      "Files written by successful extractions",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_total",
			Help:      "Size of archives that were extracted",
		}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Extraction latency by outcome",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"outcome"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_files_total",
			Help:      "Files sent back to chat users by kind and status",
		}, []string{"kind", "status"}),
	}
	p.registry.MustRegister(
		p.requests, p.files, p.bytes, p.durations, p.delivered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// ObserveExtraction implements core.Metrics.
func (p *Prom) ObserveExtraction(outcome string, files int, bytes int64, duration time.Duration) {
	p.requests.WithLabelValues(outcome).Inc()
	p.durations.WithLabelValues(outcome).Observe(duration.Seconds())
	if files > 0 {
		p.files.Add(float64(files))
	}
	if bytes > 0 {
		p.bytes.Add(float64(bytes))
	}
}

// ObserveDelivery counts one file sent (or not) to a chat.
func (p *Prom) ObserveDelivery(kind, status string) {
	p.delivered.WithLabelValues(kind, status).Inc()
}

// Registry returns the underlying registry.
func (p *Prom) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
