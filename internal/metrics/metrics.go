// Package metrics exposes Prometheus collectors for timeline builds, the
// job queue, coordinate lookups and event publishing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stuartshay/stay-timeline/internal/geocode"
	"github.com/stuartshay/stay-timeline/internal/queue"
)

const namespace = "stay_timeline"

// Collector owns a private registry with every service metric
type Collector struct {
	reg *prometheus.Registry

	Builds        *prometheus.CounterVec // result label: success|failure
	BuildDuration prometheus.Histogram
	DaysBuilt     prometheus.Counter
	Overlaps      prometheus.Counter

	Jobs        *prometheus.CounterVec // kind, status labels
	JobDuration *prometheus.HistogramVec

	CoordinateLookups *prometheus.CounterVec // result label: hit|miss

	EventsPublished    prometheus.Counter
	EventPublishErrors prometheus.Counter
	NATSConnected      prometheus.Gauge
}

// NewCollector creates and registers all collectors, including the Go
// runtime and process collectors
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Timeline builds by result.",
		}, []string{"result"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of a single timeline build.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DaysBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_built_total",
			Help:      "Days emitted by successful builds.",
		}),
		Overlaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlaps_resolved_total",
			Help:      "Days claimed by more than one stay.",
		}),
		Jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished queue jobs by kind and status.",
		}, []string{"kind", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Processing time of finished jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"kind"}),
		CoordinateLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordinate_lookups_total",
			Help:      "Coordinate resolver cache hits and misses.",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Job events published to NATS.",
		}),
		EventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Job events that failed to publish.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.Builds, c.BuildDuration, c.DaysBuilt, c.Overlaps,
		c.Jobs, c.JobDuration,
		c.CoordinateLookups,
		c.EventsPublished, c.EventPublishErrors, c.NATSConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the collector's registry
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// BuildSucceeded implements timeline.Observer
func (c *Collector) BuildSucceeded(days, overlaps int, elapsed time.Duration) {
	c.Builds.WithLabelValues("success").Inc()
	c.BuildDuration.Observe(elapsed.Seconds())
	c.DaysBuilt.Add(float64(days))
	c.Overlaps.Add(float64(overlaps))
}

// BuildFailed implements timeline.Observer
func (c *Collector) BuildFailed(_ error, elapsed time.Duration) {
	c.Builds.WithLabelValues("failure").Inc()
	c.BuildDuration.Observe(elapsed.Seconds())
}

// JobFinished records a terminal job; it has the queue.Listener signature
func (c *Collector) JobFinished(job queue.Job) {
	c.Jobs.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	if job.StartedAt != nil && job.CompletedAt != nil {
		c.JobDuration.WithLabelValues(string(job.Kind)).Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
	}
}

// ObserveResolver adds a resolver's cache statistics
func (c *Collector) ObserveResolver(s geocode.Stats) {
	c.CoordinateLookups.WithLabelValues("hit").Add(float64(s.Hits))
	c.CoordinateLookups.WithLabelValues("miss").Add(float64(s.Misses))
}

// WatchQueue exports the queue's pending depth and job counts as gauges
func (c *Collector) WatchQueue(q *queue.Queue) {
	c.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending_jobs",
			Help:      "Jobs waiting for a worker.",
		}, func() float64 { return float64(q.Pending()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_tracked_jobs",
			Help:      "Jobs held in memory in any state.",
		}, func() float64 { return float64(q.GetStats()["total"]) }),
	)
}

// PublishedInc counts a published event
func (c *Collector) PublishedInc() { c.EventsPublished.Inc() }

// PublishErrInc counts a failed publish
func (c *Collector) PublishErrInc() { c.EventPublishErrors.Inc() }

// SetConnected records the NATS connection state
func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}
