package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg            *prometheus.Registry
	Discovered     prometheus.Counter
	Queued         prometheus.Gauge
	ResumeSkipped  prometheus.Counter
	JobsStarted    prometheus.Counter
	JobsFinished   *prometheus.CounterVec
	JobDurationSec prometheus.Histogram
	Inflight       *prometheus.GaugeVec
	ImageFailures  *prometheus.CounterVec
	Upserts        prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	discovered := prometheus.NewCounter(prometheus.CounterOpts{Name: "harvest_discovered_urls_total"})
	queued := prometheus.NewGauge(prometheus.GaugeOpts{Name: "harvest_queue_size"})
	resumeSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "harvest_resume_skipped_total"})
	started := prometheus.NewCounter(prometheus.CounterOpts{Name: "harvest_jobs_started_total"})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "harvest_jobs_finished_total"}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_job_duration_seconds",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	})
	inflight := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "harvest_jobs_inflight"}, []string{"state"})
	imageFailures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "harvest_image_failures_total"}, []string{"kind"})
	upserts := prometheus.NewCounter(prometheus.CounterOpts{Name: "harvest_upserts_total"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "harvest_http_requests_total"}, []string{"code", "method"})

	r.MustRegister(discovered, queued, resumeSkipped, started, finished, duration, inflight, imageFailures, upserts, requests)
	return &Registry{
		reg:            r,
		Discovered:     discovered,
		Queued:         queued,
		ResumeSkipped:  resumeSkipped,
		JobsStarted:    started,
		JobsFinished:   finished,
		JobDurationSec: duration,
		Inflight:       inflight,
		ImageFailures:  imageFailures,
		Upserts:        upserts,
		HTTPRequests:   requests,
	}
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Instrument counts requests served by next by status code and method.
func (r *Registry) Instrument(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(r.HTTPRequests, next)
}
