package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	HTTPDuration *prometheus.HistogramVec
	HTTPTotal    *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	JobsTotal    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status_code"}),
		HTTPTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_processing_duration_seconds",
			Help:    "Duration of background job processing",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		}, []string{"job_name", "status"}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Background jobs processed, by outcome",
		}, []string{"job_name", "status"}),
	}
	reg.MustRegister(m.HTTPDuration, m.HTTPTotal, m.JobDuration, m.JobsTotal)
	return m
}

// ObserveJob records one job attempt.
func (m *Metrics) ObserveJob(name string, failed bool, d time.Duration) {
	status := "success"
	if failed {
		status = "failed"
	}
	m.JobDuration.WithLabelValues(name, status).Observe(d.Seconds())
	m.JobsTotal.WithLabelValues(name, status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware labels requests with the matched chi route pattern, not the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method":      r.Method,
			"route":       route,
			"status_code": strconv.Itoa(status),
		}
		m.HTTPDuration.With(labels).Observe(time.Since(start).Seconds())
		m.HTTPTotal.With(labels).Inc()
	})
}
