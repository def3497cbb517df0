package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports Recorder events as Prometheus collectors.
type PrometheusRecorder struct {
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	jobsSubmitted   *prometheus.CounterVec
	enqueueFailures *prometheus.CounterVec
	jobsProcessed   *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	queueDepth      *prometheus.GaugeVec
	deliveries      *prometheus.CounterVec
}

// NewPrometheus registers the collectors on reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	f := promauto.With(reg)
	return &PrometheusRecorder{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auralforge_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auralforge_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		jobsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auralforge_jobs_submitted_total",
			Help: "Jobs accepted by the API",
		}, []string{"type"}),
		enqueueFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auralforge_jobs_enqueue_failed_total",
			Help: "Jobs persisted but not enqueued",
		}, []string{"type"}),
		jobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auralforge_jobs_processed_total",
			Help: "Job attempts finished by workers, by outcome",
		}, []string{"type", "outcome"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auralforge_job_duration_seconds",
			Help:    "Time spent processing one job attempt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "auralforge_queue_depth",
			Help: "Pending plus undelivered entries per queue",
		}, []string{"queue"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auralforge_notification_deliveries_total",
			Help: "Job callback delivery attempts by result",
		}, []string{"status"}),
	}
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobSubmitted(jobType string) {
	p.jobsSubmitted.WithLabelValues(jobType).Inc()
}

func (p *PrometheusRecorder) IncJobEnqueueFailed(jobType string) {
	p.enqueueFailures.WithLabelValues(jobType).Inc()
}

func (p *PrometheusRecorder) IncJobProcessed(jobType, outcome string) {
	p.jobsProcessed.WithLabelValues(jobType, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveJobDuration(jobType string, d time.Duration) {
	p.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetQueueDepth(queue string, depth int64) {
	p.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (p *PrometheusRecorder) IncNotificationDelivery(status string) {
	p.deliveries.WithLabelValues(status).Inc()
}
