package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parceltrack"

// Metrics is safe to use as a nil pointer: every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	ShipmentsCreated        prometheus.Counter
	EventsAppended          *prometheus.CounterVec
	NotificationsDispatched *prometheus.CounterVec
	NotificationRetries     *prometheus.CounterVec
	RetrierClaimed          prometheus.Counter
	HTTPRequests            *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
	RateLimitedRequests     prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ShipmentsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shipments_created_total",
			Help:      "Shipments created.",
		}),
		EventsAppended: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_events_appended_total",
			Help:      "Tracking events appended to shipments.",
		}, []string{"event_type"}),
		NotificationsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Notification dispatch attempts by channel and outcome.",
		}, []string{"type", "outcome"}),
		NotificationRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_retries_scheduled_total",
			Help:      "Failed notifications scheduled for another attempt.",
		}, []string{"type"}),
		RetrierClaimed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrier_claimed_total",
			Help:      "Due notifications claimed by the retry worker.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimitedRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "API key requests rejected by the hourly limit.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ShipmentCreated() {
	if m == nil {
		return
	}
	m.ShipmentsCreated.Inc()
}

func (m *Metrics) EventAppended(eventType string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) NotificationDispatched(typ, outcome string) {
	if m == nil {
		return
	}
	m.NotificationsDispatched.WithLabelValues(typ, outcome).Inc()
}

func (m *Metrics) RetryScheduled(typ string) {
	if m == nil {
		return
	}
	m.NotificationRetries.WithLabelValues(typ).Inc()
}

func (m *Metrics) Claimed(n int) {
	if m == nil {
		return
	}
	m.RetrierClaimed.Add(float64(n))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedRequests.Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
