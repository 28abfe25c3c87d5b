// Package metrics exposes Prometheus counters for the API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its own registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.SummaryVec
	requests        *prometheus.CounterVec
	comments        *prometheus.CounterVec
	moderations     *prometheus.CounterVec
	likes           *prometheus.CounterVec
	searches        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestDuration: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace: "commentkit",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Objectives: map[float64]float64{
					0.5:  0.05,
					0.9:  0.01,
					0.99: 0.001,
				},
			},
			[]string{"method", "route", "status_code"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "commentkit",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		comments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "commentkit",
				Name:      "comments_created_total",
				Help:      "Comments created, by initial status",
			},
			[]string{"status"},
		),
		moderations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "commentkit",
				Name:      "moderation_actions_total",
				Help:      "Moderation actions, by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		likes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "commentkit",
				Name:      "likes_total",
				Help:      "Like toggles, by target kind and resulting state",
			},
			[]string{"target", "liked"},
		),
		searches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "commentkit",
				Name:      "searches_total",
				Help:      "Comment searches, by backend",
			},
			[]string{"backend"},
		),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	m.requests.WithLabelValues(method, route, code).Inc()
}

func (m *Metrics) CommentCreated(status string) {
	m.comments.WithLabelValues(status).Inc()
}

func (m *Metrics) Moderated(action, outcome string) {
	m.moderations.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) LikeToggled(target string, liked bool) {
	m.likes.WithLabelValues(target, strconv.FormatBool(liked)).Inc()
}

func (m *Metrics) Searched(backend string) {
	m.searches.WithLabelValues(backend).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
