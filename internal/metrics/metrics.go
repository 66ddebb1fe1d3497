// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signbridge_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signbridge_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	appointmentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signbridge_appointment_transitions_total",
		Help: "Appointment lifecycle operations by action and outcome.",
	}, []string{"action", "outcome"})

	auditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signbridge_audit_write_failures_total",
		Help: "Best-effort audit events that could not be stored.",
	})

	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signbridge_notifications_total",
		Help: "Email notifications by template and outcome.",
	}, []string{"template", "outcome"})
)

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTransition counts a lifecycle operation. A nil err is a success.
func ObserveTransition(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	appointmentTransitions.WithLabelValues(action, outcome).Inc()
}

// ObserveAuditFailure counts a dropped best-effort audit event.
func ObserveAuditFailure() {
	auditFailures.Inc()
}

// ObserveNotification counts a sent or failed email.
func ObserveNotification(template string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	notificationsSent.WithLabelValues(template, outcome).Inc()
}
