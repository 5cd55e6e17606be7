// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"whatsapp-panel-server/pkg/evolution"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "panel"

var (
	// ScheduledDispatch counts dispatcher outcomes: sent, rearmed, retried, failed
	ScheduledDispatch = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "dispatch_total",
		Help:      "Scheduled message dispatch outcomes.",
	}, []string{"outcome"})

	// DispatchRuns times full dispatcher passes
	DispatchRuns = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Duration of a dispatcher pass.",
		Buckets:   prometheus.DefBuckets,
	})

	// WebhookEvents counts inbound gateway events by type and result
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Evolution API webhook events received.",
	}, []string{"event", "result"})

	// AutomationTriggers counts automation replies by response type
	AutomationTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "automation",
		Name:      "triggers_total",
		Help:      "Automation rules that fired.",
	}, []string{"response_type"})

	// GatewayRequests times Evolution API calls
	GatewayRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Evolution API request latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "status"})

	// HTTPRequests counts API requests by route and status
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served.",
	}, []string{"method", "route", "status"})
)

// ObserveGateway records one gateway call; it satisfies evolution.Observer
func ObserveGateway(operation string, elapsed time.Duration, err error) {
	status := "ok"
	var apiErr *evolution.APIError
	switch {
	case errors.As(err, &apiErr):
		status = strconv.Itoa(apiErr.StatusCode)
	case err != nil:
		status = "error"
	}
	GatewayRequests.WithLabelValues(operation, status).Observe(elapsed.Seconds())
}

// Middleware counts requests by matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler exposes the default registry
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
