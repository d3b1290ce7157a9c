// Package metrics exposes Prometheus collectors for the HTTP layer and the
// marketplace, bio-link and automation subsystems.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkmarket_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "linkmarket_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "route"})

	// kind: view, click
	AnalyticsHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkmarket_biolink_hits_total",
		Help: "Recorded bio page views and clicks",
	}, []string{"kind"})

	AnalyticsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkmarket_biolink_hits_dropped_total",
		Help: "Hits that could not be persisted",
	})

	PageCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkmarket_page_cache_total",
		Help: "Public page cache lookups by result",
	}, []string{"result"})

	AutomationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkmarket_automation_actions_total",
		Help: "Automation action invocations by provider and status",
	}, []string{"provider", "status"})

	AutomationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkmarket_automation_action_duration_seconds",
		Help:    "Duration of a single automation action including retries",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkmarket_orders_total",
		Help: "Orders by outcome",
	}, []string{"outcome"})

	OrderRevenue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkmarket_order_revenue_cents_total",
		Help: "Sum of placed order totals in cents",
	})

	IntakeSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkmarket_intake_submissions_total",
		Help: "Client intake submissions by outcome",
	}, []string{"outcome"})
)

// Middleware records request counts and latency by matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
