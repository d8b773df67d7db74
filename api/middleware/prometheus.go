package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route template and status",
		},
		[]string{"service", "method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route template",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"service", "method", "route"},
	)

	requestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests being served, live channel connections included",
		},
		[]string{"service"},
	)
)

// PrometheusMiddleware считает запросы по шаблону маршрута, а не по сырому пути
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	service := prometheus.Labels{"service": serviceName}
	total := requestsTotal.MustCurryWith(service)
	duration := requestDuration.MustCurryWith(service)
	inFlight := requestsInFlight.WithLabelValues(serviceName)

	return func(c *gin.Context) {
		inFlight.Inc()
		defer inFlight.Dec()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		total.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
