package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tapspot/apperr"
)

var (
	chatOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_operations_total",
			Help: "Total number of chat operations processed",
		},
		[]string{"operation", "status"},
	)

	chatOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_operation_duration_seconds",
			Help:    "Duration of chat operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	chatErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_errors_total",
			Help: "Total number of chat operation errors by kind",
		},
		[]string{"operation", "kind"},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Number of open live channel connections on this instance",
		},
	)

	pushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Push delivery attempts by path and result",
		},
		[]string{"path", "result"},
	)
)

// recordChatOperation учитывает операцию с диалогами
func recordChatOperation(operation string, started time.Time, errp *error) {
	status := "ok"
	if err := *errp; err != nil {
		status = "error"
		chatErrors.WithLabelValues(operation, string(apperr.KindOf(err))).Inc()
	}
	chatOperationsTotal.WithLabelValues(operation, status).Inc()
	chatOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Результаты push: published значит только "принято брокером"
const (
	pushDelivered = "delivered"
	pushOffline   = "offline"
	pushPublished = "published"
)

func recordPush(path, result string) {
	pushDeliveries.WithLabelValues(path, result).Inc()
}
