package transport

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	requestsMetricName = "revisions_client_requests_total"
	durationMetricName = "revisions_client_request_duration_seconds"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: requestsMetricName,
		Help: "Requests issued to the deployment API, by method and status code (0 when no response was received)",
	}, []string{"method", "code"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    durationMetricName,
		Help:    "Latency of requests issued to the deployment API",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	registerMetricsOnce sync.Once
)

func registerMetrics() {
	registerMetricsOnce.Do(func() {
		metrics.Registry.MustRegister(requestsTotal, requestDuration)
	})
}

func observeRequest(method string, statusCode int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
