package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commentd_http_requests_total",
		Help: "Handled HTTP requests by route pattern and status.",
	}, []string{"method", "route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "commentd_http_request_duration_seconds",
		Help: "HTTP request latency by route pattern.",
	}, []string{"method", "route"})
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observeRequest records one handled request. Metrics are labelled by the
// matched route pattern, not the raw path, to keep cardinality bounded.
func observeRequest(r *http.Request, status int, elapsed time.Duration) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
}
