// ============================================================================
// backend/internal/metrics/metrics.go
// Prometheus collectors for the store, the grade workflow and the RPC layer
// ============================================================================

package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const namespace = "classroom"

var (
	// StoreRetries counts retried store operations by operation name
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Store operations retried after a transient failure.",
	}, []string{"op"})

	// CacheRequests counts point reads served by the cache decorator
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "cache_requests_total",
		Help:      "Cached point reads by result (hit, miss).",
	}, []string{"result"})

	// MutateConflicts counts conditional writes that lost to a concurrent writer
	MutateConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "mutate_conflicts_total",
		Help:      "Revision conflicts seen by conditional writes.",
	}, []string{"collection"})

	// GradeTransitions counts grade lifecycle moves by target status
	GradeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "grades",
		Name:      "transitions_total",
		Help:      "Grade record status transitions by target status.",
	}, []string{"to"})

	// EnrollmentAttempts counts roster joins by outcome
	EnrollmentAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrollment",
		Name:      "attempts_total",
		Help:      "Enrollment attempts by outcome.",
	}, []string{"outcome"})

	// CodeGenerationAttempts observes how many draws a unique code needed
	CodeGenerationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "enrollment",
		Name:      "code_generation_attempts",
		Help:      "Candidate codes drawn per generated enrollment code.",
		Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
	})

	// RPCRequests counts unary RPCs by method and status code
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Unary RPCs handled by method and code.",
	}, []string{"method", "code"})

	// RPCDuration observes unary RPC latency by method
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Unary RPC latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// LiveConnections tracks open statistics websocket connections
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "live_connections",
		Help:      "Open live statistics websocket connections.",
	})
)

// UnaryServerInterceptor records request counts and latency for every unary RPC
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		RPCDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
		RPCRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve runs a standalone metrics listener until it fails
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
