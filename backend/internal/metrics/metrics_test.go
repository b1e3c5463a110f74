package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryServerInterceptor(t *testing.T) {
	intercept := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/test.Metrics/Call"}

	okBefore := testutil.ToFloat64(RPCRequests.WithLabelValues(info.FullMethod, codes.OK.String()))
	deniedBefore := testutil.ToFloat64(RPCRequests.WithLabelValues(info.FullMethod, codes.PermissionDenied.String()))

	resp, err := intercept(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", nil
	})
	if err != nil || resp != "resp" {
		t.Fatalf("passthrough = %v, %v", resp, err)
	}

	denied := status.Error(codes.PermissionDenied, "no")
	if _, err := intercept(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, denied
	}); !errors.Is(err, denied) {
		t.Fatalf("error not passed through: %v", err)
	}

	if got := testutil.ToFloat64(RPCRequests.WithLabelValues(info.FullMethod, codes.OK.String())); got != okBefore+1 {
		t.Errorf("OK count = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(RPCRequests.WithLabelValues(info.FullMethod, codes.PermissionDenied.String())); got != deniedBefore+1 {
		t.Errorf("PermissionDenied count = %v, want %v", got, deniedBefore+1)
	}
}

func TestHandler(t *testing.T) {
	EnrollmentAttempts.WithLabelValues("joined").Inc()

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "classroom_enrollment_attempts_total") {
		t.Error("exposition is missing the enrollment counter")
	}
}
