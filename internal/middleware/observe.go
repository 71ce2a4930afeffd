package middleware

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campus-care-api/internal/metrics"
)

// Observe records latency per method and code and logs server-side failures.
func Observe(m *metrics.Collector, log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		record(m, log, info.FullMethod, err, time.Since(start))
		return resp, err
	}
}

func StreamObserve(m *metrics.Collector, log *slog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		start := time.Now()
		err := next(srv, ss)
		record(m, log, info.FullMethod, err, time.Since(start))
		return err
	}
}

func record(m *metrics.Collector, log *slog.Logger, method string, err error, d time.Duration) {
	code := status.Code(err)
	m.ObserveRPC(method, code.String(), d)
	switch code {
	case codes.Internal, codes.Unavailable, codes.Unknown:
		log.Error("rpc failed", "method", method, "code", code.String(), "error", err, "duration", d)
	}
}
