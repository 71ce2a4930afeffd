package middleware

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"campus-care-api/internal/model"
)

type ctxKey struct{}

func WithProfile(ctx context.Context, p model.Profile) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func ProfileFrom(ctx context.Context) (model.Profile, bool) {
	p, ok := ctx.Value(ctxKey{}).(model.Profile)
	return p, ok
}

// skip auth for these
var open = map[string]bool{
	"/care.v1.CareService/SignUp":  true,
	"/care.v1.CareService/SignIn":  true,
	"/care.v1.CareService/Refresh": true,
}

// a bad or missing token reaches the handler as signed out
var optional = map[string]bool{
	"/care.v1.CareService/Authorize": true,
}

type Resolver interface {
	Resolve(ctx context.Context, raw string) (model.Profile, error)
}

func Auth(r Resolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, r, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func StreamAuth(r Resolver) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), r, info.FullMethod)
		if err != nil {
			return err
		}
		return next(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, r Resolver, method string) (context.Context, error) {
	if open[method] {
		return ctx, nil
	}

	// token from Authorization: Bearer <jwt>
	raw := bearer(ctx)
	if raw == "" {
		if optional[method] {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, "no token")
	}

	p, err := r.Resolve(ctx, raw)
	if err != nil {
		if optional[method] {
			return ctx, nil
		}
		return nil, status.Error(codes.Unauthenticated, "bad token")
	}
	return WithProfile(ctx, p), nil
}

func bearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("authorization"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
