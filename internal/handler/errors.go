package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campus-care-api/internal/model"
)

var kindCodes = map[model.Kind]codes.Code{
	model.KindUnauthenticated: codes.Unauthenticated,
	model.KindForbidden:       codes.PermissionDenied,
	model.KindNotFound:        codes.NotFound,
	model.KindAlreadyDecided:  codes.FailedPrecondition,
	model.KindValidation:      codes.InvalidArgument,
	model.KindTransient:       codes.Unavailable,
}

// fail converts a service error into a gRPC status.
func (h *Handler) fail(err error) error {
	if err == nil {
		return nil
	}
	var e *model.Error
	if errors.As(err, &e) {
		if e.Kind == model.KindTransient {
			h.log.Error("storage unavailable", "op", e.Msg, "error", e.Err)
			return status.Error(codes.Unavailable, "service unavailable, try again")
		}
		if code, ok := kindCodes[e.Kind]; ok {
			return status.Error(code, e.Msg)
		}
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	h.log.Error("unexpected error", "error", err)
	return status.Error(codes.Internal, "internal error")
}
