package rpc

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{shared.ErrInvalidArgument, codes.InvalidArgument},
	{shared.ErrInvalidGradeValue, codes.InvalidArgument},
	{shared.ErrInvalidCode, codes.NotFound},
	{shared.ErrClassNotFound, codes.NotFound},
	{shared.ErrAssignmentNotFound, codes.NotFound},
	{shared.ErrRecordNotFound, codes.NotFound},
	{shared.ErrUserNotFound, codes.NotFound},
	{shared.ErrAlreadyEnrolled, codes.AlreadyExists},
	{shared.ErrClassFull, codes.ResourceExhausted},
	{shared.ErrCodeGenerationExhausted, codes.Unavailable},
	{shared.ErrInvalidTransition, codes.FailedPrecondition},
	{shared.ErrClassArchived, codes.FailedPrecondition},
	{shared.ErrNotEnrolled, codes.FailedPrecondition},
	{shared.ErrPermissionDenied, codes.PermissionDenied},
	{shared.ErrUnauthenticated, codes.Unauthenticated},
	{store.ErrConflict, codes.Aborted},
}

// toStatus converts a domain error into a gRPC status error
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	if store.IsTransient(err) {
		return status.Error(codes.Unavailable, err.Error())
	}

	log.Printf("ERROR: unmapped error: %v", err)
	return status.Error(codes.Internal, "internal error")
}
