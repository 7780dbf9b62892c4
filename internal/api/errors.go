package api

import (
	"context"
	"errors"

	"github.com/matheus3301/chatsync/internal/repository"
	"github.com/matheus3301/chatsync/internal/settings"
	"github.com/matheus3301/chatsync/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{repository.ErrChatNotFound, codes.NotFound},
	{repository.ErrMessageNotFound, codes.NotFound},
	{store.ErrChatNotFound, codes.NotFound},
	{store.ErrMessageNotFound, codes.NotFound},
	{settings.ErrSettingsNotFound, codes.NotFound},
	{repository.ErrNetworkNotAvailable, codes.Unavailable},
	{repository.ErrServiceDown, codes.Unavailable},
	{repository.ErrUnauthenticated, codes.Unauthenticated},
	{repository.ErrInvalidInviteLink, codes.InvalidArgument},
	{repository.ErrExpiredInviteLink, codes.FailedPrecondition},
	{repository.ErrChatClosed, codes.FailedPrecondition},
	{repository.ErrChatFull, codes.FailedPrecondition},
	{repository.ErrUserBlocked, codes.PermissionDenied},
	{repository.ErrAlreadyJoined, codes.AlreadyExists},
	{store.ErrStorageUnavailable, codes.Unavailable},
	{store.ErrStorageFull, codes.ResourceExhausted},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// toStatus converts a domain error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return grpcstatus.Error(e.code, err.Error())
		}
	}
	var (
		cooldown  *repository.CooldownError
		invalid   *store.InvalidDataError
		transform *settings.TransformError
	)
	switch {
	case errors.As(err, &cooldown):
		return grpcstatus.Error(codes.ResourceExhausted, err.Error())
	case errors.As(err, &invalid), errors.As(err, &transform):
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	return grpcstatus.Error(codes.Internal, err.Error())
}
