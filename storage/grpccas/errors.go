package grpccas

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/szdt/storage"
)

// sentinelCodes maps each storage sentinel to the status code carrying it.
var sentinelCodes = []struct {
	err  error
	code codes.Code
}{
	{storage.ErrNotFound, codes.NotFound},
	{storage.ErrInvalidCID, codes.InvalidArgument},
	{storage.ErrCIDMismatch, codes.DataLoss},
	{storage.ErrImmutable, codes.AlreadyExists},
}

// toStatus converts a storage error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return status.Error(s.code, s.err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// fromStatus maps a gRPC status error back onto the storage sentinels.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, s := range sentinelCodes {
		if st.Code() == s.code || st.Message() == s.err.Error() {
			return s.err
		}
	}
	return err
}
