package grpccas

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/postledger/storage"
)

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.InvalidArgument:
		// Server uses InvalidArgument for malformed/undefined CIDs.
		return storage.ErrInvalidCID
	case codes.DataLoss:
		// Server uses DataLoss when bytes do not match the requested CID.
		return storage.ErrCIDMismatch
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", storage.ErrUnavailable, st.Message())
	case codes.FailedPrecondition:
		if st.Message() == storage.ErrReadOnly.Error() {
			return storage.ErrReadOnly
		}
		return err
	default:
		return err
	}
}
