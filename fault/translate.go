package fault

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Translate maps any raw failure to exactly one taxonomy member.
// A nil error translates to nil; the original error is kept as Cause.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var fe *Error
	if errors.As(err, &fe) && fe != nil {
		return fe
	}

	var rej *Rejection
	if errors.As(err, &rej) && rej != nil {
		return &Error{
			Kind:    KindServerRejected,
			Status:  StatusFromCode(rej.Code),
			Message: rej.Message,
			Cause:   err,
		}
	}

	var pe *PanicError
	if errors.As(err, &pe) {
		return Internal("panic in "+pe.Component, err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout("deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return Cancelled("call cancelled", err)
	}

	if st, ok := status.FromError(err); ok {
		return fromStatus(st, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout("network timeout", err)
	}

	if isConnectionError(err) {
		return ConnectionFailure("transport failure", err)
	}

	return Internal("unexpected failure", err)
}

func fromStatus(st *status.Status, err error) *Error {
	msg := st.Message()
	switch st.Code() {
	case codes.Unavailable:
		return ConnectionFailure(msg, err)
	case codes.DeadlineExceeded:
		return Timeout(msg, err)
	case codes.Canceled:
		return Cancelled(msg, err)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return InvalidRequest(msg, err)
	default:
		return Internal(msg, err)
	}
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// FromContext describes why ctx ended: Timeout for an expired deadline and
// Cancelled otherwise. It returns nil while ctx is still live.
func FromContext(ctx context.Context, msg string) *Error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(msg, err)
	}
	return Cancelled(msg, err)
}
