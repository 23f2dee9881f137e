package proxy

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fireflycore/payload-proxy/codec"
	"github.com/fireflycore/payload-proxy/wire"
)

// UnsupportedFramingError is returned when a gRPC frame's compression flag
// is nonzero or the frame prefix is too short to contain a length.
type UnsupportedFramingError struct {
	Reason string
}

func (e *UnsupportedFramingError) Error() string {
	return "unsupported framing: " + e.Reason
}

// statusFor maps the error taxonomy of spec §7 onto a gRPC status code for
// the client-facing response. The core never fabricates upstream
// responses; this is only used for failures the pipeline itself detects
// before or after the upstream round-trip.
func statusFor(err error) error {
	var wireErr *wire.WireFormatError
	var framingErr *UnsupportedFramingError
	var lifecycleErr *codec.LifecycleError
	var codecErr *codec.Error

	switch {
	case errors.As(err, &wireErr):
		return status.Error(codes.Internal, err.Error())
	case errors.As(err, &framingErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &lifecycleErr):
		return status.Error(codes.Internal, err.Error())
	case errors.As(err, &codecErr):
		return status.Error(codes.Internal, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}
