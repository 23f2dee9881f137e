package proxy

import (
	"net/http"
	"strconv"

	"google.golang.org/grpc/status"
)

// writeGRPCError reports a per-call failure the way a gRPC server would:
// HTTP 200 with grpc-status/grpc-message trailers-as-headers and no body,
// rather than an HTTP error status. The core never fabricates
// an upstream response (spec §7); this is only used for failures the
// pipeline detects itself, before or after the upstream round-trip.
func writeGRPCError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	w.Header().Set("Content-Type", grpcContentTypePrefix)
	w.Header().Set("Grpc-Status", strconv.Itoa(int(st.Code())))
	w.Header().Set("Grpc-Message", st.Message())
	w.WriteHeader(http.StatusOK)
}
