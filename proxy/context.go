package proxy

import (
	"context"
	"net/http"

	"github.com/fireflycore/payload-proxy/codec"
	"github.com/fireflycore/payload-proxy/descriptor"
)

// tenantHeader is the canonical, case-insensitive tenant header name (spec
// §6). net/http's header map already normalizes case for us on both read
// and write.
const tenantHeader = "Temporal-Namespace"

// temporalContext is the per-call state the spec requires the core never
// share across calls (§5): the resolved method info, the tenant, and the
// codec instance this call's lifecycle scopes are opened against. One is
// built per inbound request and threaded through to ModifyResponse via the
// request context so the response path can finish the same codec scope it
// started on the request path.
type temporalContext struct {
	method    string
	info      descriptor.ServiceMethodInfo
	tenant    string
	transform codec.Transformer

	// requestHadPayloads records whether the request path actually ran the
	// rewriter, and so whether Init(outbound) was opened against this
	// call's codec instance. The response path does not read it: it says
	// nothing about the response type, which is checked independently.
	requestHadPayloads bool
}

type temporalContextKey struct{}

func contextWithTemporalContext(r *http.Request, tc *temporalContext) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), temporalContextKey{}, tc))
}

func temporalContextFrom(r *http.Request) (*temporalContext, bool) {
	tc, ok := r.Context().Value(temporalContextKey{}).(*temporalContext)
	return tc, ok
}
