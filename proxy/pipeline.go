// Package proxy implements the Interception Pipeline (C6): an HTTP/2
// reverse proxy that sits in front of a gRPC upstream and rewrites
// payload-bearing unary request and response messages in flight, driving
// the wire rewriter (package wire) and a pluggable codec (package codec)
// per spec §4.6.
package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fireflycore/payload-proxy/codec"
	"github.com/fireflycore/payload-proxy/descriptor"
	"github.com/fireflycore/payload-proxy/payloadindex"
	"github.com/fireflycore/payload-proxy/wire"
)

// grpcContentTypePrefix is the gRPC media type prefix (spec §6); the
// richer "+proto"/"+json" suffixes are all still gRPC for our purposes.
const grpcContentTypePrefix = "application/grpc"

// NewCodec builds a fresh codec instance (or resets a pooled one) for a
// single call's lifecycle scope. The pipeline never shares a codec
// instance's mutable state across calls (spec §5).
type NewCodec func() codec.Transformer

// Pipeline holds the process-scoped, immutable state the interception
// handler consults on every call, plus the knobs needed to reach upstream.
type Pipeline struct {
	Store     *descriptor.Store
	Index     *payloadindex.Index
	Sentinels wire.Sentinels
	NewCodec  NewCodec
	Logger    *zap.Logger

	// Upstream is the host:port of the gRPC server this pipeline fronts,
	// e.g. "temporal-frontend:7233"; the scheme is always "http".
	Upstream string
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}

// Handler builds the http.Handler that fronts Upstream. Request-side
// rewriting happens before the reverse proxy's round-trip; response-side
// rewriting happens in ModifyResponse, which runs after the round-trip and
// is the one httputil.ReverseProxy hook that can still report failure.
func (p *Pipeline) Handler() http.Handler {
	rp := &httputil.ReverseProxy{
		Director: func(r *http.Request) {
			r.URL.Scheme = "http"
			r.URL.Host = p.Upstream
			// Path, query, and headers are preserved from the original request.
		},
		ModifyResponse: p.modifyResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger().Error("upstream round-trip failed", zap.Error(err), zap.String("path", r.URL.Path))
			writeGRPCError(w, statusFor(err))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, err := p.prepareRequest(r)
		if err != nil {
			p.logger().Error("request rewrite failed", zap.Error(err), zap.String("path", r.URL.Path))
			writeGRPCError(w, statusFor(err))
			return
		}
		if tc == nil {
			// Steps 1-3 didn't hold: forward completely untouched, body unread.
			rp.ServeHTTP(w, r)
			return
		}

		rp.ServeHTTP(w, contextWithTemporalContext(r, tc))
	})
}

// prepareRequest implements spec §4.6 steps 1-4. A nil temporalContext
// with a nil error means steps 1-3 didn't hold (§7 PassthroughCondition):
// the caller must forward the request completely untouched, without
// having read its body. Once a temporalContext is returned, the response
// path (step 6) runs against it regardless of whether the request body
// itself needed rewriting — MessageHasPayloads is checked independently
// for each direction.
func (p *Pipeline) prepareRequest(r *http.Request) (*temporalContext, error) {
	if r.Method != http.MethodPost || !strings.HasPrefix(r.Header.Get("Content-Type"), grpcContentTypePrefix) {
		return nil, nil
	}

	segments := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return nil, nil
	}

	info, ok := p.Store.LookupMethod(r.URL.Path)
	if !ok {
		return nil, nil
	}

	tenant := r.Header.Get(tenantHeader)
	if tenant == "" {
		return nil, nil
	}

	tc := &temporalContext{
		method:    r.URL.Path,
		info:      info,
		tenant:    tenant,
		transform: p.NewCodec(),
	}

	if !p.Index.MessageHasPayloads(info.RequestType) {
		return tc, nil
	}
	tc.requestHadPayloads = true

	framed, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	rewritten, err := p.rewriteFramed(r.Context(), info.RequestType, codec.Outbound, tenant, tc.transform, framed)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(rewritten))
	r.ContentLength = int64(len(rewritten))
	r.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
	return tc, nil
}

// modifyResponse implements spec §4.6 step 6. It runs for every call whose
// steps 1-3 held, regardless of whether the request body itself needed
// rewriting.
func (p *Pipeline) modifyResponse(resp *http.Response) error {
	tc, ok := temporalContextFrom(resp.Request)
	if !ok {
		return nil
	}

	if !p.Index.MessageHasPayloads(tc.info.ResponseType) {
		return nil
	}

	framed, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	resp.Body.Close()

	rewritten, err := p.rewriteFramed(resp.Request.Context(), tc.info.ResponseType, codec.Inbound, tc.tenant, tc.transform, framed)
	if err != nil {
		return err
	}

	resp.Body = io.NopCloser(bytes.NewReader(rewritten))
	resp.ContentLength = int64(len(rewritten))
	resp.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
	return nil
}

// rewriteFramed strips the gRPC frame, runs the codec lifecycle and the
// wire rewriter over the body, and re-frames the result. Finish is called
// even when the rewrite itself fails (spec §7: "Finish is invoked on all
// codec scopes that were opened, even on the error path").
func (p *Pipeline) rewriteFramed(ctx context.Context, typeName string, direction codec.Direction, tenant string, transformer codec.Transformer, framed []byte) ([]byte, error) {
	body, err := stripFrame(framed)
	if err != nil {
		return nil, err
	}

	lc, hasLifecycle := codec.AsLifecycle(transformer)
	if hasLifecycle {
		if err := lc.Init(ctx, direction); err != nil {
			return nil, err
		}
	}

	outcome, rewriteErr := wire.Rewrite(ctx, wire.Deps{Store: p.Store, Index: p.Index, Sentinels: p.Sentinels}, typeName, direction, tenant, transformer, body)

	var finishErr error
	if hasLifecycle {
		finishErr = lc.Finish(ctx, direction)
	}

	if rewriteErr != nil {
		return nil, rewriteErr
	}
	if finishErr != nil {
		return nil, finishErr
	}

	out, err := outcome.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	return buildFrame(out), nil
}
