// Package codec defines the pluggable payload transformer contract (C4)
// that the wire rewriter invokes for every payload field it encounters, and
// a reference batching implementation (C5) that defers the actual external
// I/O to per-call boundaries.
package codec

import (
	"context"

	"github.com/fireflycore/payload-proxy/descriptor"
)

// Direction identifies which way a message is travelling through the
// proxy: Outbound is client -> upstream (request), Inbound is upstream ->
// client (response).
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// PayloadContext is passed to every codec invocation. FieldPath has no
// semantic meaning to the core; it exists purely so codecs can apply
// conditional policy (e.g. "don't transform header.fields.correlation-id").
type PayloadContext struct {
	Tenant         string
	FieldPath      string
	FieldDescriptor *descriptor.FieldDescriptor
}

// Transformer is the capability every codec must have: transforming one
// serialized payload submessage in a given direction.
type Transformer interface {
	Transform(ctx context.Context, pctx PayloadContext, direction Direction, data []byte) ([]byte, error)
}

// Lifecycle is the capability a scoped codec additionally has: per-call
// bracketing around a sequence of Transform calls. The interception
// pipeline (proxy.rewriteFramed) detects this via a type assertion on the
// installed Transformer and invokes it only when present, around its call
// to the wire rewriter; the rewriter itself never calls Init or Finish.
type Lifecycle interface {
	Init(ctx context.Context, direction Direction) error
	Finish(ctx context.Context, direction Direction) error
}

// AsLifecycle returns t's Lifecycle capability, if it has one.
func AsLifecycle(t Transformer) (Lifecycle, bool) {
	lc, ok := t.(Lifecycle)
	return lc, ok
}

// Deferred is an optional capability a Transformer may implement to tell
// the rewriter that its result for a given direction isn't available
// until the lifecycle's Finish call for that direction has returned (the
// batching codec's inbound path, §4.5, where the eventual bytes come from
// a single batched read issued inside Finish).
//
// When Defers(direction) is true, the rewriter calls Register in place of
// Transform during the structural walk — it must return quickly, without
// performing the actual I/O — and later calls Resolve, once Finish has
// returned, to fetch the settled bytes. This keeps the walk's recursion
// synchronous (so length prefixes for enclosing submessages can still be
// computed node-by-node) while letting the codec's real work happen
// entirely inside Finish, exactly where the spec's single-assignment
// future is completed.
type Deferred interface {
	Defers(direction Direction) bool
	Register(ctx context.Context, pctx PayloadContext, direction Direction, data []byte) (token string, err error)
	Resolve(ctx context.Context, token string) ([]byte, error)
}

// AsDeferred returns t's Deferred capability, if it has one.
func AsDeferred(t Transformer) (Deferred, bool) {
	d, ok := t.(Deferred)
	return d, ok
}
