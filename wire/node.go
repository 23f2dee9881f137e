package wire

import (
	"context"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/fireflycore/payload-proxy/codec"
)

// node is one piece of a rewritten message's output, assembled during the
// structural walk and only turned into bytes once every codec call it
// depends on has settled. Keeping the walk's output as a tree rather than a
// []byte buffer is what lets a deferred codec call (the batching codec's
// inbound path, which doesn't actually have data until Finish runs) sit
// inside an otherwise-complete length-prefixed submessage without blocking
// the walk that's still building everything around it.
type node interface {
	resolve(ctx context.Context) ([]byte, error)
}

// literalNode is bytes already known at walk time: a copied tag, a
// passed-through field value, or a codec result that came back
// synchronously.
type literalNode []byte

func (n literalNode) resolve(context.Context) ([]byte, error) { return n, nil }

// concatNode joins its children in order.
type concatNode []node

func (n concatNode) resolve(ctx context.Context) ([]byte, error) {
	parts := make([][]byte, len(n))
	total := 0
	for i, child := range n {
		b, err := child.resolve(ctx)
		if err != nil {
			return nil, err
		}
		parts[i] = b
		total += len(b)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// lengthPrefixedNode resolves inner first, then prepends inner's length as
// a varint. Because resolve is only called once every pending codec call
// anywhere beneath inner has settled, this is correct even when inner's
// length was unknown at the time this node was built.
type lengthPrefixedNode struct {
	inner node
}

func (n lengthPrefixedNode) resolve(ctx context.Context) ([]byte, error) {
	body, err := n.inner.resolve(ctx)
	if err != nil {
		return nil, err
	}
	out := protowire.AppendVarint(nil, uint64(len(body)))
	return append(out, body...), nil
}

// deferredNode holds a token a Deferred codec issued during the walk, via
// Register, in place of concrete bytes. resolve calls back into the codec
// via Resolve, which the codec contract guarantees will have a settled
// answer once Finish has returned for this direction's scope — so by the
// time anything calls Outcome.Bytes, this is a plain synchronous lookup,
// not a wait.
type deferredNode struct {
	codec codec.Deferred
	token string
}

func (n deferredNode) resolve(ctx context.Context) ([]byte, error) {
	return n.codec.Resolve(ctx, n.token)
}

// errorNode carries a codec failure discovered synchronously (the
// non-deferred path) through to resolve time, so the walk can keep
// building the tree shape without having to unwind immediately.
type errorNode struct {
	err error
}

func (n errorNode) resolve(context.Context) ([]byte, error) { return nil, n.err }
