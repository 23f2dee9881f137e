// Package wire implements the streaming protobuf wire-format rewriter
// (C3): given a message type known to the Payload Field Index, it walks
// the message's serialized bytes left to right, copying everything
// verbatim except the fields the index marks as payload-bearing, which it
// routes to a codec and re-emits.
package wire

import (
	"context"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/fireflycore/payload-proxy/codec"
	"github.com/fireflycore/payload-proxy/descriptor"
	"github.com/fireflycore/payload-proxy/payloadindex"
)

// Sentinels names the two payload sentinel message types by their
// fully-qualified names, so the rewriter can tell a singular payload field
// apart from a repeated-wrapper field using only the FieldDescriptor
// already in hand (the index's IsPayload only answers "direct", not
// "which sentinel").
type Sentinels struct {
	PayloadTypeName         string
	PayloadsWrapperTypeName string
}

// Deps bundles the process-global, read-only state the rewriter consults
// on every call: the descriptor store (to resolve submessage types by
// name) and the payload field index (to classify fields).
type Deps struct {
	Store     *descriptor.Store
	Index     *payloadindex.Index
	Sentinels Sentinels
}

// Rewrite walks data, which must be a valid encoding of typeName, and
// returns an Outcome. If typeName has no payload-bearing fields (directly
// or transitively), the fast path applies and the returned Outcome wraps
// data unchanged, verbatim, without looking at Store or Index further.
func Rewrite(ctx context.Context, deps Deps, typeName string, direction codec.Direction, tenant string, transformer codec.Transformer, data []byte) (*Outcome, error) {
	if !deps.Index.MessageHasPayloads(typeName) {
		return &Outcome{root: literalNode(data)}, nil
	}

	md, ok := deps.Store.LookupMessage(typeName)
	if !ok {
		return nil, wireFormatErrorf(typeName, "indexed type has no descriptor")
	}

	root, err := rewriteMessage(ctx, deps, md, typeName, direction, tenant, transformer, "", data)
	if err != nil {
		return nil, err
	}
	return &Outcome{root: root}, nil
}

func joinFieldPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// consumeSubmessage reads one submessage-shaped field value, accepting
// either wire kind the index's direct/transitive classification is built
// for: a length-delimited field, or the deprecated proto2 group encoding
// (spec.md: "group wire kind is accepted and treated as length-delimited
// for traversal"). For BytesType, trailer is nil and the field's length
// prefix is recomputed on the way back out (lengthPrefixedNode). For a
// group, trailer holds the literal END_GROUP tag bytes: a group has no
// length to recompute, so the rewritten content is simply followed by the
// same closing tag it arrived with.
func consumeSubmessage(buf []byte, typeName string, fieldNo int32, wireType protowire.Type) (body, trailer []byte, consumed int, err error) {
	switch wireType {
	case protowire.BytesType:
		body, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return nil, nil, 0, wireFormatErrorf(typeName, "truncated length-delimited field %d", fieldNo)
		}
		return body, nil, n, nil
	case protowire.StartGroupType:
		body, end, n, gerr := consumeGroup(buf, fieldNo)
		if gerr != nil {
			return nil, nil, 0, wireFormatErrorf(typeName, "truncated group field %d", fieldNo)
		}
		return body, end, n, nil
	default:
		return nil, nil, 0, wireFormatErrorf(typeName, "field %d has unsupported wire kind", fieldNo)
	}
}

// consumeGroup scans buf, which must begin immediately after a
// START_GROUP tag for fieldNo, for that group's matching END_GROUP tag —
// the same walk protowire.ConsumeFieldValue does internally to skip a
// group wholesale, except this keeps the inner body and the closing tag's
// bytes separate so the caller can rewrite the former and re-emit the
// latter unchanged. Nested fields, including a nested group that reuses
// fieldNo, are skipped via ConsumeFieldValue, which already recurses
// through their own matching end tags.
func consumeGroup(buf []byte, fieldNo int32) (body, endTag []byte, consumed int, err error) {
	num := protowire.Number(fieldNo)
	pos := 0
	for {
		if pos >= len(buf) {
			return nil, nil, 0, errMalformedGroup
		}
		n2, wireType, n := protowire.ConsumeTag(buf[pos:])
		if n < 0 {
			return nil, nil, 0, errMalformedGroup
		}
		if n2 == num && wireType == protowire.EndGroupType {
			return buf[:pos], buf[pos : pos+n], pos + n, nil
		}
		m := protowire.ConsumeFieldValue(n2, wireType, buf[pos+n:])
		if m < 0 {
			return nil, nil, 0, errMalformedGroup
		}
		pos += n + m
	}
}

// wrapSubmessageNode re-applies whichever framing consumeSubmessage
// stripped: a recomputed length prefix for a length-delimited field, or
// the group's own closing tag, copied verbatim, for a group field.
func wrapSubmessageNode(inner node, trailer []byte) node {
	if trailer != nil {
		return concatNode{inner, literalNode(trailer)}
	}
	return lengthPrefixedNode{inner: inner}
}

// rewriteMessage implements the §4.3 algorithm for one message type:
// always copy the tag first, then either copy the field value verbatim,
// recurse into a transitively-interesting submessage, or dispatch a
// direct payload field to the codec.
func rewriteMessage(ctx context.Context, deps Deps, md *descriptor.MessageDescriptor, typeName string, direction codec.Direction, tenant string, transformer codec.Transformer, parentPath string, data []byte) (node, error) {
	var nodes concatNode
	buf := data

	for len(buf) > 0 {
		num, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, wireFormatErrorf(typeName, "malformed tag")
		}
		nodes = append(nodes, literalNode(buf[:n]))
		buf = buf[n:]
		fieldNo := int32(num)

		switch {
		case deps.Index.IsPayload(typeName, fieldNo):
			body, trailer, m, err := consumeSubmessage(buf, typeName, fieldNo, wireType)
			if err != nil {
				return nil, err
			}
			buf = buf[m:]

			fd, ok := md.FieldByNumber(fieldNo)
			if !ok {
				return nil, wireFormatErrorf(typeName, "no descriptor for indexed field %d", fieldNo)
			}
			path := joinFieldPath(parentPath, fd.Name)

			if fd.MessageName == deps.Sentinels.PayloadsWrapperTypeName {
				inner, err := subwalk(ctx, deps, direction, tenant, transformer, path, body)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, wrapSubmessageNode(inner, trailer))
			} else {
				pctx := codec.PayloadContext{Tenant: tenant, FieldPath: path, FieldDescriptor: &fd}
				nodes = append(nodes, wrapSubmessageNode(dispatchTransform(ctx, transformer, direction, pctx, body), trailer))
			}

		case deps.Index.HasTransitivePayloads(typeName, fieldNo):
			body, trailer, m, err := consumeSubmessage(buf, typeName, fieldNo, wireType)
			if err != nil {
				return nil, err
			}
			buf = buf[m:]

			targetType, _ := deps.Index.TransitiveTargetType(typeName, fieldNo)
			targetMd, ok := deps.Store.LookupMessage(targetType)
			if !ok {
				return nil, wireFormatErrorf(typeName, "no descriptor for transitive target %s", targetType)
			}
			fd, _ := md.FieldByNumber(fieldNo)
			path := joinFieldPath(parentPath, fd.Name)

			inner, err := rewriteMessage(ctx, deps, targetMd, targetType, direction, tenant, transformer, path, body)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, wrapSubmessageNode(inner, trailer))

		default:
			m := protowire.ConsumeFieldValue(num, wireType, buf)
			if m < 0 {
				return nil, wireFormatErrorf(typeName, "malformed value for field %d", fieldNo)
			}
			nodes = append(nodes, literalNode(buf[:m]))
			buf = buf[m:]
		}
	}

	return nodes, nil
}

// subwalk implements §4.3.1: the repeated payload wrapper's bytes are
// walked with the same tag machinery, but only field 1 (the repeated P
// entries) is dispatched to the codec; everything else, including unknown
// fields, is copied verbatim. The wrapper itself is never reconstructed as
// a message.
func subwalk(ctx context.Context, deps Deps, direction codec.Direction, tenant string, transformer codec.Transformer, outerPath string, data []byte) (node, error) {
	var nodes concatNode
	buf := data
	entryPath := outerPath + "[]"

	for len(buf) > 0 {
		num, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, wireFormatErrorf(deps.Sentinels.PayloadsWrapperTypeName, "malformed tag")
		}
		nodes = append(nodes, literalNode(buf[:n]))
		buf = buf[n:]

		if num == 1 && wireType == protowire.BytesType {
			entry, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return nil, wireFormatErrorf(deps.Sentinels.PayloadsWrapperTypeName, "truncated payload entry")
			}
			buf = buf[m:]
			pctx := codec.PayloadContext{Tenant: tenant, FieldPath: entryPath}
			nodes = append(nodes, lengthPrefixedNode{inner: dispatchTransform(ctx, transformer, direction, pctx, entry)})
			continue
		}

		m := protowire.ConsumeFieldValue(num, wireType, buf)
		if m < 0 {
			return nil, wireFormatErrorf(deps.Sentinels.PayloadsWrapperTypeName, "malformed value")
		}
		nodes = append(nodes, literalNode(buf[:m]))
		buf = buf[m:]
	}

	return nodes, nil
}

// dispatchTransform calls the codec for one payload body. If the codec is
// Deferred for this direction, Register stands in for Transform during the
// walk and the walk keeps going immediately with a deferredNode in its
// place; otherwise the call happens inline and its result (or error) is
// captured directly.
func dispatchTransform(ctx context.Context, transformer codec.Transformer, direction codec.Direction, pctx codec.PayloadContext, body []byte) node {
	if df, ok := codec.AsDeferred(transformer); ok && df.Defers(direction) {
		token, err := df.Register(ctx, pctx, direction, body)
		if err != nil {
			return errorNode{err: err}
		}
		return deferredNode{codec: df, token: token}
	}

	data, err := transformer.Transform(ctx, pctx, direction, body)
	if err != nil {
		return errorNode{err: err}
	}
	return literalNode(data)
}
