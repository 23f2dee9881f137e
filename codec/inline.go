package codec

import (
	"context"
	"encoding/base64"
)

// InlineSentinelEncoding marks a payload as having been transformed by
// InlineCodec. A reverse pass on a payload carrying any other encoding
// value passes it through unchanged, mirroring BatchingCodec's own
// sentinel check.
const InlineSentinelEncoding = "inline/base64-v1"

const metadataKeyEncodingInline = "encoding"

// InlineCodec is the simpler of the two reference C4 implementations
// (spec §6's "default-inline-transform"): it has no external
// dependencies and no per-call state, so it implements only Transformer
// — the AsLifecycle and AsDeferred checks in the pipeline and the rewriter
// find neither capability on it, and it has no Init/Finish bracketing to
// get wrong. Outbound, it base64-encodes
// a payload's data field in place; inbound, it reverses that encoding.
// Both directions honor the §6 metadata contract (encoding-original /
// encoding swap).
type InlineCodec struct{}

func (InlineCodec) Transform(_ context.Context, pctx PayloadContext, direction Direction, data []byte) ([]byte, error) {
	p, err := parsePayload(data)
	if err != nil {
		return nil, &Error{Op: "Transform", Err: err}
	}

	if direction == Outbound {
		return transformInlineOutbound(p)
	}
	return transformInlineInbound(p, data)
}

func transformInlineOutbound(p *payload) ([]byte, error) {
	original, hadEncoding := p.metadata[metadataKeyEncodingInline]

	meta := make(map[string][]byte, len(p.metadata)+1)
	for k, v := range p.metadata {
		meta[k] = v
	}
	if hadEncoding {
		meta["encoding-original"] = original
	}
	meta[metadataKeyEncodingInline] = []byte(InlineSentinelEncoding)

	out := &payload{
		metadata: meta,
		data:     []byte(base64.StdEncoding.EncodeToString(p.data)),
	}
	return out.marshal(), nil
}

func transformInlineInbound(p *payload, data []byte) ([]byte, error) {
	if string(p.metadata[metadataKeyEncodingInline]) != InlineSentinelEncoding {
		return data, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(p.data))
	if err != nil {
		return nil, &Error{Op: "Transform(inbound)", Err: err}
	}

	meta := make(map[string][]byte, len(p.metadata))
	for k, v := range p.metadata {
		meta[k] = v
	}
	delete(meta, metadataKeyEncodingInline)
	if orig, ok := meta["encoding-original"]; ok {
		meta[metadataKeyEncodingInline] = orig
		delete(meta, "encoding-original")
	}

	out := &payload{metadata: meta, data: decoded}
	return out.marshal(), nil
}
