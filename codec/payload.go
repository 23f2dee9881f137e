package codec

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// The Payload sentinel type is opaque to the core (the rewriter never
// looks inside it) but every codec that reshapes one needs to parse and
// re-serialize it. Its shape mirrors the common Payload message used
// across workflow-platform wire formats: a string->bytes metadata map at
// field 1, and a data field at field 2.
const (
	payloadFieldMetadata = 1
	payloadFieldData     = 2

	mapEntryFieldKey   = 1
	mapEntryFieldValue = 2
)

// payload is the parsed, mutable form of a Payload submessage.
type payload struct {
	metadata map[string][]byte
	data     []byte
}

// parsePayload decodes a serialized Payload submessage. Unknown fields are
// dropped on the assumption that a codec rewriting a payload is always
// producing a fresh, complete replacement rather than patching one in
// place; nothing in this system round-trips a Payload through parse and
// marshal without deliberately changing its metadata or data.
func parsePayload(data []byte) (*payload, error) {
	p := &payload{metadata: make(map[string][]byte)}
	buf := data

	for len(buf) > 0 {
		num, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, &Error{Op: "parsePayload", Err: errMalformed("tag")}
		}
		buf = buf[n:]

		switch {
		case num == payloadFieldMetadata && wireType == protowire.BytesType:
			entry, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return nil, &Error{Op: "parsePayload", Err: errMalformed("metadata entry")}
			}
			buf = buf[m:]
			key, val, err := parseMapEntry(entry)
			if err != nil {
				return nil, &Error{Op: "parsePayload", Err: err}
			}
			p.metadata[key] = val

		case num == payloadFieldData && wireType == protowire.BytesType:
			val, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return nil, &Error{Op: "parsePayload", Err: errMalformed("data")}
			}
			buf = buf[m:]
			p.data = val

		default:
			m := protowire.ConsumeFieldValue(num, wireType, buf)
			if m < 0 {
				return nil, &Error{Op: "parsePayload", Err: errMalformed("unknown field")}
			}
			buf = buf[m:]
		}
	}

	return p, nil
}

func parseMapEntry(entry []byte) (string, []byte, error) {
	var key string
	var val []byte
	buf := entry

	for len(buf) > 0 {
		num, wireType, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return "", nil, errMalformed("map entry tag")
		}
		buf = buf[n:]

		switch {
		case num == mapEntryFieldKey && wireType == protowire.BytesType:
			b, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return "", nil, errMalformed("map entry key")
			}
			key = string(b)
			buf = buf[m:]
		case num == mapEntryFieldValue && wireType == protowire.BytesType:
			b, m := protowire.ConsumeBytes(buf)
			if m < 0 {
				return "", nil, errMalformed("map entry value")
			}
			val = append([]byte(nil), b...)
			buf = buf[m:]
		default:
			m := protowire.ConsumeFieldValue(num, wireType, buf)
			if m < 0 {
				return "", nil, errMalformed("map entry field")
			}
			buf = buf[m:]
		}
	}

	return key, val, nil
}

// marshal serializes p back into a Payload submessage. Metadata keys are
// emitted in sorted order so that output is deterministic regardless of Go
// map iteration order (spec §4.3.2: "given identical input and codec
// behavior, output bytes are deterministic").
func (p *payload) marshal() []byte {
	keys := make([]string, 0, len(p.metadata))
	for k := range p.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		entry := protowire.AppendTag(nil, mapEntryFieldKey, protowire.BytesType)
		entry = protowire.AppendBytes(entry, []byte(k))
		entry = protowire.AppendTag(entry, mapEntryFieldValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, p.metadata[k])

		out = protowire.AppendTag(out, payloadFieldMetadata, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}

	out = protowire.AppendTag(out, payloadFieldData, protowire.BytesType)
	out = protowire.AppendBytes(out, p.data)
	return out
}

type malformedError string

func (e malformedError) Error() string { return "codec: malformed payload: " + string(e) }

func errMalformed(what string) error { return malformedError(what) }
