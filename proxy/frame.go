package proxy

import (
	"encoding/binary"
)

// frameHeaderSize is the gRPC message frame prefix: one byte compression
// flag followed by a 4-byte big-endian length (spec §6).
const frameHeaderSize = 5

// stripFrame splits a single gRPC-framed message into its body, rejecting
// a compressed frame or a prefix too short to contain a length. Only the
// unary one-message-per-direction shape is handled; callers must not feed
// this a stream of multiple frames.
func stripFrame(framed []byte) (body []byte, err error) {
	if len(framed) < frameHeaderSize {
		return nil, &UnsupportedFramingError{Reason: "frame shorter than header"}
	}
	if framed[0] != 0 {
		return nil, &UnsupportedFramingError{Reason: "compressed frame"}
	}
	length := binary.BigEndian.Uint32(framed[1:5])
	body = framed[5:]
	if uint32(len(body)) != length {
		return nil, &UnsupportedFramingError{Reason: "frame length mismatch"}
	}
	return body, nil
}

// buildFrame re-prepends a freshly computed, always-uncompressed 5-byte
// gRPC frame prefix ahead of body.
func buildFrame(body []byte) []byte {
	out := make([]byte, frameHeaderSize+len(body))
	out[0] = 0
	binary.BigEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out
}
