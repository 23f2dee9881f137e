package wire

import (
	"errors"
	"fmt"
)

// errMalformedGroup is consumeGroup's internal signal that it ran off the
// end of the buffer or hit an unparseable tag before finding the matching
// END_GROUP; callers wrap it with the enclosing type name via
// wireFormatErrorf before returning it.
var errMalformedGroup = errors.New("unterminated group")

// WireFormatError reports a malformed or unexpected encoding encountered
// while walking a message's bytes: a truncated varint, a length-delimited
// field running past the end of the buffer, an oversize varint, or a wire
// kind that doesn't match what the descriptor promised on a transformable
// field.
type WireFormatError struct {
	TypeName string
	Reason   string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire: %s: %s", e.TypeName, e.Reason)
}

func wireFormatErrorf(typeName, format string, args ...any) *WireFormatError {
	return &WireFormatError{TypeName: typeName, Reason: fmt.Sprintf(format, args...)}
}
