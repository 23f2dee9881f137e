package descriptor

// WireKind is the on-the-wire representation of a field, per the protobuf
// binary format. Group is folded into LengthDelimited for traversal
// purposes (see spec §3: "group wire kind is accepted and treated as
// length-delimited for traversal").
type WireKind int

const (
	WireUnknown WireKind = iota
	WireVarint
	WireFixed64
	WireLengthDelimited
	WireFixed32
)

func (k WireKind) String() string {
	switch k {
	case WireVarint:
		return "varint"
	case WireFixed64:
		return "fixed64"
	case WireLengthDelimited:
		return "length-delimited"
	case WireFixed32:
		return "fixed32"
	default:
		return "unknown"
	}
}

// FieldLogicalKind distinguishes scalar fields from submessage fields,
// independent of wire representation.
type FieldLogicalKind int

const (
	FieldScalar FieldLogicalKind = iota
	FieldSubmessage
)

// FieldDescriptor is the minimal per-field shape the index and rewriter
// need: enough to classify a field and, for submessages, to know which
// descriptor to recurse into.
type FieldDescriptor struct {
	// Name is the field's declared (simple) name, e.g. "workflow_id". Not
	// part of the spec's minimal field shape, but needed to build the
	// human-readable field-path the codec contract requires (spec §3,
	// §4.3); every generated .proto field carries one, so this costs
	// nothing to populate from the source descriptor.
	Name        string
	Number      int32
	WireKind    WireKind
	LogicalKind FieldLogicalKind
	// MessageName is the fully-qualified target message type, set only
	// when LogicalKind == FieldSubmessage.
	MessageName string
}

// MessageDescriptor is the minimal per-message shape the index and rewriter
// need: a fully-qualified name, its fields in declaration order, and its
// nested message types (walked separately by the index; not consulted by
// the rewriter, which resolves submessage types by name through the Store).
type MessageDescriptor struct {
	Name   string
	Fields []FieldDescriptor
	Nested []*MessageDescriptor
}

// FieldByNumber returns the field with the given number, or false if none
// exists. Linear scan: message field counts are small and this is not on
// any hot path (the rewriter consults the Index, not this directly).
func (m *MessageDescriptor) FieldByNumber(number int32) (FieldDescriptor, bool) {
	for _, f := range m.Fields {
		if f.Number == number {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// ServiceMethodInfo names the request/response types of one RPC method.
type ServiceMethodInfo struct {
	RequestType  string
	ResponseType string
}
