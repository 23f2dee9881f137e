package payloadindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fireflycore/payload-proxy/descriptor"
)

const (
	pkg        = "acme.workflow.v1."
	payloadT   = pkg + "Payload"
	payloadsT  = pkg + "Payloads"
	saT        = pkg + "SearchAttributes"
)

func msg(name string, fields ...descriptor.FieldDescriptor) *descriptor.MessageDescriptor {
	return &descriptor.MessageDescriptor{Name: name, Fields: fields}
}

func submsg(number int32, target string) descriptor.FieldDescriptor {
	return descriptor.FieldDescriptor{Number: number, LogicalKind: descriptor.FieldSubmessage, WireKind: descriptor.WireLengthDelimited, MessageName: target}
}

func scalar(number int32) descriptor.FieldDescriptor {
	return descriptor.FieldDescriptor{Number: number, LogicalKind: descriptor.FieldScalar, WireKind: descriptor.WireLengthDelimited}
}

func baseOpts() Options {
	return Options{
		ScanPackagePrefix:           pkg,
		PayloadTypeName:             payloadT,
		PayloadsWrapperTypeName:     payloadsT,
		AttributesContainerTypeName: saT,
	}
}

func TestBuild_DirectAndTransitive(t *testing.T) {
	messages := map[string]*descriptor.MessageDescriptor{
		payloadT:      msg(payloadT, scalar(1)),
		payloadsT:     msg(payloadsT, submsg(1, payloadT)),
		pkg + "Header": msg(pkg+"Header", scalar(1), submsg(2, payloadT)),
		pkg + "Input": msg(pkg+"Input",
			submsg(1, payloadsT),
			submsg(2, pkg+"Header"),
		),
		pkg + "StartRequest": msg(pkg+"StartRequest",
			scalar(1),
			submsg(4, pkg+"Input"),
		),
	}

	idx := Build(nil, messages, baseOpts())

	require.True(t, idx.IsPayload(pkg+"Input", 1), "Input.field1 (Payloads) is direct")
	require.True(t, idx.IsPayload(pkg+"Header", 2), "Header.field2 (Payload) is direct")
	require.True(t, idx.HasTransitivePayloads(pkg+"Input", 2), "Input.field2 (Header) is transitive")
	require.True(t, idx.HasTransitivePayloads(pkg+"StartRequest", 4), "StartRequest.field4 (Input) is transitive")
	require.False(t, idx.IsPayload(pkg+"StartRequest", 4))

	require.True(t, idx.MessageHasPayloads(pkg + "StartRequest"))
	require.True(t, idx.MessageHasPayloads(pkg + "Input"))
	require.True(t, idx.MessageHasPayloads(pkg + "Header"))
	require.False(t, idx.MessageHasPayloads(payloadT), "Payload itself has no payload fields")

	nums := idx.GetTransformableFieldNumbers(pkg + "StartRequest")
	require.Equal(t, map[int32]struct{}{4: {}}, nums)
}

func TestBuild_NeverBothDirectAndTransitiveForSameField(t *testing.T) {
	messages := map[string]*descriptor.MessageDescriptor{
		payloadT: msg(payloadT, scalar(1)),
		pkg + "Header": msg(pkg+"Header", submsg(1, payloadT)),
	}
	idx := Build(nil, messages, baseOpts())
	require.True(t, idx.IsPayload(pkg+"Header", 1))
	require.False(t, idx.HasTransitivePayloads(pkg+"Header", 1))
}

func TestBuild_CycleSafe(t *testing.T) {
	// A -> B -> A, neither reaches a payload. Must terminate and classify
	// both fields as neither direct nor transitive (P8: same result as if
	// the self-reference were a terminal scalar).
	messages := map[string]*descriptor.MessageDescriptor{
		pkg + "A": msg(pkg+"A", submsg(1, pkg+"B")),
		pkg + "B": msg(pkg+"B", submsg(1, pkg+"A")),
	}
	idx := Build(nil, messages, baseOpts())
	require.False(t, idx.MessageHasPayloads(pkg + "A"))
	require.False(t, idx.MessageHasPayloads(pkg + "B"))
	require.False(t, idx.HasTransitivePayloads(pkg+"A", 1))
	require.False(t, idx.HasTransitivePayloads(pkg+"B", 1))
}

func TestBuild_CycleWithEscapeToPayload(t *testing.T) {
	// A -> B -> A, but B also has a direct payload field. A must be
	// classified transitive through B despite the cycle.
	messages := map[string]*descriptor.MessageDescriptor{
		payloadT: msg(payloadT, scalar(1)),
		pkg + "A": msg(pkg+"A", submsg(1, pkg+"B")),
		pkg + "B": msg(pkg+"B", submsg(1, pkg+"A"), submsg(2, payloadT)),
	}
	idx := Build(nil, messages, baseOpts())
	require.True(t, idx.HasTransitivePayloads(pkg+"A", 1))
	require.True(t, idx.IsPayload(pkg+"B", 2))
	require.True(t, idx.HasTransitivePayloads(pkg+"B", 1), "B.field1 (A) is transitive because A can reach B's own payload field")
}

func TestBuild_ExclusionPolicy(t *testing.T) {
	messages := map[string]*descriptor.MessageDescriptor{
		payloadT: msg(payloadT, scalar(1)),
		saT:      msg(saT, submsg(1, payloadT)),
		pkg + "StartRequest": msg(pkg+"StartRequest",
			submsg(1, saT),
			submsg(2, payloadT),
		),
	}

	withExclusion := baseOpts()
	withExclusion.ExcludeAttributesContainer = true
	idx := Build(nil, messages, withExclusion)
	require.False(t, idx.HasTransitivePayloads(pkg+"StartRequest", 1), "field reaching a payload only through excluded SA is not transitive")
	require.True(t, idx.IsPayload(pkg+"StartRequest", 2), "unrelated direct payload field is unaffected")
	require.False(t, idx.MessageHasPayloads(saT), "SA itself is suppressed from indexing")

	without := baseOpts()
	idx2 := Build(nil, messages, without)
	require.True(t, idx2.HasTransitivePayloads(pkg+"StartRequest", 1), "without exclusion, SA participates normally")
}

func TestBuild_ScanPackagePrefixIgnoresOutsideMessages(t *testing.T) {
	messages := map[string]*descriptor.MessageDescriptor{
		payloadT:            msg(payloadT, scalar(1)),
		"other.pkg.Request": msg("other.pkg.Request", submsg(1, payloadT)),
	}
	idx := Build(nil, messages, baseOpts())
	require.False(t, idx.MessageHasPayloads("other.pkg.Request"))
}
