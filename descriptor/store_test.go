package descriptor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

func strPtr(s string) *string { return &s }
func int32Ptr(i int32) *int32 { return &i }

func scalarField(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	return &descriptorpb.FieldDescriptorProto{
		Name:   strPtr(name),
		Number: int32Ptr(number),
		Type:   &typ,
		Label:  &label,
	}
}

func messageField(name string, number int32, targetType string) *descriptorpb.FieldDescriptorProto {
	typ := descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	return &descriptorpb.FieldDescriptorProto{
		Name:     strPtr(name),
		Number:   int32Ptr(number),
		Type:     &typ,
		TypeName: strPtr(targetType),
		Label:    &label,
	}
}

// buildTestSet assembles a tiny, self-contained descriptor set: one file,
// no imports, one service with one method, and a couple of message types
// wired together the way a real generated .proto would be.
func buildTestSet(t *testing.T) []byte {
	t.Helper()

	syntax := "proto3"
	fd := &descriptorpb.FileDescriptorProto{
		Name:    strPtr("test/payload.proto"),
		Package: strPtr("acme.workflow.v1"),
		Syntax:  &syntax,
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: strPtr("Payload"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("data", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				},
			},
			{
				Name: strPtr("StartRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("workflow_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					messageField("payload", 2, "acme.workflow.v1.Payload"),
				},
			},
			{
				Name: strPtr("StartResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("run_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: strPtr("WorkflowService"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       strPtr("Start"),
						InputType:  strPtr("acme.workflow.v1.StartRequest"),
						OutputType: strPtr("acme.workflow.v1.StartResponse"),
					},
				},
			},
		},
	}

	data, err := proto.Marshal(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{fd}})
	require.NoError(t, err)
	return data
}

func TestLoad_BuildsMessagesAndMethods(t *testing.T) {
	store, err := Load(buildTestSet(t))
	require.NoError(t, err)

	md, ok := store.LookupMessage("acme.workflow.v1.StartRequest")
	require.True(t, ok)
	require.Equal(t, "acme.workflow.v1.StartRequest", md.Name)
	require.Len(t, md.Fields, 2)

	payloadField, ok := md.FieldByNumber(2)
	require.True(t, ok)
	require.Equal(t, FieldSubmessage, payloadField.LogicalKind)
	require.Equal(t, "acme.workflow.v1.Payload", payloadField.MessageName)
	require.Equal(t, WireLengthDelimited, payloadField.WireKind)

	info, ok := store.LookupMethod("/acme.workflow.v1.WorkflowService/Start")
	require.True(t, ok)
	require.Equal(t, "acme.workflow.v1.StartRequest", info.RequestType)
	require.Equal(t, "acme.workflow.v1.StartResponse", info.ResponseType)

	_, ok = store.LookupMethod("/acme.workflow.v1.WorkflowService/Start")
	require.True(t, ok)
}

func TestLookupMethod_InvalidShapesMiss(t *testing.T) {
	store, err := Load(buildTestSet(t))
	require.NoError(t, err)

	for _, path := range []string{"", "/", "noslash", "/trailing/"} {
		_, ok := store.LookupMethod(path)
		require.False(t, ok, "path %q should miss", path)
	}
}

func TestLoad_MissingDependencyFails(t *testing.T) {
	syntax := "proto3"
	fd := &descriptorpb.FileDescriptorProto{
		Name:       strPtr("test/dependent.proto"),
		Dependency: []string{"test/missing.proto"},
		Syntax:     &syntax,
	}
	data, err := proto.Marshal(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{fd}})
	require.NoError(t, err)

	_, err = Load(data)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoad_DependencyCycleFails(t *testing.T) {
	syntax := "proto3"
	a := &descriptorpb.FileDescriptorProto{
		Name:       strPtr("a.proto"),
		Dependency: []string{"b.proto"},
		Syntax:     &syntax,
	}
	b := &descriptorpb.FileDescriptorProto{
		Name:       strPtr("b.proto"),
		Dependency: []string{"a.proto"},
		Syntax:     &syntax,
	}
	data, err := proto.Marshal(&descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{a, b}})
	require.NoError(t, err)

	_, err = Load(data)
	require.Error(t, err)
}

func TestLoad_MalformedBytesFails(t *testing.T) {
	_, err := Load([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}
