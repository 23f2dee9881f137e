// Package descriptor builds the process-scoped, read-only descriptor state
// (C1 in the design) from a serialized protobuf file-descriptor-set: a
// name-indexed lookup of message shapes and a path-indexed lookup of RPC
// method request/response types.
package descriptor

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Store is an immutable, process-global index over a loaded descriptor set.
// It is built once at startup by Load and is safe for unsynchronized
// concurrent reads thereafter; it has no mutating operations.
type Store struct {
	files    *protoregistry.Files
	messages map[string]*MessageDescriptor
	methods  map[string]ServiceMethodInfo
}

// Load parses a serialized descriptorpb.FileDescriptorSet and builds a
// Store. Files are built in dependency order: a file is only handed to
// protodesc.NewFile once every file it imports has already been
// registered. A dependency cycle or a missing import makes that ordering
// impossible and Load returns a *LoadError.
func Load(data []byte) (*Store, error) {
	var set descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &set); err != nil {
		return nil, loadErrorf("", "unmarshal file descriptor set", err)
	}

	order, err := topologicalOrder(set.GetFile())
	if err != nil {
		return nil, err
	}

	files := &protoregistry.Files{}
	for _, fd := range order {
		fileDesc, err := protodesc.NewFile(fd, files)
		if err != nil {
			return nil, loadErrorf(fd.GetName(), "build file descriptor", err)
		}
		if err := files.RegisterFile(fileDesc); err != nil {
			return nil, loadErrorf(fd.GetName(), "register file descriptor", err)
		}
	}

	s := &Store{
		files:    files,
		messages: make(map[string]*MessageDescriptor),
		methods:  make(map[string]ServiceMethodInfo),
	}

	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		indexMessages(fd.Messages(), s.messages)
		indexServices(fd.Services(), s.methods)
		return true
	})

	return s, nil
}

// topologicalOrder returns files in an order where every file's
// dependencies precede it. Detects missing dependencies and cycles.
func topologicalOrder(files []*descriptorpb.FileDescriptorProto) ([]*descriptorpb.FileDescriptorProto, error) {
	byPath := make(map[string]*descriptorpb.FileDescriptorProto, len(files))
	for _, fd := range files {
		byPath[fd.GetName()] = fd
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(files))
	order := make([]*descriptorpb.FileDescriptorProto, 0, len(files))

	var visit func(path string) error
	visit = func(path string) error {
		fd, ok := byPath[path]
		if !ok {
			return loadErrorf(path, "missing dependency", nil)
		}
		switch state[path] {
		case visited:
			return nil
		case visiting:
			return loadErrorf(path, "dependency cycle", nil)
		}
		state[path] = visiting
		for _, dep := range fd.GetDependency() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[path] = visited
		order = append(order, fd)
		return nil
	}

	for _, fd := range files {
		if err := visit(fd.GetName()); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func indexMessages(msgs protoreflect.MessageDescriptors, out map[string]*MessageDescriptor) {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		out[string(md.FullName())] = buildMessageDescriptor(md)
		indexMessages(md.Messages(), out)
	}
}

func buildMessageDescriptor(md protoreflect.MessageDescriptor) *MessageDescriptor {
	out := &MessageDescriptor{Name: string(md.FullName())}

	fields := md.Fields()
	out.Fields = make([]FieldDescriptor, 0, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		out.Fields = append(out.Fields, fieldDescriptorOf(fd))
	}

	nested := md.Messages()
	out.Nested = make([]*MessageDescriptor, 0, nested.Len())
	for i := 0; i < nested.Len(); i++ {
		out.Nested = append(out.Nested, buildMessageDescriptor(nested.Get(i)))
	}

	return out
}

func fieldDescriptorOf(fd protoreflect.FieldDescriptor) FieldDescriptor {
	out := FieldDescriptor{
		Name:     string(fd.Name()),
		Number:   int32(fd.Number()),
		WireKind: wireKindOf(fd.Kind()),
	}
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		out.LogicalKind = FieldSubmessage
		out.MessageName = string(fd.Message().FullName())
	} else {
		out.LogicalKind = FieldScalar
	}
	return out
}

// wireKindOf maps a protobuf logical field kind to its wire representation.
// This is a fixed table defined by the protobuf binary format itself, not
// something protobuf-go exposes directly on a FieldDescriptor.
func wireKindOf(kind protoreflect.Kind) WireKind {
	switch kind {
	case protoreflect.BoolKind, protoreflect.EnumKind,
		protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Uint32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Uint64Kind:
		return WireVarint
	case protoreflect.Fixed64Kind, protoreflect.Sfixed64Kind, protoreflect.DoubleKind:
		return WireFixed64
	case protoreflect.Fixed32Kind, protoreflect.Sfixed32Kind, protoreflect.FloatKind:
		return WireFixed32
	case protoreflect.StringKind, protoreflect.BytesKind,
		protoreflect.MessageKind, protoreflect.GroupKind:
		return WireLengthDelimited
	default:
		return WireUnknown
	}
}

func indexServices(svcs protoreflect.ServiceDescriptors, out map[string]ServiceMethodInfo) {
	for i := 0; i < svcs.Len(); i++ {
		svc := svcs.Get(i)
		methods := svc.Methods()
		for j := 0; j < methods.Len(); j++ {
			m := methods.Get(j)
			key := fmt.Sprintf("%s/%s", svc.FullName(), m.Name())
			out[key] = ServiceMethodInfo{
				RequestType:  string(m.Input().FullName()),
				ResponseType: string(m.Output().FullName()),
			}
		}
	}
}

// LookupMethod resolves a gRPC method path of the form "/service/method" or
// "service/method" to its request/response type names. Any other shape,
// or an unknown service/method, is a lookup miss rather than an error.
func (s *Store) LookupMethod(path string) (ServiceMethodInfo, bool) {
	path = strings.TrimPrefix(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 || idx == len(path)-1 {
		return ServiceMethodInfo{}, false
	}
	info, ok := s.methods[path]
	return info, ok
}

// LookupMessage resolves a fully-qualified message name to its descriptor.
func (s *Store) LookupMessage(name string) (*MessageDescriptor, bool) {
	md, ok := s.messages[name]
	return md, ok
}

// AllMessages returns every message descriptor the store indexed, keyed by
// fully-qualified name. Callers that build a payloadindex.Index at startup
// need the full set rather than one name at a time.
func (s *Store) AllMessages() map[string]*MessageDescriptor {
	return s.messages
}
