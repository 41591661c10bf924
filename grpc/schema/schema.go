// Package schema builds the commandbus.v1 service definition at runtime and
// hands out dynamic messages for it. The descriptor is registered in the
// global registry once, which is what gRPC reflection reads from.
package schema

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	FilePath    = "commandbus/v1/commandbus.proto"
	Package     = "commandbus.v1"
	ServiceName = Package + ".CommandBus"
	MethodName  = "Invoke"
	// FullMethod is the path of the single RPC.
	FullMethod = "/" + ServiceName + "/" + MethodName
)

// Schema holds the resolved descriptors of the service.
type Schema struct {
	File     protoreflect.FileDescriptor
	Service  protoreflect.ServiceDescriptor
	Request  protoreflect.MessageDescriptor
	Response protoreflect.MessageDescriptor
	Ok       protoreflect.MessageDescriptor
	Err      protoreflect.MessageDescriptor
}

var (
	loadOnce sync.Once
	loaded   *Schema
	errLoad  error
)

// Load returns the cached schema, building it on first use.
func Load() (*Schema, error) {
	loadOnce.Do(func() {
		loaded, errLoad = build()
	})

	return loaded, errLoad
}

// MustLoad is Load for package initialisation paths.
func MustLoad() *Schema {
	s, err := Load()
	if err != nil {
		panic(err)
	}

	return s
}

func build() (*Schema, error) {
	fd, err := protoregistry.GlobalFiles.FindFileByPath(FilePath)
	if err != nil {
		fd, err = protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
		if err != nil {
			return nil, fmt.Errorf("schema: build %s: %w", FilePath, err)
		}

		if err = protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
			return nil, fmt.Errorf("schema: register %s: %w", FilePath, err)
		}
	}

	messages := fd.Messages()
	s := &Schema{
		File:     fd,
		Service:  fd.Services().ByName("CommandBus"),
		Request:  messages.ByName("InvokeRequest"),
		Response: messages.ByName("InvokeResponse"),
		Ok:       messages.ByName("Ok"),
		Err:      messages.ByName("Err"),
	}

	if s.Service == nil || s.Request == nil || s.Response == nil || s.Ok == nil || s.Err == nil {
		return nil, fmt.Errorf("schema: %s is incomplete", FilePath)
	}

	return s, nil
}

// NewRequest returns an empty InvokeRequest.
func (s *Schema) NewRequest() *dynamicpb.Message {
	return dynamicpb.NewMessage(s.Request)
}

// NewResponse returns an empty InvokeResponse.
func (s *Schema) NewResponse() *dynamicpb.Message {
	return dynamicpb.NewMessage(s.Response)
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()
	byt := descriptorpb.FieldDescriptorProto_TYPE_BYTES.Enum()
	msg := descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
	optional := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()
	repeated := descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()

	field := func(name string, number int32, typ *descriptorpb.FieldDescriptorProto_Type, label *descriptorpb.FieldDescriptorProto_Label, typeName string) *descriptorpb.FieldDescriptorProto {
		f := &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			JsonName: proto.String(name),
			Number:   proto.Int32(number),
			Type:     typ,
			Label:    label,
		}
		if typeName != "" {
			f.TypeName = proto.String(typeName)
		}

		return f
	}

	oneofResult := proto.Int32(0)

	okField := field("ok", 1, msg, optional, "."+Package+".Ok")
	okField.OneofIndex = oneofResult
	errField := field("err", 2, msg, optional, "."+Package+".Err")
	errField.OneofIndex = oneofResult

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FilePath),
		Package: proto.String(Package),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/shortlink-org/commandbus/grpc/schema;schema"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("InvokeRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("type", 1, str, optional, ""),
					field("payload", 2, byt, optional, ""),
					field("meta", 3, msg, repeated, "."+Package+".InvokeRequest.MetaEntry"),
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: proto.String("MetaEntry"),
						Field: []*descriptorpb.FieldDescriptorProto{
							field("key", 1, str, optional, ""),
							field("value", 2, str, optional, ""),
						},
						Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
					},
				},
			},
			{
				Name:      proto.String("InvokeResponse"),
				Field:     []*descriptorpb.FieldDescriptorProto{okField, errField},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("result")}},
			},
			{
				Name: proto.String("Ok"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("payload", 1, byt, optional, ""),
				},
			},
			{
				Name: proto.String("Err"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("kind", 1, str, optional, ""),
					field("message", 2, str, optional, ""),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("CommandBus"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String(MethodName),
						InputType:  proto.String("." + Package + ".InvokeRequest"),
						OutputType: proto.String("." + Package + ".InvokeResponse"),
					},
				},
			},
		},
	}
}
