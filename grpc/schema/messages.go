package schema

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Request is the Go view of InvokeRequest.
type Request struct {
	Type    string
	Payload []byte
	Meta    map[string]string
}

// Response is the Go view of InvokeResponse. Exactly one of Ok and Err is set
// on a well formed response.
type Response struct {
	Ok  *OkBody
	Err *ErrBody
}

type OkBody struct {
	Payload []byte
}

type ErrBody struct {
	Kind    string
	Message string
}

// EncodeRequest builds the dynamic InvokeRequest for r.
func (s *Schema) EncodeRequest(r Request) *dynamicpb.Message {
	msg := s.NewRequest()
	fields := s.Request.Fields()

	msg.Set(fields.ByName("type"), protoreflect.ValueOfString(r.Type))
	if len(r.Payload) > 0 {
		msg.Set(fields.ByName("payload"), protoreflect.ValueOfBytes(r.Payload))
	}

	if len(r.Meta) > 0 {
		meta := msg.Mutable(fields.ByName("meta")).Map()
		for k, v := range r.Meta {
			meta.Set(protoreflect.ValueOfString(k).MapKey(), protoreflect.ValueOfString(v))
		}
	}

	return msg
}

// DecodeRequest reads an InvokeRequest.
func (s *Schema) DecodeRequest(m proto.Message) (Request, error) {
	msg := m.ProtoReflect()
	if msg.Descriptor().FullName() != s.Request.FullName() {
		return Request{}, fmt.Errorf("schema: expected %s, got %s", s.Request.FullName(), msg.Descriptor().FullName())
	}

	fields := s.Request.Fields()
	out := Request{
		Type:    msg.Get(fields.ByName("type")).String(),
		Payload: msg.Get(fields.ByName("payload")).Bytes(),
	}

	meta := msg.Get(fields.ByName("meta")).Map()
	if meta.Len() > 0 {
		out.Meta = make(map[string]string, meta.Len())
		meta.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
			out.Meta[k.String()] = v.String()
			return true
		})
	}

	return out, nil
}

// EncodeResponse builds the dynamic InvokeResponse for r.
func (s *Schema) EncodeResponse(r Response) *dynamicpb.Message {
	msg := s.NewResponse()
	fields := s.Response.Fields()

	switch {
	case r.Err != nil:
		body := dynamicpb.NewMessage(s.Err)
		body.Set(s.Err.Fields().ByName("kind"), protoreflect.ValueOfString(r.Err.Kind))
		body.Set(s.Err.Fields().ByName("message"), protoreflect.ValueOfString(r.Err.Message))
		msg.Set(fields.ByName("err"), protoreflect.ValueOfMessage(body))
	default:
		body := dynamicpb.NewMessage(s.Ok)
		if r.Ok != nil && len(r.Ok.Payload) > 0 {
			body.Set(s.Ok.Fields().ByName("payload"), protoreflect.ValueOfBytes(r.Ok.Payload))
		}
		msg.Set(fields.ByName("ok"), protoreflect.ValueOfMessage(body))
	}

	return msg
}

// DecodeResponse reads an InvokeResponse. A response with neither branch set
// is reported as an error.
func (s *Schema) DecodeResponse(m proto.Message) (Response, error) {
	msg := m.ProtoReflect()
	if msg.Descriptor().FullName() != s.Response.FullName() {
		return Response{}, fmt.Errorf("schema: expected %s, got %s", s.Response.FullName(), msg.Descriptor().FullName())
	}

	which := msg.WhichOneof(s.Response.Oneofs().ByName("result"))
	if which == nil {
		return Response{}, fmt.Errorf("schema: %s has no result", s.Response.FullName())
	}

	body := msg.Get(which).Message()

	switch which.Name() {
	case "err":
		return Response{Err: &ErrBody{
			Kind:    body.Get(s.Err.Fields().ByName("kind")).String(),
			Message: body.Get(s.Err.Fields().ByName("message")).String(),
		}}, nil
	default:
		return Response{Ok: &OkBody{
			Payload: body.Get(s.Ok.Fields().ByName("payload")).Bytes(),
		}}, nil
	}
}
