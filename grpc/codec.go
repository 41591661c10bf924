package grpc

import (
	"bytes"

	"github.com/segmentio/encoding/json"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/grpc/schema"
)

// encodePayload serialises a command payload or a result value.
func encodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

// decodeClientPayload reads an ok payload. Empty or unparseable bytes decode
// to nil.
func decodeClientPayload(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}

	return v
}

// decodeServerPayload reads a request payload. Empty or unparseable bytes
// decode to an empty object.
func decodeServerPayload(raw []byte) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return map[string]any{}
	}

	return v
}

// requestFromEnvelope builds the wire request. Meta travels both as the meta
// map and, via the meta interceptor, as headers.
func requestFromEnvelope(env message.Envelope[any]) (schema.Request, error) {
	payload, err := encodePayload(env.Payload)
	if err != nil {
		return schema.Request{}, err
	}

	return schema.Request{
		Type:    env.Type,
		Payload: payload,
		Meta:    env.MetaOrEmpty().ToMap(),
	}, nil
}

// envelopeFromRequest rebuilds the envelope on the server. Meta keys missing
// from the request map are taken from headers.
func envelopeFromRequest(req schema.Request, headers message.Meta) message.Envelope[any] {
	meta := message.MetaFromMap(req.Meta)
	if meta.CorrelationID == "" {
		meta.CorrelationID = headers.CorrelationID
	}
	if meta.UserID == "" {
		meta.UserID = headers.UserID
	}
	if meta.Source == "" {
		meta.Source = headers.Source
	}
	if meta.CommandID == "" {
		meta.CommandID = headers.CommandID
	}

	env := message.New[any](req.Type, decodeServerPayload(req.Payload), nil)
	if !meta.IsZero() {
		env = env.WithMeta(meta)
	}

	return env
}

// responseFromResult marshals a Result to the oneof shape. A value that cannot
// be serialised becomes a system error.
func responseFromResult(res result.Result[any]) schema.Response {
	if res.IsErr() {
		return errResponse(res.Error())
	}

	payload, err := encodePayload(res.Value())
	if err != nil {
		return errResponse(result.Newf(result.KindSystem, "failed to encode result: %v", err))
	}

	return schema.Response{Ok: &schema.OkBody{Payload: payload}}
}

func errResponse(err *result.Error) schema.Response {
	return schema.Response{Err: &schema.ErrBody{Kind: string(err.Kind), Message: err.Message}}
}

// resultFromResponse turns the wire response back into a Result. Err bodies
// are forwarded verbatim.
func resultFromResponse(resp schema.Response) result.Result[any] {
	if resp.Err != nil {
		return result.Err[any](result.New(result.Kind(resp.Err.Kind), resp.Err.Message))
	}

	var payload []byte
	if resp.Ok != nil {
		payload = resp.Ok.Payload
	}

	return result.Ok(decodeClientPayload(payload))
}
