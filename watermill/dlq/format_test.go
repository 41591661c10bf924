package dlq

import (
	"testing"
	"time"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/cqrs/message"
)

type dlqPayload struct {
	CommandType string `json:"command_type"`
	Original    struct {
		Payload       json.RawMessage   `json:"payload"`
		PayloadBase64 string            `json:"payload_base64"`
		Metadata      map[string]string `json:"metadata"`
	} `json:"original_message"`
}

func commandMessage(payload string) *wmmessage.Message {
	msg := wmmessage.NewMessage("original-123", []byte(payload))
	msg.Metadata.Set("received_topic", message.TopicForCommand("account.create"))
	msg.Metadata.Set(message.MetadataCommandType, "account.create")

	return msg
}

func TestBuildMessagePreservesMetadata(t *testing.T) {
	event := Event{
		FailedAt:    time.Unix(1, 0).UTC(),
		Reason:      "boom",
		OriginalMsg: commandMessage(`{"type":"account.create"}`),
		Stacktrace:  "stack",
		ServiceName: "accounts",
	}

	msg, err := BuildMessage(event)
	require.NoError(t, err)

	require.Equal(t, "boom", msg.Metadata.Get("poison_reason"))
	require.Equal(t, "stack", msg.Metadata.Get("poison_stacktrace"))
	require.Equal(t, "accounts", msg.Metadata.Get("service_name"))
	require.Equal(t, Version, msg.Metadata.Get("dlq_version"))
	require.Equal(t, "account.create", msg.Metadata.Get(message.MetadataCommandType))
	require.Equal(t, message.TopicForCommand("account.create"), msg.Metadata.Get("original_received_topic"))
}

func TestEventJSONKeepsOriginalPayload(t *testing.T) {
	original := commandMessage(`{"hello":"world"}`)

	msg, err := BuildMessage(Event{Reason: "boom", OriginalMsg: original})
	require.NoError(t, err)

	var payload dlqPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))

	require.Equal(t, "account.create", payload.CommandType)
	require.JSONEq(t, `{"hello":"world"}`, string(payload.Original.Payload))
	require.Equal(t, map[string]string(original.Metadata), payload.Original.Metadata)
}

func TestEventJSONEncodesBinaryPayload(t *testing.T) {
	msg, err := BuildMessage(Event{Reason: "boom", OriginalMsg: commandMessage("\x00\x01")})
	require.NoError(t, err)

	var payload dlqPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, "AAE=", payload.Original.PayloadBase64)
}

func TestBuildMessageRequiresOriginal(t *testing.T) {
	_, err := BuildMessage(Event{Reason: "boom"})
	require.ErrorIs(t, err, errMissingOriginal)
}
