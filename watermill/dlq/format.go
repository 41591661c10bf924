// Package dlq builds and publishes dead letter messages for command messages
// that could not be handled.
package dlq

import (
	"encoding/base64"
	"errors"
	"fmt"
	"maps"
	"time"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/shortlink-org/commandbus/cqrs/message"
)

// Version of the dead letter payload layout.
const Version = "1"

var errMissingOriginal = errors.New("dlq event missing original message")

// Event is the payload stored inside a dead letter message.
type Event struct {
	FailedAt    time.Time
	Reason      string
	OriginalMsg *wmmessage.Message
	Stacktrace  string
	ServiceName string
}

// CommandType returns the command type carried by the original message.
func (e Event) CommandType() string {
	if e.OriginalMsg == nil {
		return ""
	}

	return e.OriginalMsg.Metadata.Get(message.MetadataCommandType)
}

// BuildMessage serializes event and copies the original metadata under an
// "original_" prefix.
func BuildMessage(event Event) (*wmmessage.Message, error) {
	if event.OriginalMsg == nil {
		return nil, errMissingOriginal
	}

	if event.FailedAt.IsZero() {
		event.FailedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal dlq event: %w", err)
	}

	msg := wmmessage.NewMessage(uuid.NewString(), payload)

	for k, v := range event.OriginalMsg.Metadata {
		msg.Metadata.Set("original_"+k, v)
	}

	msg.Metadata.Set("poison_reason", event.Reason)
	msg.Metadata.Set("poison_stacktrace", event.Stacktrace)
	msg.Metadata.Set("service_name", event.ServiceName)
	msg.Metadata.Set("dlq_version", Version)
	if commandType := event.CommandType(); commandType != "" {
		msg.Metadata.Set(message.MetadataCommandType, commandType)
	}

	return msg, nil
}

type originalMessageJSON struct {
	UUID          string            `json:"uuid"`
	Metadata      map[string]string `json:"metadata"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	PayloadBase64 string            `json:"payload_base64,omitempty"`
}

type eventJSON struct {
	FailedAt    time.Time           `json:"failed_at"`
	Reason      string              `json:"reason"`
	CommandType string              `json:"command_type,omitempty"`
	Stacktrace  string              `json:"stacktrace,omitempty"`
	ServiceName string              `json:"service_name,omitempty"`
	Original    originalMessageJSON `json:"original_message"`
}

// MarshalJSON keeps the original payload inline when it is JSON and base64
// encoded otherwise.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.OriginalMsg == nil {
		return nil, errMissingOriginal
	}

	original := originalMessageJSON{
		UUID:     e.OriginalMsg.UUID,
		Metadata: maps.Clone(map[string]string(e.OriginalMsg.Metadata)),
	}
	if original.Metadata == nil {
		original.Metadata = map[string]string{}
	}

	switch {
	case len(e.OriginalMsg.Payload) == 0:
		original.Payload = json.RawMessage("null")
	case json.Valid(e.OriginalMsg.Payload):
		original.Payload = json.RawMessage(e.OriginalMsg.Payload)
	default:
		original.PayloadBase64 = base64.StdEncoding.EncodeToString(e.OriginalMsg.Payload)
	}

	return json.Marshal(eventJSON{
		FailedAt:    e.FailedAt,
		Reason:      e.Reason,
		CommandType: e.CommandType(),
		Stacktrace:  e.Stacktrace,
		ServiceName: e.ServiceName,
		Original:    original,
	})
}
