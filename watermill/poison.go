package watermill

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/shortlink-org/commandbus/watermill/dlq"
)

// DefaultDLQTopic is handed to the poison queue when no fixed topic is set.
// Events still go to "<topic>.DLQ" of the failing command.
const DefaultDLQTopic = "commandbus_dlq"

var (
	errMissingTopic   = errors.New("missing topic metadata for DLQ publication")
	errNilDLQProducer = errors.New("watermill: poison middleware requires a publisher")
)

type originalKey struct{}

// NewPoisonMiddleware acks messages whose handler still fails after the
// consumer retries and publishes them as dlq.Event to the dead letter topic.
func NewPoisonMiddleware(publisher message.Publisher, opts DLQOptions) (message.HandlerMiddleware, error) {
	if publisher == nil {
		return nil, errNilDLQProducer
	}

	topic := opts.Topic
	if topic == "" {
		topic = DefaultDLQTopic
	}

	poison, err := middleware.PoisonQueue(&deadLetters{
		topic:     opts.Topic,
		service:   opts.Service,
		publisher: publisher,
	}, topic)
	if err != nil {
		return nil, err
	}

	return func(h message.HandlerFunc) message.HandlerFunc {
		return poison(func(msg *message.Message) ([]*message.Message, error) {
			// the poison queue publishes a copy, so keep the message as received
			msg.SetContext(context.WithValue(contextOf(msg), originalKey{}, msg.Copy()))

			return h(msg)
		})
	}, nil
}

func contextOf(msg *message.Message) context.Context {
	if ctx := msg.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}

// deadLetters turns poisoned messages into dlq events.
type deadLetters struct {
	topic     string
	service   string
	publisher message.Publisher
}

func (d *deadLetters) Publish(_ string, msgs ...*message.Message) error {
	for _, poisoned := range msgs {
		ctx := contextOf(poisoned)

		original, ok := ctx.Value(originalKey{}).(*message.Message)
		if !ok {
			original = poisoned.Copy()
		}

		topic, err := d.topicFor(poisoned)
		if err != nil {
			return err
		}

		reason := poisoned.Metadata.Get(middleware.ReasonForPoisonedKey)
		if reason == "" {
			reason = "handler returned error"
		}

		err = dlq.Publish(ctx, d.publisher, topic, dlq.Event{
			FailedAt:    time.Now().UTC(),
			Reason:      reason,
			OriginalMsg: original,
			Stacktrace:  string(debug.Stack()),
			ServiceName: d.service,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (d *deadLetters) Close() error {
	return d.publisher.Close()
}

func (d *deadLetters) topicFor(msg *message.Message) (string, error) {
	if d.topic != "" {
		return d.topic, nil
	}

	topic := msg.Metadata.Get(middleware.PoisonedTopicKey)
	if topic == "" {
		topic = msg.Metadata.Get("received_topic")
	}
	if topic == "" {
		return "", errMissingTopic
	}

	return topic + ".DLQ", nil
}
