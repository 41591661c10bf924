// Package kafka is the cross-process pub/sub backend: commands and replies
// travel through Kafka topics, one consumer group per service.
package kafka

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hashicorp/go-multierror"

	"github.com/shortlink-org/commandbus/config"
)

// Backend implements watermill.Backend on a Kafka publisher and subscriber.
type Backend struct {
	publisher  *wmkafka.Publisher
	subscriber *wmkafka.Subscriber
}

// New reads WATERMILL_KAFKA_* keys and connects to the brokers.
func New(cfg *config.Config, logger watermill.LoggerAdapter) (*Backend, error) {
	if cfg == nil {
		return nil, errors.New("kafka: config is nil")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	settings, err := loadSettings(cfg)
	if err != nil {
		return nil, err
	}

	publisher, err := wmkafka.NewPublisher(settings.publisherConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("kafka: create publisher: %w", err)
	}

	subscriber, err := wmkafka.NewSubscriber(settings.subscriberConfig(), logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("kafka: create subscriber: %w", err), publisher.Close())
	}

	return &Backend{
		publisher:  publisher,
		subscriber: subscriber,
	}, nil
}

func (b *Backend) Publisher() message.Publisher {
	return b.publisher
}

func (b *Backend) Subscriber() message.Subscriber {
	return b.subscriber
}

// Close stops the publisher and the subscriber.
func (b *Backend) Close() error {
	var errs *multierror.Error

	if err := b.publisher.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close publisher: %w", err))
	}

	if err := b.subscriber.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close subscriber: %w", err))
	}

	return errs.ErrorOrNil()
}
