package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/logger"
)

var (
	errNilPublisher = errors.New("dlq publisher is nil")
	errEmptyTopic   = errors.New("dlq topic is empty")
)

var (
	logMu     sync.RWMutex
	pkgLogger logger.Logger = logger.NewNop()
)

// SetLogger plugs the service logger into the DLQ helpers.
func SetLogger(log logger.Logger) {
	if log == nil {
		return
	}

	logMu.Lock()
	pkgLogger = log
	logMu.Unlock()
}

// Logger exposes the logger currently used by the DLQ helpers.
func Logger() logger.Logger {
	logMu.RLock()
	defer logMu.RUnlock()

	return pkgLogger
}

// Publish builds the dead letter message and sends it to topic. The trace
// context of ctx travels in the message metadata.
func Publish(ctx context.Context, publisher wmmessage.Publisher, topic string, event Event) error {
	if publisher == nil {
		return errNilPublisher
	}
	if topic == "" {
		return errEmptyTopic
	}

	msg, err := BuildMessage(event)
	if err != nil {
		return fmt.Errorf("build dlq message: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	msg.SetContext(ctx)
	message.InjectTrace(ctx, msg.Metadata)

	fields := []slog.Attr{
		slog.String("topic", topic),
		slog.String("reason", event.Reason),
		slog.String("command_type", event.CommandType()),
		slog.String("message_id", msg.UUID),
	}

	log := Logger()
	if err := publisher.Publish(topic, msg); err != nil {
		log.ErrorWithContext(ctx, "Failed to publish DLQ message", append(fields, slog.String("error", err.Error()))...)

		return fmt.Errorf("publish dlq message: %w", err)
	}

	log.WarnWithContext(ctx, "Command message moved to DLQ", fields...)

	return nil
}
