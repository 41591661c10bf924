package watermill

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cqrsmessage "github.com/shortlink-org/commandbus/cqrs/message"
)

// Metric names exported by the async transport.
const (
	MetricPublished      = "commandbus_async_published_total"
	MetricConsumed       = "commandbus_async_consumed_total"
	MetricFailed         = "commandbus_async_failed_total"
	MetricPublishLatency = "commandbus_async_publish_latency_seconds"
	MetricConsumeLatency = "commandbus_async_consume_latency_seconds"
)

// kindReply labels reply messages, which carry no command type.
const kindReply = "reply"

// Metrics counts and times command and reply messages per topic and
// command type.
type Metrics struct {
	published metric.Int64Counter
	consumed  metric.Int64Counter
	failed    metric.Int64Counter

	publishLatency metric.Float64Histogram
	consumeLatency metric.Float64Histogram
}

// NewMetrics registers the instruments on provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("commandbus/watermill")

	var (
		m   Metrics
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.published, MetricPublished, "Command and reply messages published"},
		{&m.consumed, MetricConsumed, "Command and reply messages handled"},
		{&m.failed, MetricFailed, "Failed publish or consume operations"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1")); err != nil {
			return nil, err
		}
	}

	m.publishLatency, err = meter.Float64Histogram(MetricPublishLatency,
		metric.WithDescription("Time spent publishing a batch of messages"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.consumeLatency, err = meter.Float64Histogram(MetricConsumeLatency,
		metric.WithDescription("Time spent handling a message, retries included"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// HandlerMiddleware records the outcome of every handled message.
func (m *Metrics) HandlerMiddleware() message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := msg.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			start := time.Now()
			msgs, err := h(msg)

			m.record(ctx, m.consumed, m.consumeLatency, "consume",
				message.SubscribeTopicFromCtx(ctx), 1, time.Since(start), err, msg)

			return msgs, err
		}
	}
}

func (m *Metrics) record(
	ctx context.Context,
	counter metric.Int64Counter,
	latency metric.Float64Histogram,
	stage, topic string,
	n int,
	took time.Duration,
	err error,
	msg *message.Message,
) {
	attrs := metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("command_type", commandTypeOf(msg)),
	)

	if err != nil {
		m.failed.Add(ctx, int64(n), attrs, metric.WithAttributes(attribute.String("stage", stage)))
		return
	}

	counter.Add(ctx, int64(n), attrs)
	latency.Record(ctx, took.Seconds(), attrs)
}

func commandTypeOf(msg *message.Message) string {
	if msg == nil {
		return ""
	}

	if commandType := msg.Metadata.Get(cqrsmessage.MetadataCommandType); commandType != "" {
		return commandType
	}

	return kindReply
}
