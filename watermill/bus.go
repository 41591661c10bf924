package watermill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	wmmid "github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/logger"
)

var (
	errAlreadyStarted = errors.New("watermill: command bus already started")
	errNilClient      = errors.New("watermill: client is nil")
)

// WatermillCommandBus publishes commands to a topic per command type.
// Invoke waits for the reply on the service reply topic, correlated by
// CommandID. The same bus consumes the command types of its registry once
// started.
//
//nolint:revive // the name mirrors the transport name used by the resolver
type WatermillCommandBus struct {
	client   *Client
	registry *bus.Registry

	chain         *bus.Chain // around publish
	consumerChain *bus.Chain // around the registry on the consumer side

	replyTopic string
	timeout    time.Duration
	log        logger.Logger

	started atomic.Bool

	mu      sync.Mutex
	pending map[string]chan result.Result[any]
}

// replyBody is the payload of a reply message.
type replyBody struct {
	Ok       bool          `json:"ok"`
	Value    any           `json:"value,omitempty"`
	Messages []string      `json:"messages,omitempty"`
	Error    *result.Error `json:"error,omitempty"`
}

// BusOption configures WatermillCommandBus.
type BusOption func(*WatermillCommandBus)

// WithService names the service; replies arrive on message.ReplyTopic(name).
func WithService(name string) BusOption {
	return func(b *WatermillCommandBus) {
		b.replyTopic = message.ReplyTopic(name)
	}
}

// WithPublishMiddleware sets the middleware run around publishing.
func WithPublishMiddleware(middlewares ...bus.Middleware) BusOption {
	return func(b *WatermillCommandBus) {
		b.chain = bus.NewChain(middlewares...)
	}
}

// WithConsumerMiddleware sets the middleware run around local handlers when
// a command message is consumed.
func WithConsumerMiddleware(middlewares ...bus.Middleware) BusOption {
	return func(b *WatermillCommandBus) {
		b.consumerChain = bus.NewChain(middlewares...)
	}
}

// WithDefaultTimeout bounds Invoke when the call has no timeout of its own.
func WithDefaultTimeout(timeout time.Duration) BusOption {
	return func(b *WatermillCommandBus) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(log logger.Logger) BusOption {
	return func(b *WatermillCommandBus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewWatermillCommandBus builds the bus over client. registry holds the
// handlers this process consumes; it may be empty for a pure sender.
func NewWatermillCommandBus(client *Client, registry *bus.Registry, opts ...BusOption) (*WatermillCommandBus, error) {
	if client == nil {
		return nil, errNilClient
	}
	if registry == nil {
		registry = bus.NewRegistry()
	}

	b := &WatermillCommandBus{
		client:        client,
		registry:      registry,
		chain:         bus.NewChain(),
		consumerChain: bus.NewChain(),
		replyTopic:    message.ReplyTopic(""),
		timeout:       bus.DefaultInvokeTimeout,
		log:           logger.NewNop(),
		pending:       make(map[string]chan result.Result[any]),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b, nil
}

// Registry exposes the handlers consumed by this bus.
func (b *WatermillCommandBus) Registry() *bus.Registry {
	return b.registry
}

// Start subscribes one consumer per registered command type plus the reply
// topic, runs the router and returns once it is running. Handlers registered
// after Start are not consumed.
func (b *WatermillCommandBus) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	router := b.client.Router

	for _, commandType := range b.registry.Types() {
		topic := message.TopicForCommand(commandType)
		router.AddNoPublisherHandler("commandbus_consume_"+topic, topic, b.client.Subscriber, b.consume)
	}

	router.AddNoPublisherHandler("commandbus_reply_"+b.replyTopic, b.replyTopic, b.client.Subscriber, b.onReply)

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Run(ctx)
	}()

	select {
	case <-router.Running():
		b.log.Info("watermill command bus started",
			slog.Any("command_types", b.registry.Types()),
			slog.String("reply_topic", b.replyTopic),
		)
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("watermill: router stopped before running")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch publishes the command without waiting for a result. Success means
// the message was accepted by the publisher.
func (b *WatermillCommandBus) Dispatch(ctx context.Context, env message.Envelope[any]) result.Result[struct{}] {
	res := b.run(ctx, env, func(ctx context.Context, env message.Envelope[any]) result.Result[any] {
		if err := b.publish(ctx, env, ""); err != nil {
			return result.Err[any](err)
		}

		return result.Ok[any](nil)
	})
	if res.IsErr() {
		return result.Err[struct{}](res.Error())
	}

	return result.Ok(struct{}{}, res.Messages()...)
}

// Invoke publishes the command with a reply address and waits for the reply
// within the timeout. A reply that arrives after the timeout is dropped.
func (b *WatermillCommandBus) Invoke(ctx context.Context, env message.Envelope[any], opts ...bus.InvokeOption) result.Result[any] {
	o := bus.ApplyInvokeOptions(b.timeout, opts...)

	if !b.started.Load() {
		return result.Err[any](result.System("WatermillCommandBus is not started"))
	}

	return bus.RunWithTimeout(ctx, env.Type, o.Timeout, func(ctx context.Context) result.Result[any] {
		return b.run(ctx, env, b.request)
	})
}

// Ready reports an error until the router is running.
func (b *WatermillCommandBus) Ready() error {
	if !b.client.Router.IsRunning() {
		return errors.New("watermill router is not running")
	}

	return nil
}

// Close stops the router and the backend.
func (b *WatermillCommandBus) Close() error {
	return b.client.Close()
}

func (b *WatermillCommandBus) run(ctx context.Context, env message.Envelope[any], terminal bus.Next) result.Result[any] {
	if ctx == nil {
		ctx = context.Background()
	}

	return bus.Safe(ctx, func(ctx context.Context) result.Result[any] {
		return b.chain.Run(ctx, env, terminal)
	})
}

func (b *WatermillCommandBus) request(ctx context.Context, env message.Envelope[any]) result.Result[any] {
	meta := env.MetaOrEmpty()
	if meta.CommandID == "" {
		meta.CommandID = uuid.NewString()
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = meta.CommandID
	}
	env = env.WithMeta(meta)

	wait := b.await(meta.CommandID)
	defer b.forget(meta.CommandID)

	if err := b.publish(ctx, env, b.replyTopic); err != nil {
		return result.Err[any](err)
	}

	select {
	case res := <-wait:
		return res
	case <-ctx.Done():
		return result.Err[any](result.Wrap(result.KindSystem,
			fmt.Sprintf("Command %s cancelled: %v", env.Type, ctx.Err()), ctx.Err()))
	}
}

func (b *WatermillCommandBus) await(commandID string) <-chan result.Result[any] {
	ch := make(chan result.Result[any], 1)

	b.mu.Lock()
	b.pending[commandID] = ch
	b.mu.Unlock()

	return ch
}

func (b *WatermillCommandBus) forget(commandID string) {
	b.mu.Lock()
	delete(b.pending, commandID)
	b.mu.Unlock()
}

func (b *WatermillCommandBus) publish(ctx context.Context, env message.Envelope[any], replyTo string) *result.Error {
	payload, err := json.Marshal(env)
	if err != nil {
		return result.Wrap(result.KindSystem,
			fmt.Sprintf("encode command %s: %v", env.Type, err), err)
	}

	msg := wmmessage.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(message.MetadataCommandType, env.Type)
	for k, v := range env.MetaOrEmpty().ToMap() {
		msg.Metadata.Set(k, v)
	}
	if replyTo != "" {
		msg.Metadata.Set(message.MetadataReplyTo, replyTo)
	}
	if correlationID := env.MetaOrEmpty().CorrelationID; correlationID != "" {
		wmmid.SetCorrelationID(correlationID, msg)
	}

	if err := b.client.Publisher.Publish(message.TopicForCommand(env.Type), msg); err != nil {
		return result.Wrap(result.KindSystem,
			fmt.Sprintf("publish command %s failed: %v", env.Type, err), err)
	}

	return nil
}

// consume runs a command message through the local registry. Failures of a
// fire-and-forget command that may heal on retry (SYSTEM, TIMEOUT) are
// returned to the router; everything else is acked.
func (b *WatermillCommandBus) consume(msg *wmmessage.Message) error {
	ctx := msg.Context()
	replyTo := msg.Metadata.Get(message.MetadataReplyTo)

	var env message.Envelope[any]
	var res result.Result[any]

	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		res = result.Err[any](result.Wrap(result.KindSystem,
			fmt.Sprintf("decode command message %s: %v", msg.UUID, err), err))
	} else {
		if env.Type == "" {
			env.Type = msg.Metadata.Get(message.MetadataCommandType)
		}
		if env.Meta == nil {
			if meta := message.MetaFromMap(msg.Metadata); !meta.IsZero() {
				env.Meta = &meta
			}
		}

		res = bus.Safe(ctx, func(ctx context.Context) result.Result[any] {
			return b.consumerChain.Run(ctx, env, bus.Terminal(b.registry))
		})
	}

	if replyTo != "" {
		return b.reply(ctx, replyTo, msg, res)
	}

	if res.IsErr() {
		b.log.WarnWithContext(ctx, "dispatched command failed",
			append(env.MetaOrEmpty().LogAttrs(),
				slog.String("command_type", env.Type),
				slog.String("kind", string(res.Error().Kind)),
				slog.String("error", res.Error().Message),
			)...,
		)

		if result.IsKind(res.Error(), result.KindSystem) || result.IsKind(res.Error(), result.KindTimeout) {
			return res.Error()
		}
	}

	return nil
}

func (b *WatermillCommandBus) reply(ctx context.Context, topic string, src *wmmessage.Message, res result.Result[any]) error {
	body := replyBody{Ok: res.IsOk(), Messages: res.Messages()}
	if res.IsOk() {
		body.Value = res.Value()
	} else {
		body.Error = res.Error()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		body = replyBody{Error: result.System(fmt.Sprintf("encode reply: %v", err))}
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	msg := wmmessage.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(message.HeaderCommandID, src.Metadata.Get(message.HeaderCommandID))
	wmmid.SetCorrelationID(wmmid.MessageCorrelationID(src), msg)

	return b.client.Publisher.Publish(topic, msg)
}

// onReply hands a reply to the waiting Invoke. Unknown or late replies are
// dropped.
func (b *WatermillCommandBus) onReply(msg *wmmessage.Message) error {
	commandID := msg.Metadata.Get(message.HeaderCommandID)

	b.mu.Lock()
	wait, ok := b.pending[commandID]
	b.mu.Unlock()

	if !ok {
		b.log.Debug("reply without a waiting caller dropped", slog.String("command_id", commandID))
		return nil
	}

	var body replyBody
	var res result.Result[any]

	switch err := json.Unmarshal(msg.Payload, &body); {
	case err != nil:
		res = result.Err[any](result.Wrap(result.KindSystem, fmt.Sprintf("decode reply: %v", err), err))
	case body.Ok:
		res = result.Ok(body.Value, body.Messages...)
	case body.Error != nil:
		res = result.Err[any](body.Error)
	default:
		res = result.Err[any](result.System("reply carries neither value nor error"))
	}

	select {
	case wait <- res:
	default:
	}

	return nil
}
