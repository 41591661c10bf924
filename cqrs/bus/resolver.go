package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// Transport names a delivery mechanism.
type Transport string

const (
	TransportMemory    Transport = "memory"
	TransportGRPC      Transport = "grpc"
	TransportWatermill Transport = "watermill"
)

// concrete bus names of the built-in transports, used in resolve errors.
var knownTransports = map[Transport]string{
	TransportMemory:    "InMemoryCommandBus",
	TransportGRPC:      "GrpcCommandBus",
	TransportWatermill: "WatermillCommandBus",
}

// ErrEmptyTransport indicates that Register received an empty name.
var ErrEmptyTransport = errors.New("cqrs/bus: transport name is empty")

// Resolver maps transport names to bus instances.
type Resolver struct {
	mu    sync.RWMutex
	buses map[Transport]CommandBus
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		buses: make(map[Transport]CommandBus),
	}
}

// Register binds a bus to a transport name. Names other than the built-in
// ones are accepted too.
func (r *Resolver) Register(name Transport, b CommandBus) error {
	if name == "" {
		return ErrEmptyTransport
	}
	if b == nil {
		return errors.New("cqrs/bus: bus is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.buses[name] = b
	return nil
}

// Resolve returns the bus registered for name.
func (r *Resolver) Resolve(name Transport) result.Result[CommandBus] {
	if name == "" {
		return result.Err[CommandBus](result.System("Transport is required"))
	}

	r.mu.RLock()
	b, ok := r.buses[name]
	r.mu.RUnlock()

	if ok {
		return result.Ok(b)
	}

	if concrete, known := knownTransports[name]; known {
		return result.Err[CommandBus](result.Newf(result.KindSystem, "%s is not registered in the container", concrete))
	}

	return result.Err[CommandBus](result.Newf(result.KindSystem, "Unknown transport: %s", name))
}

// Dispatch resolves the transport and dispatches env on it.
func (r *Resolver) Dispatch(ctx context.Context, name Transport, env message.Envelope[any]) result.Result[struct{}] {
	resolved := r.Resolve(name)
	if resolved.IsErr() {
		return result.Err[struct{}](resolved.Error())
	}

	return resolved.Value().Dispatch(ctx, env)
}

// Invoke resolves the transport and invokes env on it.
func (r *Resolver) Invoke(ctx context.Context, name Transport, env message.Envelope[any], opts ...InvokeOption) result.Result[any] {
	resolved := r.Resolve(name)
	if resolved.IsErr() {
		return result.Err[any](resolved.Error())
	}

	return resolved.Value().Invoke(ctx, env, opts...)
}
