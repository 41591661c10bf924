// Package app wires the command bus service: configuration, observability,
// the saga store, the transports and the gRPC command endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/heptiolabs/healthcheck"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/handlers"
	"github.com/shortlink-org/commandbus/db"
	"github.com/shortlink-org/commandbus/grpc"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/observability/metrics"
	"github.com/shortlink-org/commandbus/observability/profiling"
	"github.com/shortlink-org/commandbus/observability/tracing"
	"github.com/shortlink-org/commandbus/saga"
	"github.com/shortlink-org/commandbus/saga/repository"
	"github.com/shortlink-org/commandbus/watermill"
	"github.com/shortlink-org/commandbus/watermill/backends/gochannel"
	"github.com/shortlink-org/commandbus/watermill/backends/kafka"
	"github.com/shortlink-org/commandbus/workflow/account"
)

const (
	backendGoChannel = "gochannel"
	backendKafka     = "kafka"
)

// Run loads the configuration from .env and the environment, then serves.
func Run(ctx context.Context) error {
	cfg, err := config.New(nil)
	if err != nil {
		return err
	}

	return Serve(ctx, cfg)
}

// Serve starts the service with cfg and blocks until ctx is done or a server
// fails.
func Serve(ctx context.Context, cfg *config.Config) error {
	cfg.SetDefault("SERVICE_NAME", "commandbus")
	cfg.SetDefault("MONITORING_GOROUTINE_THRESHOLD", 10_000)
	setInstanceID(cfg)

	log, cleanupLog, err := logger.NewDefault(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanupLog()

	tp, cleanupTracer, err := tracing.New(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer cleanupTracer()

	monitoring, cleanupMonitoring, err := metrics.New(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer cleanupMonitoring()

	monitoring.AddLivenessCheck("goroutines",
		healthcheck.GoroutineCountCheck(cfg.GetInt("MONITORING_GOROUTINE_THRESHOLD")))

	store, err := db.New(ctx, log, tp, monitoring.Metrics, cfg)
	if err != nil {
		return err
	}

	sagas, err := repository.New(ctx, store, cfg)
	if err != nil {
		return err
	}

	wired, err := wire(ctx, log, cfg, tp, monitoring, sagas)
	if err != nil {
		return err
	}

	defer func() {
		if errClose := wired.Close(); errClose != nil {
			log.Error("close transports", slog.String("error", errClose.Error()))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	server, err := grpc.InitServer(gctx, log, tp, monitoring.Prometheus, cfg, wired.commands)
	if err != nil {
		return err
	}

	g.Go(server.Run)
	g.Go(func() error { return monitoring.Run(gctx) })
	g.Go(func() error { return profiling.Run(gctx, log, cfg) })

	log.Info("commandbus started",
		slog.String("grpc", server.Endpoint),
		slog.String("store", store.Type()),
		slog.Any("commands", wired.registry.Types()),
	)

	return g.Wait()
}

// services is the command side of the process: one registry shared by every
// transport, and the resolver the saga sends sub-commands through.
type services struct {
	registry *bus.Registry
	resolver *bus.Resolver
	memory   *bus.InMemoryCommandBus
	remote   *grpc.GrpcCommandBus
	async    *watermill.WatermillCommandBus
	commands *grpc.CommandServer
}

// wire builds the transports and binds the account handlers and saga. The
// async consumer starts last: it subscribes to the command types registered
// at that moment.
func wire(
	ctx context.Context,
	log logger.Logger,
	cfg *config.Config,
	tp trace.TracerProvider,
	monitoring *metrics.Monitoring,
	sagas saga.Repository,
) (*services, error) {
	workflowCfg := account.LoadConfig(cfg)

	commandMetrics, err := handlers.NewMetrics(monitoring.Prometheus)
	if err != nil {
		return nil, err
	}

	chain := middlewareChain(log, tp, commandMetrics)

	s := &services{
		registry: bus.NewRegistry(),
		resolver: bus.NewResolver(),
	}

	s.memory, err = bus.NewInMemoryCommandBus(
		bus.WithRegistry(s.registry),
		bus.WithMiddleware(chain("memory")...),
		bus.WithLogger(log),
		bus.WithDefaultTimeout(workflowCfg.Timeout),
	)
	if err != nil {
		return nil, err
	}

	s.remote, err = grpc.NewGrpcCommandBus(grpc.LoadRoutingConfig(cfg),
		grpc.WithChannelOptions(
			grpc.WithLogger(log),
			grpc.WithTracer(tp, monitoring.Metrics),
			grpc.WithMetrics(monitoring.Prometheus),
		),
		grpc.WithMiddleware(chain("grpc_client")...),
	)
	if err != nil {
		return nil, err
	}

	s.async, err = newWatermillBus(log, cfg, monitoring, s.registry, tp, chain("watermill_consumer"), workflowCfg.Timeout)
	if err != nil {
		return nil, errors.Join(err, s.remote.Close())
	}

	for name, b := range map[bus.Transport]bus.CommandBus{
		bus.TransportMemory:    s.memory,
		bus.TransportGRPC:      s.remote,
		bus.TransportWatermill: s.async,
	} {
		if err = s.resolver.Register(name, b); err != nil {
			return nil, errors.Join(err, s.Close())
		}
	}

	if err = registerAccounts(log, workflowCfg, sagas, s.resolver, s.registry, tp); err != nil {
		return nil, errors.Join(err, s.Close())
	}

	s.commands, err = grpc.NewCommandServer(s.registry, chain("grpc_server")...)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	if err = s.async.Start(ctx); err != nil {
		return nil, errors.Join(err, s.Close())
	}

	monitoring.AddReadinessCheck("watermill", s.async.Ready)

	return s, nil
}

// middlewareChain returns a builder of the standard bus middleware. Every call
// gets its own circuit breaker, so each chain trips on its own failures.
func middlewareChain(log logger.Logger, tp trace.TracerProvider, commandMetrics bus.Middleware) func(name string) []bus.Middleware {
	return func(name string) []bus.Middleware {
		return []bus.Middleware{
			handlers.Correlation{},
			handlers.NewLogging(log),
			handlers.NewTracing(tp),
			commandMetrics,
			handlers.NewCircuitBreaker(gobreaker.Settings{Name: name}),
		}
	}
}

// Close releases the network transports.
func (s *services) Close() error {
	return closeAll(s.remote, s.async)
}

func newWatermillBus(
	log logger.Logger,
	cfg *config.Config,
	monitoring *metrics.Monitoring,
	registry *bus.Registry,
	tp trace.TracerProvider,
	middlewares []bus.Middleware,
	timeout time.Duration,
) (*watermill.WatermillCommandBus, error) {
	backend, err := newBackend(log, cfg)
	if err != nil {
		return nil, err
	}

	client, err := watermill.New(log, cfg, backend, monitoring.Metrics, tp)
	if err != nil {
		return nil, err
	}

	async, err := watermill.NewWatermillCommandBus(client, registry,
		watermill.WithService(cfg.GetString("SERVICE_NAME")+"."+cfg.GetString("SERVICE_INSTANCE_ID")),
		watermill.WithConsumerMiddleware(middlewares...),
		watermill.WithDefaultTimeout(timeout),
		watermill.WithLogger(log),
	)
	if err != nil {
		return nil, errors.Join(err, client.Close())
	}

	return async, nil
}

// newBackend picks the pub/sub behind the watermill transport. gochannel keeps
// commands inside the process; kafka lets other processes consume them.
func newBackend(log logger.Logger, cfg *config.Config) (watermill.Backend, error) {
	cfg.SetDefault("WATERMILL_BACKEND", backendGoChannel)

	adapter := watermill.NewWatermillLogger(log)

	switch backend := cfg.GetString("WATERMILL_BACKEND"); backend {
	case backendGoChannel:
		return gochannel.New(cfg, adapter), nil
	case backendKafka:
		b, err := kafka.New(cfg, adapter)
		if err != nil {
			return nil, err
		}

		return b, nil
	default:
		return nil, fmt.Errorf("unknown WATERMILL_BACKEND %q", backend)
	}
}

// registerAccounts binds the demo account and product services and the
// account.createWithProducts saga.
func registerAccounts(
	log logger.Logger,
	cfg account.Config,
	sagas saga.Repository,
	resolver *bus.Resolver,
	registry *bus.Registry,
	tp trace.TracerProvider,
) error {
	if err := account.NewAccounts().Register(registry); err != nil {
		return err
	}
	if err := account.NewProducts().Register(registry); err != nil {
		return err
	}

	flow, err := account.New(sagas, resolver, cfg, log, saga.WithTracerProvider(tp))
	if err != nil {
		return err
	}

	return flow.Register(registry)
}

// setInstanceID defaults SERVICE_INSTANCE_ID to the host name. Each instance
// gets its own reply topic, so replies are never consumed by a sibling.
func setInstanceID(cfg *config.Config) {
	instance, err := os.Hostname()
	if err != nil || instance == "" {
		instance = uuid.NewString()
	}

	cfg.SetDefault("SERVICE_INSTANCE_ID", instance)
}

func closeAll(closers ...interface{ Close() error }) error {
	var result error

	for _, c := range closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result
}
