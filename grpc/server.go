package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/shortlink-org/commandbus/config"
	grpc_logger "github.com/shortlink-org/commandbus/grpc/middleware/logger"
	meta_interceptor "github.com/shortlink-org/commandbus/grpc/middleware/meta"
	"github.com/shortlink-org/commandbus/logger"
)

// Server represents a configured gRPC server instance.
type Server struct {
	Run      func() error
	Server   *grpc.Server
	Endpoint string
}

type server struct {
	interceptorStreamServerList []grpc.StreamServerInterceptor
	interceptorUnaryServerList  []grpc.UnaryServerInterceptor
	optionsNewServer            []grpc.ServerOption

	port int
	host string

	log           logger.Logger
	serverMetrics *grpc_prometheus.ServerMetrics
	cfg           *config.Config

	keepaliveParams keepalive.ServerParameters
	keepalivePolicy keepalive.EnforcementPolicy
}

// InitServer listens on GRPC_SERVER_HOST:GRPC_SERVER_PORT and prepares a
// server exposing commands. The server stops gracefully when ctx is done.
func InitServer(
	ctx context.Context,
	log logger.Logger,
	tracer trace.TracerProvider,
	prom prometheus.Registerer,
	cfg *config.Config,
	commands CommandService,
) (*Server, error) {
	grpcServer, config, err := newServer(log, tracer, prom, cfg, commands)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s:%d", config.host, config.port)

	var lc net.ListenConfig

	lis, err := lc.Listen(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	grpcServerInstance := &Server{
		Server: grpcServer,
		Run: func() error {
			log.Info("Run gRPC server",
				slog.Int("port", config.port),
				slog.String("host", config.host),
			)

			return grpcServer.Serve(lis)
		},
		Endpoint: lis.Addr().String(),
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		log.Info("Shutdown gRPC server")
		grpcServer.GracefulStop()
	}()

	return grpcServerInstance, nil
}

// NewServer builds a *grpc.Server with the command service, reflection and the
// configured interceptors, without listening.
func NewServer(
	log logger.Logger,
	tracer trace.TracerProvider,
	prom prometheus.Registerer,
	cfg *config.Config,
	commands CommandService,
) (*grpc.Server, error) {
	grpcServer, _, err := newServer(log, tracer, prom, cfg, commands)

	return grpcServer, err
}

func newServer(
	log logger.Logger,
	tracer trace.TracerProvider,
	prom prometheus.Registerer,
	cfg *config.Config,
	commands CommandService,
) (*grpc.Server, *server, error) {
	if commands == nil {
		return nil, nil, errors.New("grpc: command service is required")
	}

	config, err := setServerConfig(log, tracer, prom, cfg)
	if err != nil {
		return nil, nil, err
	}

	grpcServer := grpc.NewServer(config.optionsNewServer...)

	RegisterCommandServer(grpcServer, commands)

	// Register reflection service on gRPC server.
	reflection.Register(grpcServer)

	// After all your registrations, make sure all of the Prometheus metrics are initialized.
	if config.serverMetrics != nil {
		config.serverMetrics.InitializeMetrics(grpcServer)
	}

	return grpcServer, config, nil
}

// setServerConfig - set configuration.
func setServerConfig(
	log logger.Logger,
	tracer trace.TracerProvider,
	monitor prometheus.Registerer,
	cfg *config.Config,
) (*server, error) {
	cfg.SetDefault("GRPC_SERVER_PORT", "50051") // gRPC port
	grpcPort := cfg.GetInt("GRPC_SERVER_PORT")

	cfg.SetDefault("GRPC_SERVER_HOST", "0.0.0.0") // gRPC host
	grpcHost := cfg.GetString("GRPC_SERVER_HOST")

	config := &server{
		port: grpcPort,
		host: grpcHost,

		log: log,
		cfg: cfg,
	}

	config.WithMeta()
	config.WithLogger(log)
	config.WithTracer(tracer)
	config.WithCompression()
	config.WithMessageLimits()
	config.WithKeepalive()

	if monitor != nil {
		if err := config.WithMetrics(monitor); err != nil {
			return nil, err
		}
	}

	config.WithRecovery(monitor)

	config.optionsNewServer = append(config.optionsNewServer,
		grpc.ChainUnaryInterceptor(config.interceptorUnaryServerList...),
		grpc.ChainStreamInterceptor(config.interceptorStreamServerList...),
	)

	return config, nil
}

// WithMetrics - setup metrics.
func (s *server) WithMetrics(prom prometheus.Registerer) error {
	s.serverMetrics = grpc_prometheus.NewServerMetrics(
		grpc_prometheus.WithServerHandlingTimeHistogram(
			grpc_prometheus.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30, 60, 90, 120}),
		),
	)

	if err := prom.Register(s.serverMetrics); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !asAlreadyRegistered(err, &already) {
			return fmt.Errorf("grpc: register server metrics: %w", err)
		}

		existing, ok := already.ExistingCollector.(*grpc_prometheus.ServerMetrics)
		if !ok {
			return fmt.Errorf("grpc: register server metrics: %w", err)
		}
		s.serverMetrics = existing
	}

	exemplarFromCtx := grpc_prometheus.WithExemplarFromContext(exemplarFromContext)

	s.interceptorUnaryServerList = append(
		s.interceptorUnaryServerList,
		s.serverMetrics.UnaryServerInterceptor(exemplarFromCtx),
	)
	s.interceptorStreamServerList = append(
		s.interceptorStreamServerList,
		s.serverMetrics.StreamServerInterceptor(exemplarFromCtx),
	)

	return nil
}

// WithTracer - setup tracing.
func (s *server) WithTracer(tracer trace.TracerProvider) {
	if tracer == nil {
		return
	}

	s.optionsNewServer = append(s.optionsNewServer, grpc.StatsHandler(
		otelgrpc.NewServerHandler(otelgrpc.WithTracerProvider(tracer))),
	)
}

// WithRecovery - setup recovery.
func (s *server) WithRecovery(prom prometheus.Registerer) {
	var panicsTotal prometheus.Counter

	if prom != nil {
		// Setup metric for panic recoveries.
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grpc_req_panics_recovered_total",
			Help: "Total number of gRPC requests recovered from internal panic.",
		})

		if err := prom.Register(counter); err != nil {
			var already prometheus.AlreadyRegisteredError
			if asAlreadyRegistered(err, &already) {
				counter, _ = already.ExistingCollector.(prometheus.Counter)
			}
		}

		panicsTotal = counter
	}

	grpcPanicRecoveryHandler := func(panicValue any) error {
		if panicsTotal != nil {
			panicsTotal.Inc()
		}

		if s.log != nil {
			s.log.Error("recovered from panic",
				slog.String("panic", fmt.Sprintf("%v", panicValue)),
				slog.String("stack", string(debug.Stack())),
			)
		}

		return status.Errorf(codes.Internal, "%s", panicValue)
	}

	recoveryHandler := grpc_recovery.WithRecoveryHandler(grpcPanicRecoveryHandler)

	// recovery goes last so logging and metrics see the converted error
	s.interceptorUnaryServerList = append(
		s.interceptorUnaryServerList,
		grpc_recovery.UnaryServerInterceptor(recoveryHandler),
	)
	s.interceptorStreamServerList = append(
		s.interceptorStreamServerList,
		grpc_recovery.StreamServerInterceptor(recoveryHandler),
	)
}

// WithLogger - setup logger.
func (s *server) WithLogger(log logger.Logger) {
	s.cfg.SetDefault("GRPC_SERVER_LOGGER_ENABLED", true) // Enable logging for gRPC server
	isEnableLogger := s.cfg.GetBool("GRPC_SERVER_LOGGER_ENABLED")

	if isEnableLogger && log != nil {
		s.interceptorStreamServerList = append(s.interceptorStreamServerList, grpc_logger.StreamServerInterceptor(log))
		s.interceptorUnaryServerList = append(s.interceptorUnaryServerList, grpc_logger.UnaryServerInterceptor(log))
	}
}

// WithMeta - read envelope meta headers into the call context.
func (s *server) WithMeta() {
	s.interceptorUnaryServerList = append(s.interceptorUnaryServerList, meta_interceptor.UnaryServerInterceptor())
}

// WithCompression - compress responses when the client accepts it.
func (s *server) WithCompression() {
	s.cfg.SetDefault("GRPC_SERVER_COMPRESSION", CompressionGzip) // gzip or none
	if s.cfg.GetString("GRPC_SERVER_COMPRESSION") != CompressionGzip {
		return
	}

	s.interceptorUnaryServerList = append(s.interceptorUnaryServerList,
		func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			// fails when the client did not advertise gzip; the response is sent uncompressed then
			_ = grpc.SetSendCompressor(ctx, gzip.Name)

			return handler(ctx, req)
		},
	)
}

// WithMessageLimits - set max message sizes.
func (s *server) WithMessageLimits() {
	s.cfg.SetDefault("GRPC_SERVER_MAX_MESSAGE_LENGTH", 4*1024*1024) // bytes, both directions
	limit := s.cfg.GetInt("GRPC_SERVER_MAX_MESSAGE_LENGTH")

	if limit > 0 {
		s.optionsNewServer = append(s.optionsNewServer,
			grpc.MaxRecvMsgSize(limit),
			grpc.MaxSendMsgSize(limit),
		)
	}
}

// WithKeepalive - accept client pings and ping idle clients.
// GRPC_SERVER_KEEPALIVE_MIN_TIME must not exceed GRPC_CLIENT_KEEPALIVE_TIME of
// any caller, otherwise the server answers with GOAWAY too_many_pings.
func (s *server) WithKeepalive() {
	s.cfg.SetDefault("GRPC_SERVER_KEEPALIVE_MIN_TIME", "10s")             // shortest ping interval a client may use
	s.cfg.SetDefault("GRPC_SERVER_KEEPALIVE_PERMIT_WITHOUT_STREAM", true) // allow pings on idle connections
	s.cfg.SetDefault("GRPC_SERVER_KEEPALIVE_TIME", "2h")                  // ping idle clients after
	s.cfg.SetDefault("GRPC_SERVER_KEEPALIVE_TIMEOUT", "20s")              // wait for a ping ack

	s.keepalivePolicy = keepalive.EnforcementPolicy{
		MinTime:             s.cfg.GetDuration("GRPC_SERVER_KEEPALIVE_MIN_TIME"),
		PermitWithoutStream: s.cfg.GetBool("GRPC_SERVER_KEEPALIVE_PERMIT_WITHOUT_STREAM"),
	}
	s.keepaliveParams = keepalive.ServerParameters{
		Time:    s.cfg.GetDuration("GRPC_SERVER_KEEPALIVE_TIME"),
		Timeout: s.cfg.GetDuration("GRPC_SERVER_KEEPALIVE_TIMEOUT"),
	}

	s.optionsNewServer = append(s.optionsNewServer,
		grpc.KeepaliveEnforcementPolicy(s.keepalivePolicy),
		grpc.KeepaliveParams(s.keepaliveParams),
	)
}
