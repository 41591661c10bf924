package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/logger"
)

// New builds a server with timeouts from HTTP_SERVER_*. Requests carry ctx
// as their base context.
func New(ctx context.Context, h http.Handler, serverConfig Config, cfg *config.Config) *http.Server {
	cfg.SetDefault("HTTP_SERVER_READ_TIMEOUT", "5s")        // the maximum duration for reading the entire request, including the body
	cfg.SetDefault("HTTP_SERVER_WRITE_TIMEOUT", "5s")       // the maximum duration before timing out writes of the response
	cfg.SetDefault("HTTP_SERVER_IDLE_TIMEOUT", "30s")       // the maximum amount of time to wait for the next request when keep-alive is enabled
	cfg.SetDefault("HTTP_SERVER_READ_HEADER_TIMEOUT", "2s") // the amount of time allowed to read request headers

	if serverConfig.Timeout <= 0 {
		serverConfig.Timeout = 30 * time.Second
	}

	server := &http.Server{} //nolint:gosec,exhaustruct // timeouts configured immediately below
	server.Addr = fmt.Sprintf(":%d", serverConfig.Port)
	server.Handler = http.TimeoutHandler(h, serverConfig.Timeout, TimeoutMessage)
	server.BaseContext = func(_ net.Listener) context.Context { return ctx }
	server.ReadTimeout = cfg.GetDuration("HTTP_SERVER_READ_TIMEOUT")
	server.WriteTimeout = serverConfig.Timeout + cfg.GetDuration("HTTP_SERVER_WRITE_TIMEOUT")
	server.IdleTimeout = cfg.GetDuration("HTTP_SERVER_IDLE_TIMEOUT")
	server.ReadHeaderTimeout = cfg.GetDuration("HTTP_SERVER_READ_HEADER_TIMEOUT")

	return server
}

// Run serves until ctx is done, then shuts the server down within
// HTTP_SERVER_SHUTDOWN_TIMEOUT.
func Run(ctx context.Context, log logger.Logger, server *http.Server, cfg *config.Config) error {
	cfg.SetDefault("HTTP_SERVER_SHUTDOWN_TIMEOUT", "10s")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	log.Info("http server started", slog.String("addr", server.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.GetDuration("HTTP_SERVER_SHUTDOWN_TIMEOUT"))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", server.Addr, err)
	}

	return nil
}
