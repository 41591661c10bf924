package watermill

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	wmmid "github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/shortlink-org/commandbus/cqrs/handlers"
	"github.com/shortlink-org/commandbus/logger"
)

func configureBaseMiddlewares(router *message.Router, log logger.Logger) {
	router.AddMiddleware(wmmid.CorrelationID)
	log.Debug("Configured correlation id middleware")
}

// configureConsumerMiddlewares installs Recoverer, CircuitBreaker, Timeout and
// Retry closest to the handler, so poison and metrics see the final outcome.
func configureConsumerMiddlewares(router *message.Router, log logger.Logger, opts Options) {
	cc := opts.ConsumerConfig()
	router.AddMiddleware(handlers.ConsumerMiddleware(cc))

	log.Info("Configured consumer middleware",
		slog.Bool("circuit_breaker", cc.CircuitBreakerEnabled),
		slog.String("timeout", cc.Timeout.String()),
		slog.Int("max_retries", cc.RetryMax),
		slog.String("initial_interval", cc.RetryInitialInterval.String()),
	)
}
