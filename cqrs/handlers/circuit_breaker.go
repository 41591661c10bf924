package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

const OrderCircuitBreaker = 50

// CircuitBreaker keeps one breaker per command type. Only SYSTEM and TIMEOUT
// failures count against a breaker; domain errors are regular answers.
type CircuitBreaker struct {
	settings gobreaker.Settings

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewCircuitBreaker uses settings as a template; Name is replaced by the
// command type. A zero ReadyToTrip trips after five consecutive failures.
func NewCircuitBreaker(settings gobreaker.Settings) *CircuitBreaker {
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = defaultCircuitBreakerSettings().ReadyToTrip
	}
	if settings.Timeout == 0 {
		settings.Timeout = defaultCircuitBreakerSettings().Timeout
	}

	settings.IsSuccessful = func(err error) bool {
		if err == nil {
			return true
		}

		return !result.IsKind(err, result.KindSystem) && !result.IsKind(err, result.KindTimeout)
	}

	return &CircuitBreaker{
		settings: settings,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (*CircuitBreaker) Order() int { return OrderCircuitBreaker }

// State reports the breaker state of commandType.
func (m *CircuitBreaker) State(commandType string) gobreaker.State {
	return m.breaker(commandType).State()
}

func (m *CircuitBreaker) Handle(ctx context.Context, env message.Envelope[any], next bus.Next) result.Result[any] {
	var res result.Result[any]

	_, err := m.breaker(env.Type).Execute(func() (any, error) {
		res = next(ctx, env)
		if res.IsErr() {
			return nil, res.Error()
		}

		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return result.Err[any](result.Wrap(result.KindSystem,
			fmt.Sprintf("circuit breaker open for command %s", env.Type), err))
	}

	return res
}

func (m *CircuitBreaker) breaker(commandType string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	cb, ok := m.breakers[commandType]
	if !ok {
		settings := m.settings
		settings.Name = commandType
		cb = gobreaker.NewCircuitBreaker(settings)
		m.breakers[commandType] = cb
	}

	return cb
}

func defaultCircuitBreakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "commandbus_handler",
		Timeout:     30 * time.Second,
		Interval:    0,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}
