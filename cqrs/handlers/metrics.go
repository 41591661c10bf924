package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

const OrderMetrics = 40

// Metrics counts commands by type and outcome and observes their latency.
type Metrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers collectors on reg. Already registered collectors are
// reused, so several buses may share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, errNilRegisterer
	}

	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commandbus",
		Name:      "commands_total",
		Help:      "Commands handled, by type and result kind.",
	}, []string{"type", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "commandbus",
		Name:      "command_duration_seconds",
		Help:      "Command pipeline latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})

	var err error
	if total, err = register(reg, total); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}

	return &Metrics{total: total, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return c, err
	}

	return c, nil
}

func (*Metrics) Order() int { return OrderMetrics }

func (m *Metrics) Handle(ctx context.Context, env message.Envelope[any], next bus.Next) result.Result[any] {
	start := time.Now()
	res := next(ctx, env)

	outcome := "ok"
	if res.IsErr() {
		outcome = string(res.Error().Kind)
	}

	m.total.WithLabelValues(env.Type, outcome).Inc()

	observer := m.duration.WithLabelValues(env.Type)
	if exemplar := exemplarFromContext(ctx); exemplar != nil {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(time.Since(start).Seconds(), exemplar)
			return res
		}
	}
	observer.Observe(time.Since(start).Seconds())

	return res
}

func exemplarFromContext(ctx context.Context) prometheus.Labels {
	span := trace.SpanContextFromContext(ctx)
	if span.IsSampled() && span.HasTraceID() {
		return prometheus.Labels{"trace_id": span.TraceID().String()}
	}

	return nil
}
