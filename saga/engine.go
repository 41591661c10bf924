// Package saga coordinates multi-step workflows with durable, resumable state,
// optimistic locking and explicit compensation.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/cqrs/result"
)

const tracerName = "github.com/shortlink-org/commandbus/saga"

// Engine drives the lifecycle of one saga type with workflow data D.
// Workflows compose it; the transition rules are the same for all of them.
type Engine[D any] struct {
	sagaType string
	repo     Repository
	opts     options
	tracer   trace.Tracer
}

// NewEngine builds an engine for sagaType persisted in repo.
func NewEngine[D any](sagaType string, repo Repository, opts ...Option) (*Engine[D], error) {
	if sagaType == "" {
		return nil, errors.New("saga: type is required")
	}
	if repo == nil {
		return nil, errors.New("saga: repository is required")
	}

	o := options{
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	tp := o.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Engine[D]{
		sagaType: sagaType,
		repo:     repo,
		opts:     o,
		tracer:   tp.Tracer(tracerName),
	}, nil
}

// Type returns the saga type handled by the engine.
func (e *Engine[D]) Type() string {
	return e.sagaType
}

// StartSpan opens the span that RunStep and Compensate report their events to.
func (e *Engine[D]) StartSpan(ctx context.Context, sagaID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "saga "+e.sagaType, trace.WithAttributes(
		attribute.String("saga.type", e.sagaType),
		attribute.String("saga.id", sagaID),
	))
}

// LoadOrStart returns the stored saga unchanged, or creates it in NEW with
// initial as its data.
func (e *Engine[D]) LoadOrStart(ctx context.Context, sagaID string, initial D) result.Result[*State[D]] {
	if sagaID == "" {
		return result.Err[*State[D]](result.System("saga id is required"))
	}

	if loaded := e.load(ctx, sagaID); loaded.IsOk() || !errors.Is(loaded.Error(), ErrNotFound) {
		return loaded
	}

	now := e.opts.now().UTC()
	state := &State[D]{
		ID:        sagaID,
		Type:      e.sagaType,
		Status:    StatusNew,
		Data:      initial,
		TempData:  map[string]any{},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(e.opts.ttl),
		TTL:       e.opts.ttl,
	}

	rec, err := encodeState(state)
	if err != nil {
		return result.Fail[*State[D]](err)
	}

	created := e.repo.Create(ctx, rec)
	if created.IsErr() {
		// lost the creation race: the other writer's row wins
		if errors.Is(created.Error(), ErrAlreadyExists) {
			return e.load(ctx, sagaID)
		}

		return result.Err[*State[D]](created.Error())
	}

	e.debug(ctx, "saga started", state)

	return e.decode(created.Value())
}

// Update describes one state transition. Zero fields are left unchanged.
type Update[D any] struct {
	Status      Status
	CurrentStep string
	// Apply transforms the typed data before Patch is merged.
	Apply func(D) D
	// Patch is shallow-merged into the top-level JSON object of the data.
	Patch     map[string]any
	TempData  map[string]any
	Error     *result.Error
	ExpiresAt time.Time
}

// UpdateState applies u to a copy of s and saves it with s.Version as the
// expected version. s itself is never modified.
func (e *Engine[D]) UpdateState(ctx context.Context, s *State[D], u Update[D]) result.Result[*State[D]] {
	if s == nil {
		return result.Err[*State[D]](result.System("saga state is nil"))
	}

	if u.Status != "" && !s.Status.CanTransitionTo(u.Status) {
		return result.Err[*State[D]](result.Wrap(result.KindSystem,
			fmt.Sprintf("Saga %s/%s cannot move from %s to %s", s.Type, s.ID, s.Status, u.Status),
			ErrInvalidTransition))
	}

	next := *s
	next.TempData = maps.Clone(s.TempData)

	if u.Status != "" {
		next.Status = u.Status
	}
	if u.CurrentStep != "" {
		next.CurrentStep = u.CurrentStep
	}
	if u.Apply != nil {
		next.Data = u.Apply(next.Data)
	}
	if len(u.Patch) > 0 {
		data, err := mergeData(next.Data, u.Patch)
		if err != nil {
			return result.Fail[*State[D]](err)
		}
		next.Data = data
	}
	if len(u.TempData) > 0 {
		if next.TempData == nil {
			next.TempData = map[string]any{}
		}
		maps.Copy(next.TempData, u.TempData)
	}
	if u.Error != nil {
		next.Error = u.Error
	}
	if !u.ExpiresAt.IsZero() {
		next.ExpiresAt = u.ExpiresAt
	}

	next.UpdatedAt = e.opts.now().UTC()

	rec, err := encodeState(&next)
	if err != nil {
		return result.Fail[*State[D]](err)
	}

	saved := e.repo.Save(ctx, rec)
	if saved.IsErr() {
		return result.Err[*State[D]](saved.Error())
	}

	return e.decode(saved.Value())
}

// Compensate undoes the side effects of a failed saga. Before any undo runs
// the saga is saved as FAILED with reason and the TempCompensating marker, so
// an interrupted run is found again by PendingCompensation instead of being
// resumed forward.
//
// undo actions are given in the order their side effects were created and run
// in reverse. Each success is saved in TempCompensatedSteps and skipped by a
// later run. The first failing action stops the run, is recorded in TempData
// and returned as its own error wrapping ErrCompensationFailed. When all
// actions succeed the saga becomes COMPENSATED.
//
// The caller still owes its own caller the original failure: a successful
// compensation never turns a business failure into a success.
func (e *Engine[D]) Compensate(ctx context.Context, s *State[D], reason *result.Error, undo ...Undo) result.Result[*State[D]] {
	if s == nil {
		return result.Err[*State[D]](result.System("saga state is nil"))
	}
	if reason == nil {
		reason = s.Error
	}
	if reason == nil {
		reason = result.System("compensation requested")
	}

	marked := e.UpdateState(ctx, s, Update[D]{
		Status:   StatusFailed,
		Error:    reason,
		TempData: map[string]any{TempCompensating: true},
	})
	if marked.IsErr() {
		return marked
	}
	s = marked.Value()

	span := trace.SpanFromContext(ctx)
	done := compensatedSteps(s.TempData)

	for i := len(undo) - 1; i >= 0; i-- {
		step := undo[i]
		if slices.Contains(done, step.Name) {
			continue
		}

		if err := step.run(ctx); err != nil {
			compErr := result.Wrap(result.KindSystem,
				fmt.Sprintf("Compensation failed at step %s: %v", step.Name, unwrapMessage(err)),
				errors.Join(ErrCompensationFailed, err))

			span.SetStatus(codes.Error, compErr.Message)
			e.warn(ctx, "saga compensation failed", s,
				slog.String("step", step.Name),
				slog.String("error", compErr.Message),
			)

			recorded := e.UpdateState(ctx, s, Update[D]{
				TempData: map[string]any{
					TempCompensationError: compErr.Message,
					TempCompensationStep:  step.Name,
				},
			})
			if recorded.IsErr() {
				e.warn(ctx, "saga compensation failure was not recorded", s,
					slog.String("error", recorded.Error().Message))
			}

			return result.Err[*State[D]](compErr)
		}

		done = append(done, step.Name)

		progressed := e.UpdateState(ctx, s, Update[D]{
			TempData: map[string]any{TempCompensatedSteps: slices.Clone(done)},
		})
		if progressed.IsErr() {
			return progressed
		}
		s = progressed.Value()
	}

	compensated := e.UpdateState(ctx, s, Update[D]{
		Status:   StatusCompensated,
		TempData: map[string]any{TempCompensating: false},
	})
	if compensated.IsOk() {
		e.debug(ctx, "saga compensated", compensated.Value())
	}

	return compensated
}

// PendingCompensation reports whether s stopped between the start and the
// end of Compensate. Such a saga must be compensated again, never resumed.
func (e *Engine[D]) PendingCompensation(s *State[D]) bool {
	if s == nil || s.Status != StatusFailed {
		return false
	}

	pending, _ := s.TempData[TempCompensating].(bool)

	return pending
}

// IsFinished reports whether s reached a terminal status: COMPLETED, FAILED
// or COMPENSATED. Check PendingCompensation first: a FAILED saga may still owe
// undo actions.
func (e *Engine[D]) IsFinished(s *State[D]) bool {
	return s != nil && s.Status.IsTerminal()
}

func (e *Engine[D]) load(ctx context.Context, sagaID string) result.Result[*State[D]] {
	found := e.repo.FindBySagaID(ctx, e.sagaType, sagaID)
	if found.IsErr() {
		return result.Err[*State[D]](found.Error())
	}

	return e.decode(found.Value())
}

func (e *Engine[D]) decode(rec Record) result.Result[*State[D]] {
	state, err := decodeState[D](rec)
	if err != nil {
		return result.Fail[*State[D]](err)
	}

	return result.Ok(state)
}

func (e *Engine[D]) debug(ctx context.Context, msg string, s *State[D]) {
	if e.opts.log == nil {
		return
	}

	e.opts.log.DebugWithContext(ctx, msg,
		slog.String("saga_type", s.Type),
		slog.String("saga_id", s.ID),
		slog.String("status", s.Status.String()),
		slog.Int64("version", s.Version),
	)
}

func (e *Engine[D]) warn(ctx context.Context, msg string, s *State[D], attrs ...slog.Attr) {
	if e.opts.log == nil {
		return
	}

	fields := append([]slog.Attr{
		slog.String("saga_type", s.Type),
		slog.String("saga_id", s.ID),
	}, attrs...)

	e.opts.log.WarnWithContext(ctx, msg, fields...)
}

// compensatedSteps reads TempCompensatedSteps, which comes back from JSON
// stores as []any.
func compensatedSteps(temp map[string]any) []string {
	switch steps := temp[TempCompensatedSteps].(type) {
	case []string:
		return slices.Clone(steps)
	case []any:
		out := make([]string, 0, len(steps))
		for _, step := range steps {
			if name, ok := step.(string); ok {
				out = append(out, name)
			}
		}

		return out
	default:
		return nil
	}
}

// unwrapMessage strips the "compensation step <name>: " prefix added by Undo.
func unwrapMessage(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}

	return err.Error()
}
