package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel/codes"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/handlers"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/saga"
)

// Steps recorded in CurrentStep.
const (
	stepAccount = "account"
	stepProduct = "product"
	stepDone    = "done"
)

// Data is the saga payload.
type Data struct {
	AccountID string `json:"accountId,omitempty"`
	// Products maps SKU to the created product id.
	Products map[string]string `json:"products,omitempty"`
	// Created lists SKUs in creation order.
	Created []string `json:"created,omitempty"`
}

// Workflow implements account.createWithProducts.
type Workflow struct {
	engine   *saga.Engine[Data]
	resolver *bus.Resolver
	cfg      Config
	log      logger.Logger
}

// New builds the workflow over repo. Sub-commands go through resolver using
// the transports named in cfg.
func New(repo saga.Repository, resolver *bus.Resolver, cfg Config, log logger.Logger, opts ...saga.Option) (*Workflow, error) {
	if resolver == nil {
		return nil, errors.New("account: resolver is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	if cfg.SagaTTL > 0 {
		opts = append([]saga.Option{saga.WithTTL(cfg.SagaTTL)}, opts...)
	}
	opts = append(opts, saga.WithLogger(log))

	engine, err := saga.NewEngine[Data](SagaType, repo, opts...)
	if err != nil {
		return nil, err
	}

	return &Workflow{
		engine:   engine,
		resolver: resolver,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Register binds the workflow to CommandCreateWithProducts on registry.
func (w *Workflow) Register(registry *bus.Registry) error {
	return handlers.Register[CreateWithProducts, Created](registry, CommandCreateWithProducts, w)
}

// Handle runs or resumes the saga identified by cmd.SagaID.
func (w *Workflow) Handle(ctx context.Context, cmd CreateWithProducts) (Created, error) {
	ctx, span := w.engine.StartSpan(ctx, cmd.SagaID)
	defer span.End()

	loaded := w.engine.LoadOrStart(ctx, cmd.SagaID, Data{})
	if loaded.IsErr() {
		return Created{}, loaded.Error()
	}
	state := loaded.Value()

	// an interrupted compensation is finished before the outcome is replayed
	if w.engine.PendingCompensation(state) {
		return Created{}, w.compensate(ctx, state, state.Error)
	}

	if w.engine.IsFinished(state) {
		return finished(state)
	}

	running := w.engine.UpdateState(ctx, state, saga.Update[Data]{
		Status:      saga.StatusRunning,
		CurrentStep: stepAccount,
	})
	if running.IsErr() {
		return Created{}, running.Error()
	}
	state = running.Value()

	if state.Data.AccountID == "" {
		var accountID string

		err := saga.RunStep(ctx, stepAccount, func(ctx context.Context) error {
			out, errCreate := invoke[AccountCreated](ctx, w, w.cfg.AccountTransport, CommandCreateAccount, cmd.Account)
			if errCreate != nil {
				return errCreate
			}
			accountID = out.ID

			return nil
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			w.fail(ctx, state, result.From(err))

			return Created{}, result.From(err)
		}

		updated := w.engine.UpdateState(ctx, state, saga.Update[Data]{
			Patch: map[string]any{"accountId": accountID},
		})
		if updated.IsErr() {
			return Created{}, updated.Error()
		}
		state = updated.Value()
	}

	for _, product := range cmd.Products {
		if _, done := state.Data.Products[product.SKU]; done {
			continue
		}

		product.AccountID = state.Data.AccountID

		var productID string
		err := saga.RunStep(ctx, stepProduct+" "+product.SKU, func(ctx context.Context) error {
			out, errCreate := invoke[ProductCreated](ctx, w, w.cfg.ProductTransport, CommandCreateProduct, product)
			if errCreate != nil {
				return errCreate
			}
			productID = out.ID

			return nil
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Created{}, w.compensate(ctx, state, result.From(err))
		}

		sku := product.SKU
		updated := w.engine.UpdateState(ctx, state, saga.Update[Data]{
			CurrentStep: stepProduct,
			Apply: func(d Data) Data {
				d.Products = maps.Clone(d.Products)
				if d.Products == nil {
					d.Products = map[string]string{}
				}
				d.Products[sku] = productID
				d.Created = append(append([]string(nil), d.Created...), sku)

				return d
			},
		})
		if updated.IsErr() {
			return Created{}, updated.Error()
		}
		state = updated.Value()
	}

	completed := w.engine.UpdateState(ctx, state, saga.Update[Data]{
		Status:      saga.StatusCompleted,
		CurrentStep: stepDone,
	})
	if completed.IsErr() {
		return Created{}, completed.Error()
	}

	return created(completed.Value().Data), nil
}

// compensate deletes what the saga created and returns reason. A failed
// undo is returned instead, as its own error. When only the saga bookkeeping
// fails, the saga stays pending and the next delivery finishes it.
func (w *Workflow) compensate(ctx context.Context, state *saga.State[Data], reason *result.Error) error {
	undo := make([]saga.Undo, 0, len(state.Data.Created)+1)

	accountID := state.Data.AccountID
	undo = append(undo, saga.NewUndo(stepAccount, func(ctx context.Context) error {
		return undone(invoke[struct{}](ctx, w, w.cfg.AccountTransport, CommandDeleteAccount, DeleteAccount{ID: accountID}))
	}))

	for _, sku := range state.Data.Created {
		productID := state.Data.Products[sku]
		undo = append(undo, saga.NewUndo(stepProduct+" "+sku, func(ctx context.Context) error {
			return undone(invoke[struct{}](ctx, w, w.cfg.ProductTransport, CommandDeleteProduct, DeleteProduct{ID: productID}))
		}))
	}

	if reason == nil {
		reason = result.System("account saga failed")
	}

	compensated := w.engine.Compensate(ctx, state, reason, undo...)
	if compensated.IsErr() {
		err := compensated.Error()

		if !errors.Is(err, saga.ErrCompensationFailed) {
			w.log.WarnWithContext(ctx, "account saga compensation is pending",
				slog.String("saga_id", state.ID),
				slog.String("reason", reason.Message),
				slog.String("error", err.Message),
			)

			return reason
		}

		w.log.ErrorWithContext(ctx, "account saga compensation failed",
			slog.String("saga_id", state.ID),
			slog.String("reason", reason.Message),
			slog.String("error", err.Message),
		)

		return err
	}

	return reason
}

// undone treats a resource that is already gone as deleted, so a resumed
// compensation can repeat an undo whose progress was not saved.
func undone(_ struct{}, err *result.Error) error {
	if err == nil || err.Kind == result.KindNotFound {
		return nil
	}

	return err
}

func (w *Workflow) fail(ctx context.Context, state *saga.State[Data], reason *result.Error) {
	failed := w.engine.UpdateState(ctx, state, saga.Update[Data]{
		Status: saga.StatusFailed,
		Error:  reason,
	})
	if failed.IsErr() {
		w.log.WarnWithContext(ctx, "account saga failure was not recorded",
			slog.String("saga_id", state.ID),
			slog.String("error", failed.Error().Message),
		)
	}
}

// finished replays the outcome of a terminal saga.
func finished(state *saga.State[Data]) (Created, error) {
	if state.Status == saga.StatusCompleted {
		return created(state.Data), nil
	}

	if state.Error != nil {
		return Created{}, state.Error
	}

	return Created{}, result.Newf(result.KindSystem, "saga %s finished with status %s", state.ID, state.Status)
}

func created(d Data) Created {
	ids := make([]string, 0, len(d.Created))
	for _, sku := range d.Created {
		ids = append(ids, d.Products[sku])
	}

	return Created{AccountID: d.AccountID, ProductIDs: ids}
}

// invoke sends one sub-command through the configured transport. The caller
// meta travels along with a fresh command id.
func invoke[R any](ctx context.Context, w *Workflow, transport bus.Transport, commandType string, payload any) (R, *result.Error) {
	var zero R

	meta, _ := message.MetaFromContext(ctx)
	meta.CommandID = ""

	var opts []bus.InvokeOption
	if w.cfg.Timeout > 0 {
		opts = append(opts, bus.WithTimeout(w.cfg.Timeout))
	}

	res := w.resolver.Invoke(ctx, transport, message.New(commandType, payload, &meta), opts...)
	if res.IsErr() {
		return zero, res.Error()
	}

	out, err := bus.Convert[R](res.Value())
	if err != nil {
		return zero, result.Wrap(result.KindSystem,
			fmt.Sprintf("unexpected response for command %s: %v", commandType, err), err)
	}

	return out, nil
}
