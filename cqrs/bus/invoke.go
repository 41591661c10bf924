package bus

import (
	"context"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// Invoke calls b and converts the value into R. Values that crossed a wire
// arrive as generic JSON (maps, slices, float64) and are re-decoded into R.
func Invoke[R any](ctx context.Context, b CommandBus, env message.Envelope[any], opts ...InvokeOption) result.Result[R] {
	res := b.Invoke(ctx, env, opts...)
	if res.IsErr() {
		return result.Err[R](res.Error())
	}

	value, err := Convert[R](res.Value())
	if err != nil {
		return result.Err[R](result.Wrap(result.KindSystem,
			fmt.Sprintf("unexpected response for command %s: %v", env.Type, err), err))
	}

	return result.Ok(value, res.Messages()...)
}

// Convert turns v into R, by type assertion when possible and via JSON otherwise.
func Convert[R any](v any) (R, error) {
	var out R

	if v == nil {
		return out, nil
	}

	if typed, ok := v.(R); ok {
		return typed, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode %T: %w", v, err)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode into %T: %w", out, err)
	}

	return out, nil
}
