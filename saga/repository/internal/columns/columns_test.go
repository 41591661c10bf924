package columns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/saga"
)

func TestEncodeDecode(t *testing.T) {
	rec := saga.Record{
		Data:     []byte(`{"accountId":"a-1"}`),
		TempData: map[string]any{"step": "x"},
		Error:    result.New("PRODUCT_REJECTED", "sku taken"),
	}

	enc, err := Encode(rec)
	require.NoError(t, err)

	var got saga.Record
	require.NoError(t, Decode(&got, enc.Data, enc.TempData, enc.Error))

	assert.JSONEq(t, `{"accountId":"a-1"}`, string(got.Data))
	assert.Equal(t, "x", got.TempData["step"])
	require.NotNil(t, got.Error)
	assert.Equal(t, result.Kind("PRODUCT_REJECTED"), got.Error.Kind)
	assert.Equal(t, "sku taken", got.Error.Message)
}

func TestEncodeEmptyRecord(t *testing.T) {
	enc, err := Encode(saga.Record{})
	require.NoError(t, err)

	assert.Equal(t, "null", string(enc.Data))
	assert.Equal(t, "{}", string(enc.TempData))
	assert.Nil(t, enc.Error)

	var got saga.Record
	require.NoError(t, Decode(&got, enc.Data, enc.TempData, nil))
	assert.Nil(t, got.Error)
	assert.Empty(t, got.TempData)
}
