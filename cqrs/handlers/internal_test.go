package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleCommand struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type sampleInterface interface {
	Do()
}

type sampleImpl struct{}

func (sampleImpl) Do() {}

func TestTypedPayloadValuesAndPointers(t *testing.T) {
	t.Run("value is passed through", func(t *testing.T) {
		got, err := typedPayload[sampleCommand](sampleCommand{Name: "a"})
		require.NoError(t, err)
		assert.Equal(t, "a", got.Name)
	})

	t.Run("pointer is dereferenced", func(t *testing.T) {
		got, err := typedPayload[sampleCommand](&sampleCommand{Name: "b"})
		require.NoError(t, err)
		assert.Equal(t, "b", got.Name)
	})

	t.Run("pointer handler gets a pointer", func(t *testing.T) {
		got, err := typedPayload[*sampleCommand](map[string]any{"name": "c"})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "c", got.Name)
	})

	t.Run("nil payload is the zero value", func(t *testing.T) {
		got, err := typedPayload[sampleCommand](nil)
		require.NoError(t, err)
		assert.Equal(t, sampleCommand{}, got)
	})
}

func TestTypedPayloadFromWireJSON(t *testing.T) {
	got, err := typedPayload[sampleCommand](map[string]any{"name": "wire", "count": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, sampleCommand{Name: "wire", Count: 3}, got)
}

func TestTypedPayloadInterfaces(t *testing.T) {
	_, err := typedPayload[sampleInterface](sampleImpl{})
	require.NoError(t, err)

	_, err = typedPayload[sampleInterface](sampleCommand{})
	require.ErrorIs(t, err, errHandlerTypeMismatch)
}

func TestTypedPayloadMismatch(t *testing.T) {
	_, err := typedPayload[sampleCommand](map[string]any{"count": "not a number"})
	require.ErrorIs(t, err, errHandlerTypeMismatch)
}
