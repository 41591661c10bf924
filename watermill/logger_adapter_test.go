package watermill

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/logger"
)

func TestLoggerAdapterMergesFields(t *testing.T) {
	var buf bytes.Buffer

	log, err := logger.New(logger.Configuration{Writer: &buf, Level: logger.DEBUG_LEVEL})
	require.NoError(t, err)

	adapter := NewWatermillLogger(log).With(watermill.LogFields{"topic": "commandbus_command_account_create"})
	adapter.Error("handler failed", errors.New("boom"), watermill.LogFields{"attempt": 2})
	adapter.Trace("trace line", nil)

	out := buf.String()
	assert.Contains(t, out, "handler failed")
	assert.Contains(t, out, "commandbus_command_account_create")
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, "trace line")
}

func TestLoggerAdapterNil(t *testing.T) {
	assert.IsType(t, watermill.NopLogger{}, NewWatermillLogger(nil))
}
