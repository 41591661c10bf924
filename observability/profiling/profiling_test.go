package profiling_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/observability/profiling"
)

func TestHandlerServesIndex(t *testing.T) {
	rec := httptest.NewRecorder()
	profiling.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goroutine")
}

func TestRunDisabledByDefault(t *testing.T) {
	require.NoError(t, profiling.Run(context.Background(), logger.NewNop(), config.NewFromMap(nil)))
}
