package httpserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/config"
	httpserver "github.com/shortlink-org/commandbus/http/server"
	"github.com/shortlink-org/commandbus/logger"
)

func TestNewAppliesTimeouts(t *testing.T) {
	cfg := config.NewFromMap(map[string]any{"HTTP_SERVER_READ_TIMEOUT": "3s"})

	srv := httpserver.New(context.Background(), http.NotFoundHandler(),
		httpserver.Config{Port: 9090, Timeout: time.Second}, cfg)

	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, 3*time.Second, srv.ReadTimeout)
	assert.Equal(t, 6*time.Second, srv.WriteTimeout)
	assert.Equal(t, 2*time.Second, srv.ReadHeaderTimeout)
}

func TestHandlerTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	srv := httpserver.New(context.Background(), slow,
		httpserver.Config{Timeout: 20 * time.Millisecond}, config.NewFromMap(nil))

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, httpserver.TimeoutMessage, rec.Body.String())
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.NewFromMap(nil)
	srv := httpserver.New(context.Background(), http.NotFoundHandler(), httpserver.Config{Port: 0}, cfg)
	srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- httpserver.Run(ctx, logger.NewNop(), srv, cfg)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
