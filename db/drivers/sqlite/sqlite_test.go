package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"

	"github.com/shortlink-org/commandbus/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSQLite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.NewFromMap(map[string]any{
		"STORE_SQLITE_PATH": filepath.Join(t.TempDir(), "test.db"),
	})
	store := New(tracenoop.NewTracerProvider(), noop.NewMeterProvider(), cfg)

	require.NoError(t, store.Init(ctx))

	conn, ok := store.GetConn().(*sql.DB)
	require.True(t, ok)

	var one int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	require.Equal(t, 1, one)
}
