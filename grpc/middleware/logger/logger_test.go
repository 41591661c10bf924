package grpc_logger_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/shortlink-org/commandbus/cqrs/message"
	grpc_logger "github.com/shortlink-org/commandbus/grpc/middleware/logger"
	"github.com/shortlink-org/commandbus/grpc/schema"
	"github.com/shortlink-org/commandbus/logger"
)

func newLogger(t *testing.T) (logger.Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	log, err := logger.New(logger.Configuration{Writer: &buf, Level: logger.DEBUG_LEVEL})
	require.NoError(t, err)

	return log, &buf
}

func TestCommandType(t *testing.T) {
	req := schema.MustLoad().EncodeRequest(schema.Request{Type: "account.create"})

	assert.Equal(t, "account.create", grpc_logger.CommandType(req))
	assert.Empty(t, grpc_logger.CommandType(wrapperspb.String("x")))
	assert.Empty(t, grpc_logger.CommandType("not a proto"))
}

func TestUnaryServerInterceptorLogsFailures(t *testing.T) {
	log, buf := newLogger(t)
	interceptor := grpc_logger.UnaryServerInterceptor(log)
	info := &grpc.UnaryServerInfo{FullMethod: schema.FullMethod}
	req := schema.MustLoad().EncodeRequest(schema.Request{Type: "account.create"})

	_, err := interceptor(context.Background(), req, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	ctx := message.ContextWithMeta(context.Background(), message.Meta{CorrelationID: "corr-1"})
	_, err = interceptor(ctx, req, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Unavailable, "store is down")
	})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"command_type":"account.create"`)
	assert.Contains(t, out, `"grpc.method":"Invoke"`)
	assert.Contains(t, out, "corr-1")
}
