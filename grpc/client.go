package grpc

import (
	"fmt"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/retry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
)

const retryBackoff = 50 * time.Millisecond

// Client collects interceptors and dial options for one channel.
type Client struct {
	interceptorUnaryClientList  []grpc.UnaryClientInterceptor
	interceptorStreamClientList []grpc.StreamClientInterceptor
	optionsNewClient            []grpc.DialOption

	channel ChannelConfig
}

// NewClient opens a lazily connecting channel to addr tuned by channel.
func NewClient(addr string, channel ChannelConfig, options ...Option) (*grpc.ClientConn, error) {
	config := SetClientConfig(channel, options...)

	conn, err := grpc.NewClient(addr, config.optionsNewClient...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server %s: %w", addr, err)
	}

	return conn, nil
}

// SetClientConfig - set configuration
func SetClientConfig(channel ChannelConfig, options ...Option) *Client {
	config := &Client{
		channel: channel,
	}

	config.apply(options...)

	// retries run innermost so every attempt passes through the other interceptors once
	if channel.MaxRetries > 0 {
		config.interceptorUnaryClientList = append(config.interceptorUnaryClientList,
			retry.UnaryClientInterceptor(
				retry.WithMax(channel.MaxRetries),
				retry.WithCodes(codes.Unavailable),
				retry.WithBackoff(retry.BackoffExponential(retryBackoff)),
			),
		)
	}

	config.optionsNewClient = append(
		config.optionsNewClient,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(config.interceptorUnaryClientList...),
		grpc.WithChainStreamInterceptor(config.interceptorStreamClientList...),
	)

	if channel.KeepaliveTime > 0 {
		config.optionsNewClient = append(config.optionsNewClient, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                channel.KeepaliveTime,
			Timeout:             channel.KeepaliveTimeout,
			PermitWithoutStream: true,
		}))
	}

	callOptions := make([]grpc.CallOption, 0, 3)
	if channel.MaxMessageLength > 0 {
		callOptions = append(callOptions,
			grpc.MaxCallRecvMsgSize(channel.MaxMessageLength),
			grpc.MaxCallSendMsgSize(channel.MaxMessageLength),
		)
	}
	if channel.Compression == CompressionGzip {
		callOptions = append(callOptions, grpc.UseCompressor(gzip.Name))
	}
	if len(callOptions) > 0 {
		config.optionsNewClient = append(config.optionsNewClient, grpc.WithDefaultCallOptions(callOptions...))
	}

	return config
}

// GetOptions - return options for gRPC Client.
func (c *Client) GetOptions() []grpc.DialOption {
	return c.optionsNewClient
}
