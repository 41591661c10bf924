// Package gochannel is the in-process pub/sub backend. Messages live in
// memory, so publisher and subscribers must share the process.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	wmgochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/shortlink-org/commandbus/config"
)

// Backend implements watermill.Backend on one GoChannel.
type Backend struct {
	pubsub *wmgochannel.GoChannel
}

// New builds the backend. WATERMILL_GOCHANNEL_BUFFER sizes the output
// channel of every subscription.
func New(cfg *config.Config, logger watermill.LoggerAdapter) *Backend {
	cfg.SetDefault("WATERMILL_GOCHANNEL_BUFFER", 64) // buffered messages per subscriber

	return &Backend{
		pubsub: wmgochannel.NewGoChannel(wmgochannel.Config{
			OutputChannelBuffer: cfg.GetInt64("WATERMILL_GOCHANNEL_BUFFER"),
		}, logger),
	}
}

func (b *Backend) Publisher() message.Publisher {
	return b.pubsub
}

func (b *Backend) Subscriber() message.Subscriber {
	return b.pubsub
}

func (b *Backend) Close() error {
	return b.pubsub.Close()
}
