package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/config"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadSettings(config.NewFromMap(map[string]any{"SERVICE_NAME": "accounts"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, s.brokers)
	assert.Equal(t, "accounts", s.consumerGroup)
	assert.Equal(t, "accounts", s.clientID)
	assert.True(t, s.otel)
	assert.Equal(t, sarama.OffsetNewest, s.initialOffset)
	assert.Equal(t, sarama.RangeBalanceStrategyName, s.rebalance.Name())
	assert.Equal(t, sarama.DefaultVersion, s.version)
	assert.Equal(t, sarama.CompressionSnappy, s.compression)
	assert.Equal(t, 10, s.retryMax)
	assert.True(t, s.idempotent)
	assert.Equal(t, 100*time.Millisecond, s.nackSleep)

	pub := s.publisherConfig()
	assert.Equal(t, 1, pub.OverwriteSaramaConfig.Net.MaxOpenRequests)
	assert.Equal(t, sarama.WaitForAll, pub.OverwriteSaramaConfig.Producer.RequiredAcks)

	sub := s.subscriberConfig()
	assert.Equal(t, "accounts", sub.ConsumerGroup)
	assert.Equal(t, sarama.OffsetNewest, sub.OverwriteSaramaConfig.Consumer.Offsets.Initial)
}

func TestLoadSettingsOverrides(t *testing.T) {
	s, err := loadSettings(config.NewFromMap(map[string]any{
		"SERVICE_NAME":                            "ignored",
		"WATERMILL_KAFKA_BROKERS":                 "broker1:9092, broker2:9092",
		"WATERMILL_KAFKA_CONSUMER_GROUP":          "billing",
		"WATERMILL_KAFKA_CLIENT_ID":               "billing-1",
		"WATERMILL_KAFKA_CONSUMER_INITIAL_OFFSET": "oldest",
		"WATERMILL_KAFKA_REBALANCE_STRATEGY":      "sticky",
		"WATERMILL_KAFKA_SARAMA_VERSION":          "2.5.0",
		"WATERMILL_KAFKA_PRODUCER_COMPRESSION":    "zstd",
		"WATERMILL_KAFKA_PRODUCER_IDEMPOTENT":     false,
		"WATERMILL_KAFKA_OTEL_ENABLED":            false,
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, s.brokers)
	assert.Equal(t, "billing", s.consumerGroup)
	assert.Equal(t, "billing-1", s.clientID)
	assert.False(t, s.otel)
	assert.Equal(t, sarama.OffsetOldest, s.initialOffset)
	assert.Equal(t, sarama.StickyBalanceStrategyName, s.rebalance.Name())
	assert.Equal(t, sarama.V2_5_0_0, s.version)
	assert.Equal(t, sarama.CompressionZSTD, s.compression)
	assert.False(t, s.idempotent)
}

func TestLoadSettingsRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "WATERMILL_KAFKA_BROKERS", value: " , "},
		{key: "WATERMILL_KAFKA_CONSUMER_INITIAL_OFFSET", value: "middle"},
		{key: "WATERMILL_KAFKA_REBALANCE_STRATEGY", value: "random"},
		{key: "WATERMILL_KAFKA_SARAMA_VERSION", value: "not-a-version"},
		{key: "WATERMILL_KAFKA_PRODUCER_COMPRESSION", value: "brotli"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			_, err := loadSettings(config.NewFromMap(map[string]any{tt.key: tt.value}))
			assert.Error(t, err)
		})
	}
}
