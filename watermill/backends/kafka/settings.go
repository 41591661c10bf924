package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"

	"github.com/shortlink-org/commandbus/config"
)

type settings struct {
	brokers        []string
	consumerGroup  string
	clientID       string
	otel           bool
	initialOffset  int64
	rebalance      sarama.BalanceStrategy
	version        sarama.KafkaVersion
	compression    sarama.CompressionCodec
	retryMax       int
	idempotent     bool
	nackSleep      time.Duration
	reconnectSleep time.Duration
}

func (s *settings) publisherConfig() wmkafka.PublisherConfig {
	conf := wmkafka.DefaultSaramaSyncPublisherConfig()
	conf.ClientID = s.clientID
	conf.Version = s.version
	conf.Producer.Retry.Max = s.retryMax
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Idempotent = s.idempotent
	conf.Producer.Compression = s.compression
	if s.idempotent {
		conf.Net.MaxOpenRequests = 1
	}

	return wmkafka.PublisherConfig{
		Brokers:               s.brokers,
		Marshaler:             wmkafka.DefaultMarshaler{},
		OverwriteSaramaConfig: conf,
		OTELEnabled:           s.otel,
	}
}

func (s *settings) subscriberConfig() wmkafka.SubscriberConfig {
	conf := wmkafka.DefaultSaramaSubscriberConfig()
	conf.ClientID = s.clientID
	conf.Version = s.version
	conf.Consumer.Offsets.Initial = s.initialOffset
	conf.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{s.rebalance}

	return wmkafka.SubscriberConfig{
		Brokers:               s.brokers,
		Unmarshaler:           wmkafka.DefaultMarshaler{},
		OverwriteSaramaConfig: conf,
		ConsumerGroup:         s.consumerGroup,
		NackResendSleep:       s.nackSleep,
		ReconnectRetrySleep:   s.reconnectSleep,
		OTELEnabled:           s.otel,
	}
}

func loadSettings(cfg *config.Config) (*settings, error) {
	cfg.SetDefault("WATERMILL_KAFKA_BROKERS", "localhost:9092")
	cfg.SetDefault("WATERMILL_KAFKA_CONSUMER_INITIAL_OFFSET", "latest")
	cfg.SetDefault("WATERMILL_KAFKA_REBALANCE_STRATEGY", "range")
	cfg.SetDefault("WATERMILL_KAFKA_SARAMA_VERSION", "default")
	cfg.SetDefault("WATERMILL_KAFKA_PRODUCER_COMPRESSION", "snappy")
	cfg.SetDefault("WATERMILL_KAFKA_PRODUCER_RETRY_MAX", 10)
	cfg.SetDefault("WATERMILL_KAFKA_PRODUCER_IDEMPOTENT", true)
	cfg.SetDefault("WATERMILL_KAFKA_OTEL_ENABLED", true)
	cfg.SetDefault("WATERMILL_KAFKA_SUBSCRIBER_NACK_SLEEP", 100*time.Millisecond)
	cfg.SetDefault("WATERMILL_KAFKA_SUBSCRIBER_RECONNECT_SLEEP", time.Second)

	brokers := splitBrokers(cfg.GetString("WATERMILL_KAFKA_BROKERS"))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: WATERMILL_KAFKA_BROKERS must not be empty")
	}

	// command topics are shared by the replicas of one service
	group := firstNonEmpty(cfg.GetString("WATERMILL_KAFKA_CONSUMER_GROUP"), cfg.GetString("SERVICE_NAME"), "commandbus")

	offset, err := parseInitialOffset(cfg.GetString("WATERMILL_KAFKA_CONSUMER_INITIAL_OFFSET"))
	if err != nil {
		return nil, err
	}

	rebalance, err := parseRebalanceStrategy(cfg.GetString("WATERMILL_KAFKA_REBALANCE_STRATEGY"))
	if err != nil {
		return nil, err
	}

	version, err := parseVersion(cfg.GetString("WATERMILL_KAFKA_SARAMA_VERSION"))
	if err != nil {
		return nil, err
	}

	compression, err := parseCompression(cfg.GetString("WATERMILL_KAFKA_PRODUCER_COMPRESSION"))
	if err != nil {
		return nil, err
	}

	return &settings{
		brokers:        brokers,
		consumerGroup:  group,
		clientID:       firstNonEmpty(cfg.GetString("WATERMILL_KAFKA_CLIENT_ID"), group),
		otel:           cfg.GetBool("WATERMILL_KAFKA_OTEL_ENABLED"),
		initialOffset:  offset,
		rebalance:      rebalance,
		version:        version,
		compression:    compression,
		retryMax:       cfg.GetInt("WATERMILL_KAFKA_PRODUCER_RETRY_MAX"),
		idempotent:     cfg.GetBool("WATERMILL_KAFKA_PRODUCER_IDEMPOTENT"),
		nackSleep:      cfg.GetDuration("WATERMILL_KAFKA_SUBSCRIBER_NACK_SLEEP"),
		reconnectSleep: cfg.GetDuration("WATERMILL_KAFKA_SUBSCRIBER_RECONNECT_SLEEP"),
	}, nil
}

func splitBrokers(raw string) []string {
	var out []string

	for _, broker := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		if broker = strings.TrimSpace(broker); broker != "" {
			out = append(out, broker)
		}
	}

	return out
}

func parseInitialOffset(raw string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "latest", "newest":
		return sarama.OffsetNewest, nil
	case "oldest", "earliest":
		return sarama.OffsetOldest, nil
	default:
		return 0, fmt.Errorf("kafka: unsupported WATERMILL_KAFKA_CONSUMER_INITIAL_OFFSET %q", raw)
	}
}

func parseRebalanceStrategy(raw string) (sarama.BalanceStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "range":
		return sarama.NewBalanceStrategyRange(), nil
	case "roundrobin", "round_robin":
		return sarama.NewBalanceStrategyRoundRobin(), nil
	case "sticky":
		return sarama.NewBalanceStrategySticky(), nil
	default:
		return nil, fmt.Errorf("kafka: unsupported WATERMILL_KAFKA_REBALANCE_STRATEGY %q", raw)
	}
}

func parseVersion(raw string) (sarama.KafkaVersion, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default":
		return sarama.DefaultVersion, nil
	case "max":
		return sarama.MaxVersion, nil
	}

	version, err := sarama.ParseKafkaVersion(raw)
	if err != nil {
		return sarama.KafkaVersion{}, fmt.Errorf("kafka: invalid WATERMILL_KAFKA_SARAMA_VERSION: %w", err)
	}

	return version, nil
}

func parseCompression(raw string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return sarama.CompressionNone, nil
	case "gzip":
		return sarama.CompressionGZIP, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("kafka: unsupported WATERMILL_KAFKA_PRODUCER_COMPRESSION %q", raw)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}
