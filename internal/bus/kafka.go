package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/reelquery/reelquery/internal/pkg/errors"
	"github.com/reelquery/reelquery/internal/pkg/logger"
)

// KafkaBus is a Kafka-based event bus. Events are published synchronously,
// keyed by correlation id so one query's events stay on one partition.
type KafkaBus struct {
	config   KafkaConfig
	producer sarama.SyncProducer
	client   sarama.Client
	log      *logger.Logger

	mu       sync.RWMutex
	consumer sarama.ConsumerGroup
	handlers map[string][]Handler
	closed   bool

	consumerWg   sync.WaitGroup
	consumerStop chan struct{}
}

// KafkaConfig holds Kafka connection settings.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
	Version       string // e.g. "2.8.0"
	Timeout       time.Duration
}

func (cfg *KafkaConfig) normalize() error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.CodeValidation, "kafka brokers cannot be empty")
	}
	if cfg.ConsumerGroup == "" {
		return errors.New(errors.CodeValidation, "kafka consumer group cannot be empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "reelquery"
	}
	if cfg.Version == "" {
		cfg.Version = "2.8.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return nil
}

func saramaConfig(cfg KafkaConfig) (*sarama.Config, error) {
	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "invalid kafka version", err)
	}

	sc := sarama.NewConfig()
	sc.Version = version
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Retry.Max = 3
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	sc.Net.DialTimeout = cfg.Timeout
	sc.Net.ReadTimeout = cfg.Timeout
	sc.Net.WriteTimeout = cfg.Timeout
	return sc, nil
}

// NewKafkaBus connects to the brokers and creates a producer. The consumer
// group is created on the first Subscribe.
func NewKafkaBus(cfg KafkaConfig, log *logger.Logger) (*KafkaBus, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	sc, err := saramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka client", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}

	b := newKafkaBus(cfg, producer, log)
	b.client = client
	return b, nil
}

func newKafkaBus(cfg KafkaConfig, producer sarama.SyncProducer, log *logger.Logger) *KafkaBus {
	if log == nil {
		log = logger.Discard()
	}
	return &KafkaBus{
		config:       cfg,
		producer:     producer,
		log:          log,
		handlers:     make(map[string][]Handler),
		consumerStop: make(chan struct{}),
	}
}

// Publish publishes an event to a Kafka topic.
func (b *KafkaBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	key := event.CorrelationID
	if key == "" {
		key = event.ID
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish to kafka", err)
	}
	return nil
}

// Subscribe registers a handler for events on a Kafka topic.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	if b.consumer == nil {
		if b.client == nil {
			return errors.New(errors.CodeUnavailable, "kafka client not connected")
		}
		consumer, err := sarama.NewConsumerGroupFromClient(b.config.ConsumerGroup, b.client)
		if err != nil {
			return errors.Wrap(errors.CodeUnavailable, "failed to create kafka consumer group", err)
		}
		b.consumer = consumer
	}

	isNewTopic := len(b.handlers[topic]) == 0
	b.handlers[topic] = append(b.handlers[topic], handler)

	if isNewTopic {
		b.consumerWg.Add(1)
		go b.consumeTopic(topic)
	}

	return nil
}

func (b *KafkaBus) consumeTopic(topic string) {
	defer b.consumerWg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-b.consumerStop
		cancel()
	}()

	handler := &consumerGroupHandler{bus: b, topic: topic}
	for {
		// Consume blocks until a rebalance or until ctx is cancelled.
		if err := b.consumer.Consume(ctx, []string{topic}, handler); err != nil {
			b.log.Warn("Kafka consumer error", "topic", topic, "error", err)
		}

		select {
		case <-b.consumerStop:
			return
		case <-time.After(time.Second):
		}
	}
}

// Close closes the Kafka bus and releases resources.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.consumerStop)
	b.consumerWg.Wait()

	var errs []string
	if b.consumer != nil {
		if err := b.consumer.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close consumer: %v", err))
		}
	}
	if err := b.producer.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("close producer: %v", err))
	}
	if b.client != nil && !b.client.Closed() {
		if err := b.client.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close client: %v", err))
		}
	}

	if len(errs) > 0 {
		return errors.New(errors.CodeInternal, "errors during close: "+strings.Join(errs, "; "))
	}
	return nil
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler.
type consumerGroupHandler struct {
	bus   *KafkaBus
	topic string
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages from a Kafka partition.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.dispatch(session.Context(), msg.Value)
			session.MarkMessage(msg, "")
		}
	}
}

func (h *consumerGroupHandler) dispatch(ctx context.Context, value []byte) {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.bus.log.Warn("Dropping malformed kafka event", "topic", h.topic, "error", err)
		return
	}

	h.bus.mu.RLock()
	handlers := h.bus.handlers[h.topic]
	h.bus.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			h.bus.log.Warn("Bus handler failed", "topic", h.topic, "event", event.ID, "error", err)
		}
	}
}

// ParseKafkaBrokers parses a comma-separated string of Kafka brokers.
func ParseKafkaBrokers(brokersStr string) []string {
	var brokers []string
	for _, b := range strings.Split(brokersStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
