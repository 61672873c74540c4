package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/stockcore/pkg/config"
	"github.com/angelmondragon/stockcore/pkg/outbox/registry"
)

// pubsubSink publishes through Google Cloud Pub/Sub, one publisher per topic.
type pubsubSink struct {
	client pubsubClient

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

type pubsubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

func newPubSubSink(client pubsubClient) *pubsubSink {
	return &pubsubSink{client: client, publishers: map[string]*gcppubsub.Publisher{}}
}

func (s *pubsubSink) Name() string { return config.PublisherBackendPubSub }

func (s *pubsubSink) Ping(ctx context.Context) error { return s.client.Ping(ctx) }

func (s *pubsubSink) Publish(ctx context.Context, topic string, msg message) error {
	pub := s.publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{Data: msg.Data, Attributes: msg.Attributes})
	_, err := result.Get(ctx)
	return err
}

func (s *pubsubSink) publisher(topic string) *gcppubsub.Publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.client.Publisher(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

// Close flushes and stops every topic publisher.
func (s *pubsubSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaSink writes to Kafka. The topic is set per message, so one writer
// serves every route.
type kafkaSink struct {
	writer  kafkaWriter
	brokers []string
	dial    func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

func newKafkaSink(cfg config.KafkaConfig) (*kafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	return &kafkaSink{writer: writer, brokers: cfg.Brokers, dial: kafka.DialContext}, nil
}

func (s *kafkaSink) Name() string { return config.PublisherBackendKafka }

func (s *kafkaSink) Ping(ctx context.Context) error {
	var errs []error
	for _, broker := range s.brokers {
		conn, err := s.dial(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		errs = append(errs, fmt.Errorf("%s: %w", broker, err))
	}
	return errors.Join(errs...)
}

func (s *kafkaSink) Publish(ctx context.Context, topic string, msg message) error {
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
	})
	if errors.Is(err, kafka.UnknownTopicOrPartition) {
		return registry.NewNonRetryableError(fmt.Errorf("kafka topic %s: %w", topic, err))
	}
	return err
}

func (s *kafkaSink) Close() error { return s.writer.Close() }
