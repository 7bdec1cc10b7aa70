package mqx

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"policy-management-service/shared/config"
)

// Message is the broker-neutral view of one consumed record. Partition and
// Offset identify where the record came from so a dead-letter route can be
// correlated back to its source.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

type Producer struct {
	writer    *kafka.Writer
	dlqWriter *kafka.Writer
}

func NewProducer(cfg config.Config) (*Producer, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  maxInt(cfg.KafkaRetryMax, 1),
		BatchTimeout: time.Duration(cfg.KafkaWriteMS) * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.KafkaClientID,
		},
	}
	dlq := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Balancer:     pinnedPartitionBalancer{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		MaxAttempts:  maxInt(cfg.KafkaRetryMax, 1),
		BatchTimeout: time.Duration(cfg.KafkaWriteMS) * time.Millisecond,
		Transport: &kafka.Transport{
			ClientID: cfg.KafkaClientID,
		},
	}
	return &Producer{writer: w, dlqWriter: dlq}, nil
}

// Publish writes one record keyed for partition routing. All records with
// the same key land on the same partition and are observed in write order.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error {
	if p == nil || p.writer == nil {
		return errors.New("producer not initialized")
	}
	ctx, span := otel.Tracer("mqx").Start(ctx, "kafka.produce")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
	)
	defer span.End()
	return p.writer.WriteMessages(ctx, buildMessage(topic, -1, key, value, headers))
}

// PublishToPartition writes one record to an explicit partition, bypassing
// key hashing. Used by the dead-letter route to preserve the source
// partition number.
func (p *Producer) PublishToPartition(ctx context.Context, topic string, partition int, key []byte, value []byte, headers map[string]string) error {
	if p == nil || p.dlqWriter == nil {
		return errors.New("producer not initialized")
	}
	ctx, span := otel.Tracer("mqx").Start(ctx, "kafka.produce_partition")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", topic),
		attribute.Int("messaging.kafka.partition", partition),
	)
	defer span.End()
	return p.dlqWriter.WriteMessages(ctx, buildMessage(topic, partition, key, value, headers))
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	var err error
	if p.writer != nil {
		err = p.writer.Close()
	}
	if p.dlqWriter != nil {
		if cerr := p.dlqWriter.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func buildMessage(topic string, partition int, key []byte, value []byte, headers map[string]string) kafka.Message {
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	if partition >= 0 {
		msg.Partition = partition
	}
	if len(headers) > 0 {
		msg.Headers = make([]kafka.Header, 0, len(headers))
		for k, v := range headers {
			msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return msg
}

// pinnedPartitionBalancer routes each message to the partition carried on
// the message itself, falling back to partition 0 when the requested
// partition no longer exists.
type pinnedPartitionBalancer struct{}

func (pinnedPartitionBalancer) Balance(msg kafka.Message, partitions ...int) int {
	for _, p := range partitions {
		if p == msg.Partition {
			return p
		}
	}
	if len(partitions) > 0 {
		return partitions[0]
	}
	return 0
}

type ReaderSource struct {
	reader *kafka.Reader
}

func NewConsumer(cfg config.Config, topic string, groupID string) (*ReaderSource, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if groupID == "" {
		return nil, errors.New("consumer group id is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	return &ReaderSource{reader: reader}, nil
}

// Fetch blocks for the next record without committing its offset. The
// offset is only committed through Commit, after the handler succeeded or
// the record was parked on the dead-letter topic.
func (s *ReaderSource) Fetch(ctx context.Context) (Message, error) {
	if s == nil || s.reader == nil {
		return Message{}, errors.New("consumer not initialized")
	}
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
	}, nil
}

func (s *ReaderSource) Commit(ctx context.Context, msg Message) error {
	if s == nil || s.reader == nil {
		return errors.New("consumer not initialized")
	}
	return s.reader.CommitMessages(ctx, kafka.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

func (s *ReaderSource) Lag() int64 {
	if s == nil || s.reader == nil {
		return 0
	}
	return s.reader.Stats().Lag
}

func (s *ReaderSource) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}

func maxInt(a int, b int) int {
	if a > b {
		return a
	}
	return b
}
