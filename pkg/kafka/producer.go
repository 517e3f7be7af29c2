package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/bynight/pkg/metrics"
	"github.com/Ramsey-B/bynight/pkg/models"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer publishes import outcomes
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Publish writes one message per outcome, keyed by external id.
func (p *Producer) Publish(ctx context.Context, outcomes []models.Outcome) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	if len(outcomes) == 0 {
		return nil
	}

	traceHeaders := tracing.InjectHeaders(ctx)
	msgs := make([]kafka.Message, 0, len(outcomes))
	for _, outcome := range outcomes {
		data, err := json.Marshal(outcome)
		if err != nil {
			return err
		}

		key := outcome.ExternalID
		if key == "" {
			key = outcome.Source
		}

		headers := []kafka.Header{
			{Key: SourceHeader, Value: []byte(outcome.Source)},
			{Key: StatusHeader, Value: []byte(outcome.Status)},
		}
		for k, v := range traceHeaders {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}

		msgs = append(msgs, kafka.Message{
			Key:     []byte(key),
			Value:   data,
			Headers: headers,
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "failed")
		p.logger.WithContext(ctx).WithError(err).WithField("outcomes", len(outcomes)).Error("Failed to publish outcomes")
		return err
	}

	metrics.KafkaMessagesPublished.WithLabelValues(p.topic, "succeeded").Add(float64(len(msgs)))
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":    p.topic,
		"outcomes": len(outcomes),
	}).Debug("Published outcomes")
	return nil
}
