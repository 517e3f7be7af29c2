// Package amqp carries import batches in from RabbitMQ.
package amqp

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Ramsey-B/bynight/pkg/kafka"
	"github.com/Ramsey-B/bynight/pkg/metrics"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

type ConsumerConfig struct {
	URL          string
	Queue        string
	BatchSize    int
	BatchTimeout time.Duration
}

// Consumer reads intake deliveries in batches. Prefetch is the batch size so a whole
// batch is in flight before it is acked or requeued at once.
type Consumer struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	queue        string
	logger       ectologger.Logger
	decoder      *kafka.Decoder
	handler      kafka.BatchHandler
	batchSize    int
	batchTimeout time.Duration
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, decoder *kafka.Decoder, handler kafka.BatchHandler) (*Consumer, error) {
	c := newConsumer(cfg, logger, decoder, handler)

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.Queue, err)
	}

	if err := channel.Qos(c.batchSize, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return c, nil
}

func newConsumer(cfg ConsumerConfig, logger ectologger.Logger, decoder *kafka.Decoder, handler kafka.BatchHandler) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 2 * time.Second
	}
	return &Consumer{
		queue:        cfg.Queue,
		logger:       logger,
		decoder:      decoder,
		handler:      handler,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
	}
}

// Run consumes until ctx is done or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"queue":      c.queue,
		"batch_size": c.batchSize,
	}).Info("RabbitMQ consumer started")

	for {
		batch, open := c.collect(ctx, deliveries)
		if len(batch) > 0 {
			if err := c.processBatch(ctx, batch); err != nil {
				c.logger.WithContext(ctx).WithError(err).WithField("deliveries", len(batch)).Error("Failed to process batch (requeued)")
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !open {
			return fmt.Errorf("delivery channel closed")
		}
	}
}

// collect waits for a first delivery, then gathers more until the batch is full or the batch timeout expires.
func (c *Consumer) collect(ctx context.Context, deliveries <-chan amqp.Delivery) ([]amqp.Delivery, bool) {
	var batch []amqp.Delivery
	select {
	case <-ctx.Done():
		return nil, true
	case d, ok := <-deliveries:
		if !ok {
			return nil, false
		}
		batch = append(batch, d)
	}

	timer := time.NewTimer(c.batchTimeout)
	defer timer.Stop()
	for len(batch) < c.batchSize {
		select {
		case <-ctx.Done():
			return batch, true
		case <-timer.C:
			return batch, true
		case d, ok := <-deliveries:
			if !ok {
				return batch, false
			}
			batch = append(batch, d)
		}
	}
	return batch, true
}

// processBatch imports the batch and acks every delivery on success. On failure the whole
// batch is requeued. Undecodable deliveries are acked with the batch.
func (c *Consumer) processBatch(ctx context.Context, batch []amqp.Delivery) error {
	incoming := make([]*kafka.IncomingMessage, 0, len(batch))
	for _, d := range batch {
		incoming = append(incoming, toIncoming(d))
	}

	ctx = tracing.ExtractHeaders(ctx, incoming[0].Headers)
	ctx, span := tracing.StartSpan(ctx, "amqp.Consumer.processBatch")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"queue":      c.queue,
		"deliveries": len(batch),
	})

	sources := c.decoder.DecodeBatch(ctx, incoming, func(msg *kafka.IncomingMessage, err error) {
		metrics.RecordMessage("amqp", "invalid")
		log.WithError(err).WithField("source", msg.Source()).Error("Failed to decode delivery")
	})

	last := batch[len(batch)-1]
	for _, source := range sources {
		if err := c.handler(ctx, source.Source, source.Records); err != nil {
			metrics.RecordMessage("amqp", "failed")
			if nackErr := last.Nack(true, true); nackErr != nil {
				log.WithError(nackErr).Error("Failed to nack deliveries")
			}
			return err
		}
	}

	if err := last.Ack(true); err != nil {
		log.WithError(err).Error("Failed to ack deliveries")
		return err
	}
	metrics.MessagesConsumedTotal.WithLabelValues("amqp", "committed").Add(float64(len(batch)))
	return nil
}

func toIncoming(d amqp.Delivery) *kafka.IncomingMessage {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = fmt.Sprintf("%v", v)
	}
	return &kafka.IncomingMessage{
		Key:       d.MessageId,
		Value:     d.Body,
		Headers:   headers,
		Topic:     d.RoutingKey,
		Offset:    int64(d.DeliveryTag),
		Timestamp: d.Timestamp,
	}
}

// Ping reports whether the connection is still open.
func (c *Consumer) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

func (c *Consumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
