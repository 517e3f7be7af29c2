// Package kafka carries import batches in from Kafka and publishes their outcomes back.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/bynight/pkg/metrics"
	"github.com/Ramsey-B/bynight/pkg/tracing"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	BatchSize     int
	BatchTimeout  time.Duration
}

// Consumer reads intake messages in batches and hands them to the importer
type Consumer struct {
	reader       messageReader
	topic        string
	logger       ectologger.Logger
	decoder      *Decoder
	handler      BatchHandler
	batchSize    int
	batchTimeout time.Duration
	retryBackoff time.Duration
	maxBackoff   time.Duration
	wg           sync.WaitGroup
	cancel       context.CancelFunc
	running      atomic.Bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, decoder *Decoder, handler BatchHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, cfg, logger, decoder, handler)
}

func newConsumer(reader messageReader, cfg ConsumerConfig, logger ectologger.Logger, decoder *Decoder, handler BatchHandler) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 2 * time.Second
	}
	return &Consumer{
		reader:       reader,
		topic:        cfg.Topic,
		logger:       logger,
		decoder:      decoder,
		handler:      handler,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		retryBackoff: 500 * time.Millisecond,
		maxBackoff:   30 * time.Second,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.running.Store(true)
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":      c.topic,
		"batch_size": c.batchSize,
	}).Info("Kafka consumer started")
	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.running.Store(false)
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}

		c.retryBatch(ctx, batch)
	}
}

// retryBatch processes the batch with capped exponential backoff until it is committed or
// ctx is cancelled. Nothing past the batch is fetched in the meantime.
func (c *Consumer) retryBatch(ctx context.Context, batch []kafka.Message) {
	backoff := c.retryBackoff
	for attempt := 1; ; attempt++ {
		err := c.processBatch(ctx, batch)
		if err == nil || ctx.Err() != nil {
			return
		}

		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"messages": len(batch),
			"attempt":  attempt,
			"backoff":  backoff.String(),
		}).Error("Failed to process batch, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// fetchBatch blocks for a first message, then reads until the batch is full or the batch timeout expires.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}

	batch := []kafka.Message{first}
	fetchCtx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()
	for len(batch) < c.batchSize {
		msg, err := c.reader.FetchMessage(fetchCtx)
		if err != nil {
			break
		}
		batch = append(batch, msg)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return batch, nil
}

// processBatch imports the records of a batch, one source at a time, and commits the
// messages only when every source succeeded. Undecodable messages are committed with the batch.
func (c *Consumer) processBatch(ctx context.Context, batch []kafka.Message) error {
	incoming := make([]*IncomingMessage, 0, len(batch))
	for _, msg := range batch {
		incoming = append(incoming, toIncoming(msg))
	}

	ctx = tracing.ExtractHeaders(ctx, incoming[0].Headers)
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.processBatch")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":    c.topic,
		"messages": len(batch),
	})

	sources := c.decoder.DecodeBatch(ctx, incoming, func(msg *IncomingMessage, err error) {
		metrics.RecordMessage("kafka", "invalid")
		log.WithError(err).WithFields(map[string]any{
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"source":    msg.Source(),
		}).Error("Failed to decode message")
	})

	for _, source := range sources {
		if err := c.handler(ctx, source.Source, source.Records); err != nil {
			metrics.RecordMessage("kafka", "failed")
			return err
		}
	}

	if err := c.reader.CommitMessages(ctx, batch...); err != nil {
		log.WithError(err).Error("Failed to commit messages")
		return err
	}
	metrics.MessagesConsumedTotal.WithLabelValues("kafka", "committed").Add(float64(len(batch)))

	log.Debugf("Committed batch of %d sources", len(sources))
	return nil
}

func toIncoming(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return &IncomingMessage{
		Key:       string(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}

// Health reports whether the consume loop is running.
func (c *Consumer) Health() bool {
	return c.reader != nil && c.running.Load()
}

// Ping satisfies the health checker.
func (c *Consumer) Ping() error {
	if !c.Health() {
		return fmt.Errorf("kafka consumer for %s is not running", c.topic)
	}
	return nil
}
