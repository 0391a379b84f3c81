package mq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"judgebroker/pkg/utils/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KafkaConfig defines configuration for Kafka implementation.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	ClientID string   `yaml:"clientID"`

	// Producer settings
	RequiredAcks int           `yaml:"requiredAcks"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	Compression  string        `yaml:"compression"` // none, gzip, snappy, lz4, zstd

	// Consumer settings
	MinBytes int           `yaml:"minBytes"`
	MaxBytes int           `yaml:"maxBytes"`
	MaxWait  time.Duration `yaml:"maxWait"`

	DialTimeout time.Duration `yaml:"dialTimeout"`
}

func (c *KafkaConfig) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 20 * time.Millisecond
	}
	if c.MinBytes == 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 10 << 20
	}
	if c.MaxWait == 0 {
		c.MaxWait = time.Second
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = int(kafka.RequireOne)
	}
}

// KafkaQueue implements MessageQueue using Kafka. Each subscription is its own
// consumer group reader feeding a fixed set of handler goroutines.
type KafkaQueue struct {
	config KafkaConfig
	writer *kafka.Writer
	dialer *kafka.Dialer

	mu      sync.Mutex
	subs    []*kafkaSubscription
	started bool
	closed  bool
}

type kafkaSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	parent  context.Context

	reader *kafka.Reader
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewKafkaQueue creates a Kafka-backed message queue.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers are required")
	}
	compression, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   cfg.DialTimeout,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Compression:  compression,
		ErrorLogger:  kafka.LoggerFunc(logger.Named("kafka").Sugar().Errorf),
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, address)
			},
			ClientID: cfg.ClientID,
		},
	}
	return &KafkaQueue{config: cfg, writer: writer, dialer: dialer}, nil
}

func parseCompression(name string) (kafka.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("unknown kafka compression %q", name)
	}
}

// Publish writes message to topic keyed by message ID, so every event of one
// submission lands on the same partition in order.
func (k *KafkaQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	return k.writer.WriteMessages(ctx, encodeMessage(topic, message))
}

// SubscribeWithOptions registers handler for topic. Delivery starts with Start,
// or immediately when the queue is already running.
func (k *KafkaQueue) SubscribeWithOptions(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = "judgebroker-" + topic
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sub := &kafkaSubscription{topic: topic, handler: handler, opts: options, parent: ctx}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("message queue is closed")
	}
	k.subs = append(k.subs, sub)
	if k.started {
		k.run(sub)
	}
	return nil
}

// Start starts consuming for every subscription. Calling it again is a no-op.
func (k *KafkaQueue) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errors.New("message queue is closed")
	}
	if k.started {
		return nil
	}
	for _, sub := range k.subs {
		k.run(sub)
	}
	k.started = true
	return nil
}

// Stop cancels every consumer and waits for in-flight handlers to return.
func (k *KafkaQueue) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, sub := range k.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range k.subs {
		if sub.group != nil {
			_ = sub.group.Wait()
			sub.group = nil
		}
		if sub.reader != nil {
			_ = sub.reader.Close()
			sub.reader = nil
		}
	}
	k.started = false
	return nil
}

// Ping dials the first broker.
func (k *KafkaQueue) Ping(ctx context.Context) error {
	conn, err := k.dialer.DialContext(ctx, "tcp", k.config.Brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

// Close stops consumers and flushes the producer.
func (k *KafkaQueue) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	_ = k.Stop()
	return k.writer.Close()
}

func (k *KafkaQueue) run(sub *kafkaSubscription) {
	startOffset := kafka.LastOffset
	if sub.opts.StartFromOldest {
		startOffset = kafka.FirstOffset
	}
	sub.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       sub.topic,
		GroupID:     sub.opts.ConsumerGroup,
		MinBytes:    k.config.MinBytes,
		MaxBytes:    k.config.MaxBytes,
		MaxWait:     k.config.MaxWait,
		StartOffset: startOffset,
		Dialer:      k.dialer,
	})
	ctx, cancel := context.WithCancel(sub.parent)
	sub.cancel = cancel
	sub.group = &errgroup.Group{}

	fetched := make(chan kafka.Message, sub.opts.Concurrency*sub.opts.PrefetchCount)
	reader := sub.reader
	sub.group.Go(func() error {
		defer close(fetched)
		for {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn(ctx, "kafka fetch failed", zap.String("topic", sub.topic), zap.Error(err))
				if !sleepCtx(ctx, 100*time.Millisecond) {
					return nil
				}
				continue
			}
			select {
			case fetched <- msg:
			case <-ctx.Done():
				return nil
			}
		}
	})
	for i := 0; i < sub.opts.Concurrency; i++ {
		sub.group.Go(func() error {
			for msg := range fetched {
				k.consume(ctx, sub, reader, msg)
			}
			return nil
		})
	}
}

func (k *KafkaQueue) consume(ctx context.Context, sub *kafkaSubscription, reader *kafka.Reader, msg kafka.Message) {
	deliver(ctx, decodeMessage(msg), sub.handler, sub.opts, func(ctx context.Context, dead *Message) error {
		return k.Publish(ctx, sub.opts.DeadLetterTopic, dead)
	})
	if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "kafka commit failed", zap.String("topic", sub.topic), zap.Error(err))
	}
}

// deliver runs handler until it succeeds, doubling the wait between attempts.
// A message that keeps failing goes to the dead letter topic when one is set
// and is committed either way.
func deliver(ctx context.Context, m *Message, handler HandlerFunc, opts SubscribeOptions, deadLetter func(context.Context, *Message) error) {
	if m.MaxRetries == 0 {
		m.MaxRetries = opts.MaxRetries
	}
	if m.Expiration == 0 && opts.MessageTTL > 0 {
		m.Expiration = opts.MessageTTL
	}
	if m.Expired(time.Now()) {
		logger.Warn(ctx, "dropping expired message", zap.String("message_id", m.ID))
		return
	}

	wait := opts.RetryDelay
	for {
		err := handler(ctx, m)
		if err == nil {
			return
		}
		m.RetryCount++
		if m.RetryCount > m.MaxRetries || ctx.Err() != nil {
			logger.Error(ctx, "message handling failed", zap.String("message_id", m.ID),
				zap.Int("retries", m.RetryCount-1), zap.Error(err))
			if opts.DeadLetterTopic != "" && deadLetter != nil {
				if dlqErr := deadLetter(ctx, m); dlqErr != nil {
					logger.Error(ctx, "dead letter publish failed", zap.String("message_id", m.ID), zap.Error(dlqErr))
				}
			}
			return
		}
		if !sleepCtx(ctx, wait) {
			continue
		}
		if opts.MaxRetryDelay > 0 && wait*2 > opts.MaxRetryDelay {
			wait = opts.MaxRetryDelay
		} else {
			wait *= 2
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// reservedHeaders carry Message metadata through Kafka headers.
var reservedHeaders = []struct {
	key    string
	encode func(*Message) string
	decode func(*Message, string)
}{
	{
		key:    "x-message-id",
		encode: func(m *Message) string { return m.ID },
		decode: func(m *Message, v string) { m.ID = v },
	},
	{
		key: "x-message-ts",
		encode: func(m *Message) string {
			return m.Timestamp.Format(time.RFC3339Nano)
		},
		decode: func(m *Message, v string) {
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.Timestamp = ts
			}
		},
	},
	{
		key:    "x-message-retry",
		encode: func(m *Message) string { return itoaNonZero(m.RetryCount) },
		decode: func(m *Message, v string) { m.RetryCount = atoiNonNegative(v) },
	},
	{
		key:    "x-message-max-retries",
		encode: func(m *Message) string { return itoaNonZero(m.MaxRetries) },
		decode: func(m *Message, v string) { m.MaxRetries = atoiNonNegative(v) },
	},
	{
		key: "x-message-expiration-ms",
		encode: func(m *Message) string {
			if m.Expiration <= 0 {
				return ""
			}
			return strconv.FormatInt(m.Expiration.Milliseconds(), 10)
		},
		decode: func(m *Message, v string) {
			m.Expiration = time.Duration(atoiNonNegative(v)) * time.Millisecond
		},
	},
}

func isReservedHeader(key string) bool {
	for _, h := range reservedHeaders {
		if h.key == key {
			return true
		}
	}
	return false
}

func encodeMessage(topic string, message *Message) kafka.Message {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	headers := make([]kafka.Header, 0, len(message.Headers)+len(reservedHeaders))
	for key, value := range message.Headers {
		if isReservedHeader(key) {
			continue
		}
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	for _, h := range reservedHeaders {
		if v := h.encode(message); v != "" {
			headers = append(headers, kafka.Header{Key: h.key, Value: []byte(v)})
		}
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(message.ID),
		Value:   message.Body,
		Headers: headers,
		Time:    message.Timestamp,
	}
}

func decodeMessage(msg kafka.Message) *Message {
	m := &Message{
		Body:      msg.Value,
		Headers:   make(map[string]string),
		Timestamp: msg.Time,
	}
	for _, header := range msg.Headers {
		matched := false
		for _, h := range reservedHeaders {
			if h.key == header.Key {
				h.decode(m, string(header.Value))
				matched = true
				break
			}
		}
		if !matched {
			m.Headers[header.Key] = string(header.Value)
		}
	}
	if m.ID == "" {
		m.ID = string(msg.Key)
	}
	return m
}

func itoaNonZero(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func atoiNonNegative(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
