package pkg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Green_Community/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HeaderEventTopic 消息头里携带的事件主题
const HeaderEventTopic = "event-topic"

type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaProducer(cfg config.KafkaConfig) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return &KafkaProducer{writer: w, topic: cfg.Topic}
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Send 同一 subject 使用同一个 key，保证分区内有序
func (p *KafkaProducer) Send(ctx context.Context, key, eventTopic string, value []byte) error {
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderEventTopic, Value: []byte(eventTopic)}},
	}
	return p.writer.WriteMessages(ctx, msg)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer 消费组读取，处理成功后才提交 offset
type KafkaConsumer struct {
	reader     messageReader
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewKafkaConsumer(cfg config.KafkaConfig, logger *zap.Logger) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
	return newKafkaConsumer(r, logger)
}

func newKafkaConsumer(r messageReader, logger *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     r,
		logger:     logger.Named("kafka_consumer"),
		minBackoff: 200 * time.Millisecond,
		maxBackoff: 10 * time.Second,
	}
}

// Run 阻塞直到 ctx 取消。
// offset 按分区提交，提交后面的消息等于跳过前面的，所以 handle 失败时在原地退避重试，成功后才取下一条
func (c *KafkaConsumer) Run(ctx context.Context, handle func(ctx context.Context, eventTopic, key string, value []byte) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		if !c.handleWithRetry(ctx, msg, handle) {
			// ctx 取消，未提交的消息重启后重新消费
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn("kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) handleWithRetry(ctx context.Context, msg kafka.Message,
	handle func(ctx context.Context, eventTopic, key string, value []byte) error) bool {
	wait := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := handle(ctx, HeaderValue(msg.Headers, HeaderEventTopic), string(msg.Key), msg.Value)
		if err == nil {
			return true
		}
		c.logger.Warn("kafka message not handled, retrying",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
