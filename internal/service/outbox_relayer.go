package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"Green_Community/internal/config"
	"Green_Community/internal/event"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"

	"go.uber.org/zap"
)

// Sender 把一条 outbox 记录投递出去。投递真正完成后调用 ack（可以异步）；
// 返回 error 时不得调用 ack
type Sender func(ctx context.Context, ob *model.EventOutbox, ack func()) error

// OutboxRelayer 定时扫描 outbox 表并投递
type OutboxRelayer struct {
	repo      *mysql.OutboxRepository
	batchSize int
	maxRetry  int
	interval  time.Duration
	sender    Sender
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[uint64]struct{}
}

func NewOutboxRelayer(repo *mysql.OutboxRepository, cfg config.EventsConfig, sender Sender, logger *zap.Logger) *OutboxRelayer {
	r := &OutboxRelayer{
		repo:      repo,
		batchSize: cfg.OutboxBatch,
		maxRetry:  cfg.OutboxMaxRetry,
		interval:  cfg.OutboxInterval,
		sender:    sender,
		logger:    logger.Named("outbox_relayer"),
		inflight:  make(map[uint64]struct{}),
	}
	if r.batchSize <= 0 {
		r.batchSize = 200
	}
	if r.interval <= 0 {
		r.interval = time.Second
	}
	return r
}

// Run 阻塞直到 ctx 取消
func (r *OutboxRelayer) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce 投递一批，返回交出去的条数。已交出未 ack 的记录保持 pending，
// 进程退出后下次启动会重投，handler 需幂等
func (r *OutboxRelayer) DrainOnce(ctx context.Context) int {
	rows, err := r.repo.List(ctx, r.batchSize, r.maxRetry)
	if err != nil {
		r.logger.Error("outbox query failed", zap.Error(err))
		return 0
	}
	sent := 0
	for i := range rows {
		ob := rows[i]
		if !r.claim(ob.ID) {
			continue
		}
		if err := r.sender(ctx, &ob, r.ackFunc(ob.ID)); err != nil {
			r.release(ob.ID)
			r.logger.Warn("outbox send failed",
				zap.Uint64("outbox_id", ob.ID),
				zap.String("topic", ob.Topic),
				zap.Int("retry", ob.Retry+1),
				zap.Error(err),
			)
			if err := r.repo.RetryUpdate(ctx, ob.ID); err != nil {
				r.logger.Error("outbox retry update failed", zap.Uint64("outbox_id", ob.ID), zap.Error(err))
			}
			continue
		}
		sent++
	}
	return sent
}

func (r *OutboxRelayer) claim(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[id]; ok {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *OutboxRelayer) release(id uint64) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

// ackFunc 在 handler 所在的 goroutine 里执行，relayer 的 ctx 可能已取消
func (r *OutboxRelayer) ackFunc(id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			defer r.release(id)
			if err := r.repo.SuccessUpdate(context.Background(), id); err != nil {
				// 下一轮会重复投递，handler 需幂等
				r.logger.Error("outbox success update failed", zap.Uint64("outbox_id", id), zap.Error(err))
			}
		})
	}
}

// DispatcherSender 进程内投递，handler 跑完才 ack
func DispatcherSender(d *event.Dispatcher) Sender {
	return func(ctx context.Context, ob *model.EventOutbox, ack func()) error {
		return d.SendAck(ctx, ob.Topic, json.RawMessage(ob.Payload), ack)
	}
}

// KafkaSender 投递到 Kafka，subject 作为消息 key；broker 确认即 ack
func KafkaSender(p *pkg.KafkaProducer) Sender {
	return func(ctx context.Context, ob *model.EventOutbox, ack func()) error {
		if err := p.Send(ctx, ob.SubjectKey, ob.Topic, []byte(ob.Payload)); err != nil {
			return err
		}
		ack()
		return nil
	}
}

// KafkaBridge 消费 Kafka 并转投到进程内 dispatcher
type KafkaBridge struct {
	consumer   *pkg.KafkaConsumer
	dispatcher *event.Dispatcher
	logger     *zap.Logger
}

func NewKafkaBridge(consumer *pkg.KafkaConsumer, dispatcher *event.Dispatcher, logger *zap.Logger) *KafkaBridge {
	return &KafkaBridge{consumer: consumer, dispatcher: dispatcher, logger: logger.Named("kafka_bridge")}
}

func (b *KafkaBridge) Run(ctx context.Context) error {
	return b.consumer.Run(ctx, b.forward)
}

func (b *KafkaBridge) forward(ctx context.Context, topic, key string, value []byte) error {
	if topic == "" {
		b.logger.Warn("kafka message without event topic dropped", zap.String("key", key))
		return nil
	}
	err := b.dispatcher.Send(ctx, topic, json.RawMessage(value))
	if errors.Is(err, event.ErrUnknownTopic) {
		// 重试也不会成功，丢弃
		b.logger.Warn("kafka message for unknown topic dropped", zap.String("topic", topic), zap.String("key", key))
		return nil
	}
	// 其余错误（队列满等）交给 consumer 原地重试
	return err
}
