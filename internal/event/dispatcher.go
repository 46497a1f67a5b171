// Package event 进程内的异步事件分发：每个主题一个有界队列和若干 worker
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrQueueFull    = errors.New("event queue full")
	ErrClosed       = errors.New("dispatcher closed")
	ErrUnknownTopic = errors.New("unknown event topic")
)

// Event 投递给 handler 的消息，Payload 为 JSON
type Event struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`

	ack func()
}

func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Topic, err)
	}
	return nil
}

type Handler func(ctx context.Context, ev Event) error

type Option func(*Dispatcher)

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

type topic struct {
	name     string
	queue    chan Event
	handlers []Handler
}

type Dispatcher struct {
	logger    *zap.Logger
	queueSize int
	workers   int

	mu      sync.RWMutex
	topics  map[string]*topic
	started bool
	closed  bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewDispatcher(logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:    logger.Named("dispatcher"),
		queueSize: 256,
		workers:   4,
		topics:    make(map[string]*topic),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle 注册 handler，必须在 Start 之前调用
func (d *Dispatcher) Handle(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		panic("event: Handle called after Start on topic " + name)
	}
	t, ok := d.topics[name]
	if !ok {
		t = &topic{name: name, queue: make(chan Event, d.queueSize)}
		d.topics[name] = t
	}
	t.handlers = append(t.handlers, h)
}

// Topics 已注册的主题，按名字排序
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.topics))
	for name := range d.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start 为每个主题启动 worker；ctx 取消或 Shutdown 超时时 handler 收到取消
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	for _, t := range d.topics {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker(runCtx, t)
		}
	}
	d.logger.Info("dispatcher started", zap.Int("topics", len(d.topics)), zap.Int("workers", d.workers))
}

// Send 只入队不等待处理；队列满立即返回 ErrQueueFull
func (d *Dispatcher) Send(ctx context.Context, name string, payload any) error {
	return d.SendAck(ctx, name, payload, nil)
}

// SendAck 同 Send；所有 handler 跑完后调用 ack（handler 失败也算处理过）。
// Shutdown 超时被取消的事件不会 ack
func (d *Dispatcher) SendAck(ctx context.Context, name string, payload any, ack func()) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}
	ev := Event{
		ID:        uuid.NewString(),
		Topic:     name,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		ack:       ack,
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	t, ok := d.topics[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case t.queue <- ev:
		return nil
	default:
		d.logger.Warn("event dropped, queue full", zap.String("topic", name), zap.String("event_id", ev.ID))
		return fmt.Errorf("%w: %s", ErrQueueFull, name)
	}
}

// Shutdown 停止接收新事件并等待已入队事件处理完；ctx 到期则取消仍在运行的 handler
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, t := range d.topics {
		close(t.queue)
	}
	cancel := d.cancel
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		d.logger.Info("dispatcher drained")
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context, t *topic) {
	defer d.wg.Done()
	for ev := range t.queue {
		for _, h := range t.handlers {
			d.invoke(ctx, t.name, h, ev)
		}
		if ev.ack != nil && ctx.Err() == nil {
			ev.ack()
		}
	}
}

// invoke handler 的错误和 panic 只记录，不重试
func (d *Dispatcher) invoke(ctx context.Context, name string, h Handler, ev Event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic",
				zap.String("topic", name),
				zap.String("event_id", ev.ID),
				zap.Any("panic", r),
			)
		}
	}()
	if err := h(ctx, ev); err != nil {
		d.logger.Error("event handler failed",
			zap.String("topic", name),
			zap.String("event_id", ev.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("event handled",
		zap.String("topic", name),
		zap.String("event_id", ev.ID),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	case string:
		if json.Valid([]byte(p)) {
			return json.RawMessage(p), nil
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return raw, nil
}
