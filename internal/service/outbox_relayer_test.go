package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"Green_Community/internal/config"
	"Green_Community/internal/event"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOutboxRelayer_RetriesFailedSends(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	require.NoError(t, e.outbox.Enqueue(ctx, communityEvent(1), communityEvent(2)))

	fail := true
	var sent []string
	sender := func(_ context.Context, ob *model.EventOutbox, ack func()) error {
		if fail && ob.SubjectKey == "community:2" {
			return errors.New("broker down")
		}
		sent = append(sent, ob.SubjectKey)
		ack()
		return nil
	}
	relayer := NewOutboxRelayer(e.outbox, config.EventsConfig{OutboxBatch: 10, OutboxMaxRetry: 3}, sender, zap.NewNop())

	assert.Equal(t, 1, relayer.DrainOnce(ctx))
	fail = false
	assert.Equal(t, 1, relayer.DrainOnce(ctx))
	assert.Equal(t, []string{"community:1", "community:2"}, sent)

	var rows []model.EventOutbox
	require.NoError(t, e.db.Order("id").Find(&rows).Error)
	for _, r := range rows {
		assert.Equal(t, model.OutboxSent, r.Status)
	}
	assert.Equal(t, 1, rows[1].Retry)
}

func TestDispatcherSender_QueueFullIsRetried(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	require.NoError(t, e.outbox.Enqueue(ctx, communityEvent(1), communityEvent(2)))

	// 未启动的 dispatcher：队列容量 1，第二条入队失败
	d := event.NewDispatcher(zap.NewNop(), event.WithQueueSize(1))
	d.Handle(event.TopicGenerateCommunity, func(context.Context, event.Event) error { return nil })

	relayer := NewOutboxRelayer(e.outbox, config.EventsConfig{OutboxBatch: 10, OutboxMaxRetry: 3}, DispatcherSender(d), zap.NewNop())
	assert.Equal(t, 1, relayer.DrainOnce(ctx))

	// 第一条已入队但未处理，仍是 pending；第二条记一次失败
	var rows []model.EventOutbox
	require.NoError(t, e.db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, model.OutboxPending, rows[0].Status)
	assert.Equal(t, model.OutboxFailed, rows[1].Status)

	// 在途的记录不会被重复入队
	assert.Zero(t, relayer.DrainOnce(ctx))
}

func TestDispatcherSender_MarksSentAfterHandling(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	require.NoError(t, e.outbox.Enqueue(ctx, communityEvent(1)))

	release := make(chan struct{})
	d := event.NewDispatcher(zap.NewNop(), event.WithWorkers(1))
	d.Handle(event.TopicGenerateCommunity, func(context.Context, event.Event) error {
		<-release
		return nil
	})
	d.Start(ctx)

	relayer := NewOutboxRelayer(e.outbox, config.EventsConfig{OutboxBatch: 10, OutboxMaxRetry: 3}, DispatcherSender(d), zap.NewNop())
	assert.Equal(t, 1, relayer.DrainOnce(ctx))

	var row model.EventOutbox
	require.NoError(t, e.db.First(&row).Error)
	assert.Equal(t, model.OutboxPending, row.Status, "not sent while the handler is running")

	close(release)
	require.NoError(t, d.Shutdown(ctx))
	require.NoError(t, e.db.First(&row).Error)
	assert.Equal(t, model.OutboxSent, row.Status)
}

func TestDispatcherSender_ShutdownTimeoutKeepsPending(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	require.NoError(t, e.outbox.Enqueue(ctx, communityEvent(1)))

	d := event.NewDispatcher(zap.NewNop(), event.WithWorkers(1))
	d.Handle(event.TopicGenerateCommunity, func(ctx context.Context, _ event.Event) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d.Start(ctx)

	relayer := NewOutboxRelayer(e.outbox, config.EventsConfig{OutboxBatch: 10, OutboxMaxRetry: 3}, DispatcherSender(d), zap.NewNop())
	assert.Equal(t, 1, relayer.DrainOnce(ctx))

	shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(shutdownCtx), context.DeadlineExceeded)

	// 被取消的事件留在 outbox，重启后重投
	assert.Never(t, func() bool {
		var row model.EventOutbox
		return e.db.First(&row).Error == nil && row.Status != model.OutboxPending
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestNotifier_LogsWithoutSMTP(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	core, logs := observer.New(zapcore.InfoLevel)

	require.NoError(t, e.users.Create(ctx, &model.User{Username: "resident", Password: "x", Email: "r@example.com"}))
	c := e.createCommunity(t, 9, "green-street")

	n := NewNotifier(e.users, e.communities, pkg.NewMailer(config.SMTPConfig{}), zap.New(core))
	ev := event.Event{
		Topic:   event.TopicMembershipResolved,
		Payload: []byte(`{"request_id":1,"user_id":1,"community_id":` + itoa(c.ID) + `,"status":"APPROVED"}`),
	}
	require.NoError(t, n.HandleResolved(ctx, ev))

	entries := logs.FilterMessage("membership decision").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "APPROVED", entries[0].ContextMap()["status"])

	bad := event.Event{Topic: event.TopicMembershipResolved, Payload: []byte(`{"user_id":404,"community_id":1}`)}
	assert.ErrorIs(t, n.HandleResolved(ctx, bad), pkg.ErrNotFound)
}

func TestKafkaBridge_Forward(t *testing.T) {
	ctx := context.Background()
	d := event.NewDispatcher(zap.NewNop(), event.WithQueueSize(1))
	d.Handle(event.TopicGenerateCommunity, func(context.Context, event.Event) error { return nil })
	b := NewKafkaBridge(nil, d, zap.NewNop())

	assert.NoError(t, b.forward(ctx, "", "community:1", []byte(`{}`)), "missing topic header is dropped")
	assert.NoError(t, b.forward(ctx, "event.unknown", "community:1", []byte(`{}`)), "unknown topic is dropped")

	require.NoError(t, b.forward(ctx, event.TopicGenerateCommunity, "community:1", []byte(`{"community_id":1}`)))
	// 队列满必须返回错误，消息才不会被提交
	assert.ErrorIs(t, b.forward(ctx, event.TopicGenerateCommunity, "community:1", []byte(`{"community_id":1}`)), event.ErrQueueFull)
}
