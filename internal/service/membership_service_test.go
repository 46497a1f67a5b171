package service

import (
	"context"
	"testing"

	"Green_Community/internal/config"
	"Green_Community/internal/event"
	"Green_Community/internal/graph"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("approve")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)

	_, err = ParseDecision("maybe")
	assert.ErrorIs(t, err, pkg.ErrValidation)
}

func TestResolveRequest_WritesEvents(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	c := e.createCommunity(t, 1, "green-street")

	approved, err := e.membership.SubmitRequest(ctx, 2, c.ID)
	require.NoError(t, err)
	rejected, err := e.membership.SubmitRequest(ctx, 3, c.ID)
	require.NoError(t, err)

	_, err = e.membership.ResolveRequest(ctx, approved.ID, 1, DecisionApprove)
	require.NoError(t, err)
	_, err = e.membership.ResolveRequest(ctx, rejected.ID, 1, DecisionReject)
	require.NoError(t, err)

	assert.Equal(t, []string{
		event.TopicGenerateCommunity, // create
		event.TopicMembershipResolved,
		event.TopicGenerateCommunity, // approve
		event.TopicMembershipResolved,
	}, e.outboxTopics(t))

	_, err = e.membership.ResolveRequest(ctx, rejected.ID, 1, DecisionApprove)
	assert.ErrorIs(t, err, pkg.ErrAlreadyResolved)
	assert.Len(t, e.outboxTopics(t), 4, "already resolved writes nothing")

	_, err = e.members.FindMembership(ctx, 3)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = e.membership.ResolveRequest(ctx, approved.ID, 1, Decision("LATER"))
	assert.ErrorIs(t, err, pkg.ErrValidation)
}

func TestListPending_RequiresLeader(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	c := e.createCommunity(t, 1, "green-street")
	_, err := e.membership.SubmitRequest(ctx, 2, c.ID)
	require.NoError(t, err)

	pending, err := e.membership.ListPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = e.membership.ListPending(ctx, 2)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = e.membership.ListMembers(ctx, 999)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	mine, err := e.membership.ListMyRequests(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestGetRequest_VisibleToRequesterAndLeader(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)
	c := e.createCommunity(t, 1, "green-street")
	req, err := e.membership.SubmitRequest(ctx, 2, c.ID)
	require.NoError(t, err)

	got, err := e.membership.GetRequest(ctx, req.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, got.Status)

	_, err = e.membership.ResolveRequest(ctx, req.ID, 1, DecisionReject)
	require.NoError(t, err)
	got, err = e.membership.GetRequest(ctx, req.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.RequestRejected, got.Status)
	assert.Equal(t, uint64(1), *got.ResolvedBy)

	_, err = e.membership.GetRequest(ctx, req.ID, 3)
	assert.ErrorIs(t, err, pkg.ErrNotFound, "outsiders cannot see the request")
	_, err = e.membership.GetRequest(ctx, 999, 2)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

// 完整流程：建社区 -> 申请 -> 批准 -> outbox 投递 -> 社区计划生成 -> 移除成员 -> 再次生成
func TestMembershipScenario(t *testing.T) {
	ctx := context.Background()
	e := newTestEnv(t)

	d := event.NewDispatcher(zap.NewNop(), event.WithWorkers(1))
	d.Handle(event.TopicGenerateIndividual, e.plan.HandleIndividual)
	d.Handle(event.TopicGenerateCommunity, e.plan.HandleCommunity)
	notifier := NewNotifier(e.users, e.communities, pkg.NewMailer(config.SMTPConfig{}), zap.NewNop())
	d.Handle(event.TopicMembershipResolved, notifier.HandleResolved)
	d.Start(ctx)

	relayer := NewOutboxRelayer(e.outbox, config.EventsConfig{OutboxBatch: 100, OutboxMaxRetry: 3}, DispatcherSender(d), zap.NewNop())

	require.NoError(t, e.users.Create(ctx, &model.User{Username: "leader", Password: "x", Email: "leader@example.com"}))
	require.NoError(t, e.users.Create(ctx, &model.User{Username: "resident", Password: "x", Email: "resident@example.com"}))

	c := e.createCommunity(t, 1, "green-street")
	req, err := e.membership.SubmitRequest(ctx, 2, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestPending, req.Status)

	_, err = e.membership.SubmitRequest(ctx, 2, c.ID)
	assert.ErrorIs(t, err, pkg.ErrConflict)

	_, err = e.membership.ResolveRequest(ctx, req.ID, 1, DecisionApprove)
	require.NoError(t, err)

	_, err = e.membership.SubmitRequest(ctx, 2, c.ID)
	assert.ErrorIs(t, err, pkg.ErrConflict, "member cannot request again")

	require.NoError(t, e.membership.RemoveMember(ctx, 1, 2))

	assert.Equal(t, 4, relayer.DrainOnce(ctx))
	assert.Zero(t, relayer.DrainOnce(ctx), "sent rows are not relayed again")
	require.NoError(t, d.Shutdown(ctx))

	g, err := e.recs.LoadGraph(ctx, graph.Community(c.ID))
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 3)
	assert.GreaterOrEqual(t, g.Recommendation.Version, uint64(1))

	reqs, err := e.membership.ListMyRequests(ctx, 2)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, model.RequestApproved, reqs[0].Status)

	members, err := e.membership.ListMembers(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}
