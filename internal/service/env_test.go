package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"Green_Community/internal/config"
	"Green_Community/internal/graph"
	"Green_Community/internal/model"
	"Green_Community/internal/repository/mysql"
	"Green_Community/internal/repository/mysql/mysqltest"
	"Green_Community/internal/repository/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeGenerator 按调用次数返回预设输出，并记录 prompt 和参数
type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	opts    []graph.GenerateOptions
	fn      func(call int) (graph.Output, error)
}

func (g *fakeGenerator) GeneratePlan(_ context.Context, prompt string, opts graph.GenerateOptions) (graph.Output, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	fn := g.fn
	g.mu.Unlock()
	if fn == nil {
		return graph.Output{Plan: numberedPlan(call)}, nil
	}
	return fn(call)
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGenerator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[len(g.prompts)-1]
}

// numberedPlan 三个节点两条边，label 带上第几次生成
func numberedPlan(run int) *graph.Plan {
	return &graph.Plan{
		Nodes: []graph.PlanNode{
			{ID: "1", Data: graph.NodeData{Label: fmt.Sprintf("run %d: audit", run)}},
			{ID: "2", Data: graph.NodeData{Label: fmt.Sprintf("run %d: insulate", run)}, Position: &graph.Position{X: 100}},
			{ID: "3", Data: graph.NodeData{Label: fmt.Sprintf("run %d: solar", run)}, Position: &graph.Position{X: 200}},
		},
		Edges: []graph.PlanEdge{
			{ID: "e1-2", Source: "1", Target: "2"},
			{ID: "e2-3", Source: "2", Target: "3"},
		},
	}
}

type testEnv struct {
	db  *gorm.DB
	mr  *miniredis.Miniredis
	rdb *goredis.Client
	gen *fakeGenerator

	users       *mysql.UserRepository
	communities *mysql.CommunityRepository
	members     *mysql.MembershipRepository
	households  *mysql.HouseholdRepository
	recs        *mysql.RecommendationRepository
	outbox      *mysql.OutboxRepository
	cache       *redis.GraphCache

	plan       *PlanService
	community  *CommunityService
	membership *MembershipService
	household  *HouseholdService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := mysqltest.Open(t)
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &testEnv{
		db:          db,
		mr:          mr,
		rdb:         rdb,
		gen:         &fakeGenerator{},
		users:       mysql.NewUserRepository(db),
		communities: mysql.NewCommunityRepository(db),
		members:     mysql.NewMembershipRepository(db),
		households:  mysql.NewHouseholdRepository(db),
		recs:        mysql.NewRecommendationRepository(db),
		outbox:      mysql.NewOutboxRepository(db),
		cache:       redis.NewGraphCache(rdb, time.Minute),
	}
	logger := zap.NewNop()

	e.plan = NewPlanService(PlanDeps{
		Generator:   e.gen,
		Recs:        e.recs,
		Communities: e.communities,
		Members:     e.members,
		Households:  e.households,
		Outbox:      e.outbox,
		Lock:        redis.NewPlanLock(rdb, time.Minute),
		Cache:       e.cache,
	}, config.LLMConfig{IndividualMaxTokens: 800, CommunityMaxTokens: 1200, Temperature: 0.2},
		config.PlanConfig{LockTTL: time.Minute, CacheTTL: time.Minute, MaxReruns: 2}, logger)
	e.community = NewCommunityService(e.communities, logger)
	e.membership = NewMembershipService(e.members, e.communities, logger)
	e.household = NewHouseholdService(e.households, e.communities, e.members, logger)
	return e
}

func (e *testEnv) createCommunity(t *testing.T, leaderID uint64, name string) *model.Community {
	t.Helper()
	c, err := e.community.CreateCommunity(context.Background(), leaderID, CommunityInput{Name: name, Description: "riverside homes"})
	require.NoError(t, err)
	return c
}

func (e *testEnv) join(t *testing.T, leaderID, userID, communityID uint64) {
	t.Helper()
	ctx := context.Background()
	req, err := e.membership.SubmitRequest(ctx, userID, communityID)
	require.NoError(t, err)
	_, err = e.membership.ResolveRequest(ctx, req.ID, leaderID, DecisionApprove)
	require.NoError(t, err)
}

func (e *testEnv) outboxTopics(t *testing.T) []string {
	t.Helper()
	var rows []model.EventOutbox
	require.NoError(t, e.db.Order("id").Find(&rows).Error)
	topics := make([]string, 0, len(rows))
	for _, r := range rows {
		topics = append(topics, r.Topic)
	}
	return topics
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
