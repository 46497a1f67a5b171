package mysql_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"Green_Community/internal/graph"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"
	"Green_Community/internal/repository/mysql/mysqltest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func threeStepPlan(prefix string) graph.Plan {
	return graph.Plan{
		Nodes: []graph.PlanNode{
			{ID: "1", Data: graph.NodeData{Label: prefix + " audit"}, Position: &graph.Position{X: 0, Y: 0}},
			{ID: "2", Data: graph.NodeData{Label: prefix + " insulate"}, Position: &graph.Position{X: 100, Y: 0}},
			{ID: "3", Data: graph.NodeData{Label: prefix + " solar"}},
		},
		Edges: []graph.PlanEdge{
			{ID: "e1-2", Source: "1", Target: "2"},
			{ID: "e2-3", Source: "2", Target: "3"},
		},
	}
}

func assertEdgesInside(t *testing.T, g *mysql.Graph) {
	t.Helper()
	ids := map[uint64]bool{}
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	for _, e := range g.Edges {
		assert.Equal(t, g.Recommendation.ID, e.RecommendationID)
		assert.True(t, ids[e.SourceNodeID], "source %d outside recommendation", e.SourceNodeID)
		assert.True(t, ids[e.TargetNodeID], "target %d outside recommendation", e.TargetNodeID)
	}
}

func TestReconcile_CreatesAndReplaces(t *testing.T) {
	ctx := context.Background()
	db := mysqltest.Open(t)
	repo := mysql.NewRecommendationRepository(db)
	subject := graph.Individual(7)

	first, err := repo.Reconcile(ctx, subject, mysql.RecommendationMeta{Title: "My plan", Category: "individual"}, threeStepPlan("v1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Recommendation.Version)
	require.Len(t, first.Nodes, 3)
	require.Len(t, first.Edges, 2)
	assert.Equal(t, first.Nodes[0].ID, first.Edges[0].SourceNodeID)
	assert.Equal(t, first.Nodes[1].ID, first.Edges[0].TargetNodeID)
	assert.Equal(t, graph.StatusPending, first.Nodes[2].Status)
	assert.Equal(t, 0.0, first.Nodes[2].PositionX)

	second, err := repo.Reconcile(ctx, subject, mysql.RecommendationMeta{Title: "Ignored", Category: "ignored"}, threeStepPlan("v2"))
	require.NoError(t, err)
	assert.Equal(t, first.Recommendation.ID, second.Recommendation.ID)
	assert.Equal(t, uint64(2), second.Recommendation.Version)

	g, err := repo.LoadGraph(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, "My plan", g.Recommendation.Title, "metadata is set only at creation")
	require.Len(t, g.Nodes, 3)
	for _, n := range g.Nodes {
		assert.Contains(t, n.Label, "v2")
	}
	assertEdgesInside(t, g)

	var recs int64
	require.NoError(t, db.Model(&model.Recommendation{}).Count(&recs).Error)
	assert.Equal(t, int64(1), recs)
}

func TestReconcile_SubjectsAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := mysqltest.Open(t)
	repo := mysql.NewRecommendationRepository(db)

	_, err := repo.Reconcile(ctx, graph.Individual(5), mysql.RecommendationMeta{Title: "a"}, threeStepPlan("user"))
	require.NoError(t, err)
	_, err = repo.Reconcile(ctx, graph.Community(5), mysql.RecommendationMeta{Title: "b"}, graph.Fallback("community"))
	require.NoError(t, err)

	ind, err := repo.LoadGraph(ctx, graph.Individual(5))
	require.NoError(t, err)
	com, err := repo.LoadGraph(ctx, graph.Community(5))
	require.NoError(t, err)
	assert.NotEqual(t, ind.Recommendation.ID, com.Recommendation.ID)
	assert.Len(t, ind.Nodes, 3)
	require.Len(t, com.Nodes, 1)
	assert.Empty(t, com.Edges)
	assert.Nil(t, com.Recommendation.UserID)
	require.NotNil(t, com.Recommendation.CommunityID)

	_, err = repo.LoadGraph(ctx, graph.Individual(6))
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestReconcile_FailureKeepsPreviousGraph(t *testing.T) {
	ctx := context.Background()
	db := mysqltest.Open(t)
	repo := mysql.NewRecommendationRepository(db)
	subject := graph.Community(3)

	_, err := repo.Reconcile(ctx, subject, mysql.RecommendationMeta{Title: "c"}, threeStepPlan("old"))
	require.NoError(t, err)

	var failEdges atomic.Bool
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_edges", func(tx *gorm.DB) {
		if failEdges.Load() && tx.Statement.Schema != nil && tx.Statement.Schema.Table == "edges" {
			_ = tx.AddError(errors.New("injected edge failure"))
		}
	}))
	failEdges.Store(true)

	_, err = repo.Reconcile(ctx, subject, mysql.RecommendationMeta{}, threeStepPlan("new"))
	assert.ErrorIs(t, err, pkg.ErrUpstream)

	g, err := repo.LoadGraph(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), g.Recommendation.Version)
	require.Len(t, g.Nodes, 3)
	require.Len(t, g.Edges, 2)
	for _, n := range g.Nodes {
		assert.Contains(t, n.Label, "old")
	}
	assertEdgesInside(t, g)
}

func TestReconcile_ConcurrentSameSubject(t *testing.T) {
	ctx := context.Background()
	db := mysqltest.Open(t)
	repo := mysql.NewRecommendationRepository(db)
	subject := graph.Individual(11)

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Reconcile(ctx, subject, mysql.RecommendationMeta{Title: "t"}, threeStepPlan("run"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	g, err := repo.LoadGraph(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), g.Recommendation.Version)
	assert.Len(t, g.Nodes, 3, "exactly one generation's worth of nodes")
	assert.Len(t, g.Edges, 2)
	assertEdgesInside(t, g)
}

func TestNodeStatus(t *testing.T) {
	ctx := context.Background()
	db := mysqltest.Open(t)
	repo := mysql.NewRecommendationRepository(db)

	g, err := repo.Reconcile(ctx, graph.Individual(1), mysql.RecommendationMeta{Title: "t"}, threeStepPlan("x"))
	require.NoError(t, err)

	nodeID := g.Nodes[1].ID
	require.NoError(t, repo.UpdateNodeStatus(ctx, nodeID, graph.StatusCompleted))

	n, rec, err := repo.FindNode(ctx, nodeID)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, n.Status)
	assert.Equal(t, g.Recommendation.ID, rec.ID)

	_, _, err = repo.FindNode(ctx, 9999)
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}
