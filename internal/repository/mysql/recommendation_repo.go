package mysql

import (
	"context"
	"fmt"
	"time"

	"Green_Community/internal/graph"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecommendationRepository struct {
	DB *gorm.DB
}

func NewRecommendationRepository(db *gorm.DB) *RecommendationRepository {
	return &RecommendationRepository{DB: db}
}

// RecommendationMeta 仅在首次创建 Recommendation 时写入
type RecommendationMeta struct {
	Title    string
	Category string
}

// Graph 一个 Recommendation 及其节点和边
type Graph struct {
	Recommendation model.Recommendation
	Nodes          []model.Node
	Edges          []model.Edge
}

func subjectQuery(tx *gorm.DB, s graph.Subject) *gorm.DB {
	if s.Scope == graph.ScopeCommunity {
		return tx.Where("community_id = ?", s.ID)
	}
	return tx.Where("user_id = ?", s.ID)
}

// Reconcile 用新计划整体替换 subject 的图：
// 不存在则创建 Recommendation（唯一索引 + DoNothing 保证并发下只有一条），
// 锁住该行后删除旧的边和节点，逐个插入新节点，再按位置解析边。全部在一个事务内
func (r *RecommendationRepository) Reconcile(ctx context.Context, s graph.Subject, meta RecommendationMeta, plan graph.Plan) (*Graph, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", pkg.ErrValidation, err)
	}

	var out Graph
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := &model.Recommendation{
			UserID:      s.UserID(),
			CommunityID: s.CommunityID(),
			Title:       meta.Title,
			Category:    meta.Category,
			Status:      "ACTIVE",
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			return err
		}

		var rec model.Recommendation
		if err := subjectQuery(tx.Clauses(clause.Locking{Strength: "UPDATE"}), s).First(&rec).Error; err != nil {
			return err
		}

		if err := tx.Where("recommendation_id = ?", rec.ID).Delete(&model.Edge{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recommendation_id = ?", rec.ID).Delete(&model.Node{}).Error; err != nil {
			return err
		}

		now := time.Now()
		nodes := make([]model.Node, 0, len(plan.Nodes))
		created := make([]uint64, 0, len(plan.Nodes))
		for _, pn := range plan.Nodes {
			pos := graph.NodePosition(pn)
			n := model.Node{
				RecommendationID: rec.ID,
				ModelKey:         string(pn.ID),
				Label:            pn.Data.Label,
				PositionX:        pos.X,
				PositionY:        pos.Y,
				Status:           graph.StatusPending,
				CreatedAt:        now,
			}
			if err := tx.Create(&n).Error; err != nil {
				return err
			}
			nodes = append(nodes, n)
			created = append(created, n.ID)
		}

		resolved := graph.ResolveEdges(plan, created)
		edges := make([]model.Edge, 0, len(resolved))
		for _, e := range resolved {
			edges = append(edges, model.Edge{
				RecommendationID: rec.ID,
				SourceNodeID:     e.Source,
				TargetNodeID:     e.Target,
				ModelKey:         e.ModelKey,
				CreatedAt:        now,
			})
		}
		if len(edges) > 0 {
			if err := tx.Create(&edges).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&model.Recommendation{}).Where("id = ?", rec.ID).
			Updates(map[string]any{"version": gorm.Expr("version + 1"), "updated_at": now}).Error; err != nil {
			return err
		}
		rec.Version++
		rec.UpdatedAt = now

		out = Graph{Recommendation: rec, Nodes: nodes, Edges: edges}
		return nil
	})
	if err != nil {
		return nil, storage(err)
	}
	return &out, nil
}

func (r *RecommendationRepository) FindBySubject(ctx context.Context, s graph.Subject) (*model.Recommendation, error) {
	var rec model.Recommendation
	if err := subjectQuery(r.DB.WithContext(ctx), s).First(&rec).Error; err != nil {
		return nil, notFound(err, "recommendation")
	}
	return &rec, nil
}

// LoadGraph 读取 subject 当前的完整图
func (r *RecommendationRepository) LoadGraph(ctx context.Context, s graph.Subject) (*Graph, error) {
	var g Graph
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := subjectQuery(tx, s).First(&g.Recommendation).Error; err != nil {
			return notFound(err, "recommendation")
		}
		if err := tx.Where("recommendation_id = ?", g.Recommendation.ID).Order("id asc").Find(&g.Nodes).Error; err != nil {
			return err
		}
		return tx.Where("recommendation_id = ?", g.Recommendation.ID).Order("id asc").Find(&g.Edges).Error
	})
	if err != nil {
		return nil, storage(err)
	}
	return &g, nil
}

// FindNode 返回节点及其所属 Recommendation
func (r *RecommendationRepository) FindNode(ctx context.Context, nodeID uint64) (*model.Node, *model.Recommendation, error) {
	db := r.DB.WithContext(ctx)
	var n model.Node
	if err := db.First(&n, nodeID).Error; err != nil {
		return nil, nil, notFound(err, "node")
	}
	var rec model.Recommendation
	if err := db.First(&rec, n.RecommendationID).Error; err != nil {
		return nil, nil, notFound(err, "recommendation")
	}
	return &n, &rec, nil
}

func (r *RecommendationRepository) UpdateNodeStatus(ctx context.Context, nodeID uint64, status string) error {
	return storage(r.DB.WithContext(ctx).Model(&model.Node{}).Where("id = ?", nodeID).Update("status", status).Error)
}
