package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"Green_Community/internal/config"
	"Green_Community/internal/event"
	"Green_Community/internal/graph"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"
	"Green_Community/internal/repository/redis"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Generator 计划生成能力，pkg.LLMClient 实现
type Generator interface {
	GeneratePlan(ctx context.Context, prompt string, opts graph.GenerateOptions) (graph.Output, error)
}

// Locker 合并同一 subject 的并发生成，redis.PlanLock 实现
type Locker interface {
	Acquire(ctx context.Context, subjectKey, token string) (bool, error)
	Release(ctx context.Context, subjectKey, token string) (bool, error)
	Unlock(ctx context.Context, subjectKey, token string) error
}

type PlanDeps struct {
	Generator   Generator
	Recs        *mysql.RecommendationRepository
	Communities *mysql.CommunityRepository
	Members     *mysql.MembershipRepository
	Households  *mysql.HouseholdRepository
	Outbox      *mysql.OutboxRepository
	Lock        Locker
	Cache       *redis.GraphCache
}

// PlanService 计划生成与读取：先调用模型，再在单个事务里整体替换图
type PlanService struct {
	PlanDeps
	llm    config.LLMConfig
	plan   config.PlanConfig
	logger *zap.Logger
}

func NewPlanService(deps PlanDeps, llm config.LLMConfig, plan config.PlanConfig, logger *zap.Logger) *PlanService {
	return &PlanService{PlanDeps: deps, llm: llm, plan: plan, logger: logger.Named("plan_service")}
}

type RegenerateRequest struct {
	Scope       graph.Scope
	UserID      uint64
	CommunityID uint64
}

func (s *PlanService) budget(scope graph.Scope) int {
	switch {
	case scope == graph.ScopeCommunity && s.llm.CommunityMaxTokens > 0:
		return s.llm.CommunityMaxTokens
	case scope == graph.ScopeIndividual && s.llm.IndividualMaxTokens > 0:
		return s.llm.IndividualMaxTokens
	}
	return graph.TokenBudget(scope)
}

// GenerateFor 生成并持久化 subject 的计划图。模型调用失败或输出不可用时不修改任何数据
func (s *PlanService) GenerateFor(ctx context.Context, subject graph.Subject, pc *PlanContext) error {
	if err := subject.Validate(); err != nil {
		return fmt.Errorf("%w: %w", pkg.ErrValidation, err)
	}
	log := s.logger.With(zap.String("subject", subject.Key()))

	start := time.Now()
	out, err := s.Generator.GeneratePlan(ctx, buildPrompt(subject, pc), graph.GenerateOptions{
		MaxTokens:   s.budget(subject.Scope),
		Temperature: s.llm.Temperature,
	})
	if err != nil {
		log.Warn("plan generation failed", zap.Error(err))
		if errors.Is(err, pkg.ErrUpstream) {
			return err
		}
		return fmt.Errorf("%w: %w", pkg.ErrUpstream, err)
	}

	plan, err := graph.Normalize(out)
	if err != nil {
		log.Warn("unusable plan output", zap.Error(err))
		return fmt.Errorf("%w: %w", pkg.ErrUpstream, err)
	}

	title, category := metaFor(subject, pc)
	g, err := s.Recs.Reconcile(ctx, subject, mysql.RecommendationMeta{Title: title, Category: category}, plan)
	if err != nil {
		log.Error("plan reconcile failed", zap.Error(err))
		return err
	}
	if err := s.Cache.Delete(ctx, subject); err != nil {
		log.Warn("graph cache invalidation failed", zap.Error(err))
	}

	log.Info("plan generated",
		zap.Uint64("recommendation_id", g.Recommendation.ID),
		zap.Uint64("version", g.Recommendation.Version),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// LoadContext 从存储重新组装上下文
func (s *PlanService) LoadContext(ctx context.Context, subject graph.Subject) (*PlanContext, error) {
	if subject.Scope == graph.ScopeIndividual {
		h, err := s.Households.FindByUser(ctx, subject.ID)
		if err != nil {
			if errors.Is(err, pkg.ErrNotFound) {
				return &PlanContext{}, nil
			}
			return nil, err
		}
		return &PlanContext{Household: snapshotOf(h)}, nil
	}

	c, err := s.Communities.FindByID(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	members, err := s.Members.ListMembers(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(members)+1)
	ids = append(ids, c.LeaderID)
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	households, err := s.Households.FindByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	profile := &CommunityProfile{
		Name:                  c.Name,
		Description:           c.Description,
		ResourceUsage:         c.ResourceUsage,
		Infrastructure:        c.Infrastructure,
		EnvironmentalConcerns: c.EnvironmentalConcerns,
		MemberCount:           len(members),
	}
	for i := range households {
		profile.Households = append(profile.Households, *snapshotOf(&households[i]))
	}
	return &PlanContext{Community: profile}, nil
}

// coalesce 同一 subject 同时只有一个生成在跑；期间到来的请求只打标记，由持锁者用最新数据重跑
func (s *PlanService) coalesce(ctx context.Context, subject graph.Subject, first *PlanContext) error {
	key := subject.Key()
	log := s.logger.With(zap.String("subject", key))

	run := func(i int) error {
		pc := first
		if i > 0 || pc == nil {
			var err error
			if pc, err = s.LoadContext(ctx, subject); err != nil {
				return err
			}
		}
		return s.GenerateFor(ctx, subject, pc)
	}

	token := uuid.NewString()
	ok, err := s.Lock.Acquire(ctx, key, token)
	if err != nil {
		// redis 不可用时退化为直接生成，事务内的行锁仍保证图一致
		log.Warn("plan lock unavailable, generating without coalescing", zap.Error(err))
		return run(0)
	}
	if !ok {
		log.Debug("plan generation coalesced into running one")
		return nil
	}

	for i := 0; ; i++ {
		genErr := run(i)
		rerun, err := s.Lock.Release(ctx, key, token)
		if err != nil {
			log.Warn("plan lock release failed", zap.Error(err))
			// 锁还在的话别让它挂到 TTL 过期；dirty 标记留着，下一个持锁者会多跑一次
			if !errors.Is(err, redis.ErrLockLost) {
				if err := s.Lock.Unlock(ctx, key, token); err != nil {
					log.Warn("plan unlock failed", zap.Error(err))
				}
			}
			return genErr
		}
		if !rerun {
			return genErr
		}
		if i >= s.plan.MaxReruns {
			log.Warn("plan reruns exhausted", zap.Int("runs", i+1))
			if err := s.Lock.Unlock(ctx, key, token); err != nil {
				log.Warn("plan unlock failed", zap.Error(err))
			}
			return genErr
		}
		log.Info("plan changed while generating, running again", zap.Int("run", i+2))
	}
}

// subjectFor 解析调用者对应的 subject；社区计划的重新生成只允许 leader
func (s *PlanService) subjectFor(ctx context.Context, actorID uint64, scope graph.Scope, leaderOnly bool) (graph.Subject, error) {
	if scope == graph.ScopeIndividual {
		return graph.Individual(actorID), nil
	}
	c, err := s.Communities.FindByLeader(ctx, actorID)
	if err == nil {
		return graph.Community(c.ID), nil
	}
	if !errors.Is(err, pkg.ErrNotFound) {
		return graph.Subject{}, err
	}
	if leaderOnly {
		return graph.Subject{}, fmt.Errorf("%w: only a community leader can do this", pkg.ErrForbidden)
	}
	m, err := s.Members.FindMembership(ctx, actorID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return graph.Subject{}, fmt.Errorf("%w: you do not belong to a community", pkg.ErrNotFound)
		}
		return graph.Subject{}, err
	}
	return graph.Community(m.CommunityID), nil
}

// Regenerate 同步重新生成；同一 subject 重复调用是安全的
func (s *PlanService) Regenerate(ctx context.Context, req RegenerateRequest) error {
	subject := graph.Subject{Scope: req.Scope, ID: req.CommunityID}
	if req.Scope == graph.ScopeIndividual {
		subject = graph.Individual(req.UserID)
	} else if req.CommunityID == 0 {
		var err error
		if subject, err = s.subjectFor(ctx, req.UserID, graph.ScopeCommunity, true); err != nil {
			return err
		}
	}
	if err := subject.Validate(); err != nil {
		return fmt.Errorf("%w: %w", pkg.ErrValidation, err)
	}
	return s.coalesce(ctx, subject, nil)
}

// RequestRegeneration 写入 outbox 后立即返回，生成在后台进行
func (s *PlanService) RequestRegeneration(ctx context.Context, actorID uint64, scope graph.Scope) (graph.Subject, error) {
	subject, err := s.subjectFor(ctx, actorID, scope, true)
	if err != nil {
		return graph.Subject{}, err
	}
	msg := communityEvent(subject.ID)
	if subject.Scope == graph.ScopeIndividual {
		msg = individualEvent(subject.ID, nil)
	}
	if err := s.Outbox.Enqueue(ctx, msg); err != nil {
		return graph.Subject{}, err
	}
	return subject, nil
}

func (s *PlanService) HandleIndividual(ctx context.Context, ev event.Event) error {
	var p event.IndividualPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	var first *PlanContext
	if p.Household != nil {
		first = &PlanContext{Household: p.Household}
	}
	return s.coalesce(ctx, graph.Individual(p.UserID), first)
}

func (s *PlanService) HandleCommunity(ctx context.Context, ev event.Event) error {
	var p event.CommunityPayload
	if err := ev.Decode(&p); err != nil {
		return err
	}
	return s.coalesce(ctx, graph.Community(p.CommunityID), nil)
}

// ViewFor 调用者可见的计划：个人计划，或自己领导/所属社区的计划
func (s *PlanService) ViewFor(ctx context.Context, actorID uint64, scope graph.Scope) (*graph.View, error) {
	subject, err := s.subjectFor(ctx, actorID, scope, false)
	if err != nil {
		return nil, err
	}
	return s.GetGraph(ctx, subject)
}

// GetGraph 读路径，cache-aside
func (s *PlanService) GetGraph(ctx context.Context, subject graph.Subject) (*graph.View, error) {
	if v, hit, err := s.Cache.Get(ctx, subject); err != nil {
		s.logger.Warn("graph cache read failed", zap.String("subject", subject.Key()), zap.Error(err))
	} else if hit {
		return v, nil
	}

	// 代数必须在读库之前取
	gen, genErr := s.Cache.Generation(ctx, subject)
	g, err := s.Recs.LoadGraph(ctx, subject)
	if err != nil {
		return nil, err
	}
	v := toView(subject.Scope, g)
	if genErr != nil {
		s.logger.Warn("graph cache generation read failed", zap.String("subject", subject.Key()), zap.Error(genErr))
		return v, nil
	}
	if stored, err := s.Cache.Set(ctx, subject, gen, v); err != nil {
		s.logger.Warn("graph cache write failed", zap.String("subject", subject.Key()), zap.Error(err))
	} else if !stored {
		s.logger.Debug("graph changed while loading, cache not filled", zap.String("subject", subject.Key()))
	}
	return v, nil
}

// UpdateNodeStatus 个人计划的主人或社区计划的 leader 可以更新步骤状态
func (s *PlanService) UpdateNodeStatus(ctx context.Context, actorID, nodeID uint64, status string) (*graph.ViewNode, error) {
	if !graph.ValidNodeStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", pkg.ErrValidation, status)
	}
	node, rec, err := s.Recs.FindNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	var subject graph.Subject
	switch {
	case rec.UserID != nil:
		subject = graph.Individual(*rec.UserID)
		if *rec.UserID != actorID {
			return nil, fmt.Errorf("%w: not your plan", pkg.ErrForbidden)
		}
	case rec.CommunityID != nil:
		subject = graph.Community(*rec.CommunityID)
		c, err := s.Communities.FindByID(ctx, *rec.CommunityID)
		if err != nil {
			return nil, err
		}
		if c.LeaderID != actorID {
			return nil, fmt.Errorf("%w: only the community leader can update this plan", pkg.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("recommendation %d has no subject", rec.ID)
	}

	if err := s.Recs.UpdateNodeStatus(ctx, nodeID, status); err != nil {
		return nil, err
	}
	if err := s.Cache.Delete(ctx, subject); err != nil {
		s.logger.Warn("graph cache invalidation failed", zap.String("subject", subject.Key()), zap.Error(err))
	}
	node.Status = status
	v := toViewNode(*node)
	return &v, nil
}

func toView(scope graph.Scope, g *mysql.Graph) *graph.View {
	v := &graph.View{
		Recommendation: graph.Summary{
			ID:       strconv.FormatUint(g.Recommendation.ID, 10),
			Scope:    scope,
			Title:    g.Recommendation.Title,
			Category: g.Recommendation.Category,
			Status:   g.Recommendation.Status,
		},
		Nodes: make([]graph.ViewNode, 0, len(g.Nodes)),
		Edges: make([]graph.ViewEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		v.Nodes = append(v.Nodes, toViewNode(n))
	}
	for _, e := range g.Edges {
		v.Edges = append(v.Edges, graph.ViewEdge{
			ID:     strconv.FormatUint(e.ID, 10),
			Source: strconv.FormatUint(e.SourceNodeID, 10),
			Target: strconv.FormatUint(e.TargetNodeID, 10),
		})
	}
	return v
}

func toViewNode(n model.Node) graph.ViewNode {
	return graph.ViewNode{
		ID:       strconv.FormatUint(n.ID, 10),
		Label:    n.Label,
		Position: graph.Position{X: n.PositionX, Y: n.PositionY},
		Status:   n.Status,
	}
}
