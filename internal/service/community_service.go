package service

import (
	"context"
	"fmt"
	"strings"

	"Green_Community/internal/model"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"

	"go.uber.org/zap"
)

type CommunityService struct {
	repo   *mysql.CommunityRepository
	logger *zap.Logger
}

func NewCommunityService(repo *mysql.CommunityRepository, logger *zap.Logger) *CommunityService {
	return &CommunityService{repo: repo, logger: logger.Named("community_service")}
}

// CommunityInput 社区的描述类字段
type CommunityInput struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	ResourceUsage         string `json:"resource_usage"`
	Infrastructure        string `json:"infrastructure"`
	EnvironmentalConcerns string `json:"environmental_concerns"`
}

func (s *CommunityService) CreateCommunity(ctx context.Context, leaderID uint64, in CommunityInput) (*model.Community, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: community name required", pkg.ErrValidation)
	}
	if len(name) > 64 {
		return nil, fmt.Errorf("%w: community name too long", pkg.ErrValidation)
	}

	c := &model.Community{
		Name:                  name,
		Description:           in.Description,
		LeaderID:              leaderID,
		ResourceUsage:         in.ResourceUsage,
		Infrastructure:        in.Infrastructure,
		EnvironmentalConcerns: in.EnvironmentalConcerns,
	}
	err := s.repo.Create(ctx, c, func(c *model.Community) []mysql.OutboxMessage {
		return []mysql.OutboxMessage{communityEvent(c.ID)}
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("community created", zap.Uint64("community_id", c.ID), zap.Uint64("leader_id", leaderID))
	return c, nil
}

// UpdateCommunity leader 修改自己的社区；空 name 表示不改名
func (s *CommunityService) UpdateCommunity(ctx context.Context, leaderID uint64, in CommunityInput) (*model.Community, error) {
	fields := map[string]any{
		"description":            in.Description,
		"resource_usage":         in.ResourceUsage,
		"infrastructure":         in.Infrastructure,
		"environmental_concerns": in.EnvironmentalConcerns,
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		if len(name) > 64 {
			return nil, fmt.Errorf("%w: community name too long", pkg.ErrValidation)
		}
		fields["name"] = name
	}
	return s.repo.Update(ctx, leaderID, fields, func(c *model.Community) []mysql.OutboxMessage {
		return []mysql.OutboxMessage{communityEvent(c.ID)}
	})
}

func (s *CommunityService) GetCommunity(ctx context.Context, id uint64) (*model.Community, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *CommunityService) GetByLeader(ctx context.Context, leaderID uint64) (*model.Community, error) {
	return s.repo.FindByLeader(ctx, leaderID)
}

func (s *CommunityService) ListCommunities(ctx context.Context, page, size int) ([]model.Community, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 50 {
		size = 20
	}

	offset := (page - 1) * size
	return s.repo.List(ctx, offset, size)
}
