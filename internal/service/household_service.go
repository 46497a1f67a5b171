package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Green_Community/internal/model"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"

	"go.uber.org/zap"
)

type HouseholdInput struct {
	Members        int    `json:"members"`
	EnergyUsage    string `json:"energy_usage"`
	WaterUsage     string `json:"water_usage"`
	Transportation string `json:"transportation"`
	WasteHabits    string `json:"waste_habits"`
	Goals          string `json:"goals"`
}

type HouseholdService struct {
	repo        *mysql.HouseholdRepository
	communities *mysql.CommunityRepository
	members     *mysql.MembershipRepository
	logger      *zap.Logger
}

func NewHouseholdService(repo *mysql.HouseholdRepository, communities *mysql.CommunityRepository,
	members *mysql.MembershipRepository, logger *zap.Logger) *HouseholdService {
	return &HouseholdService{repo: repo, communities: communities, members: members, logger: logger.Named("household_service")}
}

// SubmitHousehold 保存家庭数据，并触发个人计划（以及所在社区计划）的重新生成
func (s *HouseholdService) SubmitHousehold(ctx context.Context, userID uint64, in HouseholdInput) (*model.Household, error) {
	if in.Members < 1 {
		return nil, fmt.Errorf("%w: members must be at least 1", pkg.ErrValidation)
	}
	if strings.TrimSpace(in.EnergyUsage+in.WaterUsage+in.Transportation+in.WasteHabits) == "" {
		return nil, fmt.Errorf("%w: at least one usage field is required", pkg.ErrValidation)
	}

	h := &model.Household{
		UserID:         userID,
		Members:        in.Members,
		EnergyUsage:    in.EnergyUsage,
		WaterUsage:     in.WaterUsage,
		Transportation: in.Transportation,
		WasteHabits:    in.WasteHabits,
		Goals:          in.Goals,
	}

	msgs := []mysql.OutboxMessage{individualEvent(userID, h)}
	communityID, err := s.communityOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	if communityID != 0 {
		msgs = append(msgs, communityEvent(communityID))
	}

	if err := s.repo.Upsert(ctx, h, msgs...); err != nil {
		return nil, err
	}
	s.logger.Info("household submitted", zap.Uint64("user_id", userID), zap.Uint64("community_id", communityID))
	// upsert 冲突时 h.ID 不可靠，重新读取
	return s.repo.FindByUser(ctx, userID)
}

func (s *HouseholdService) Get(ctx context.Context, userID uint64) (*model.Household, error) {
	return s.repo.FindByUser(ctx, userID)
}

// communityOf 用户领导或所属的社区，没有返回 0
func (s *HouseholdService) communityOf(ctx context.Context, userID uint64) (uint64, error) {
	if c, err := s.communities.FindByLeader(ctx, userID); err == nil {
		return c.ID, nil
	} else if !errors.Is(err, pkg.ErrNotFound) {
		return 0, err
	}
	m, err := s.members.FindMembership(ctx, userID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return m.CommunityID, nil
}
