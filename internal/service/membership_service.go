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

// Decision 申请的处理结果
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", fmt.Errorf("%w: decision must be APPROVE or REJECT", pkg.ErrValidation)
}

type MembershipService struct {
	repo        *mysql.MembershipRepository
	communities *mysql.CommunityRepository
	logger      *zap.Logger
}

func NewMembershipService(repo *mysql.MembershipRepository, communities *mysql.CommunityRepository, logger *zap.Logger) *MembershipService {
	return &MembershipService{repo: repo, communities: communities, logger: logger.Named("membership_service")}
}

func (s *MembershipService) SubmitRequest(ctx context.Context, userID, communityID uint64) (*model.JoinRequest, error) {
	req, err := s.repo.CreateRequest(ctx, userID, communityID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("join request submitted",
		zap.Uint64("request_id", req.ID),
		zap.Uint64("user_id", userID),
		zap.Uint64("community_id", communityID),
	)
	return req, nil
}

// ResolveRequest 批准时同一事务写入成员关系、社区计划重建事件和通知事件；拒绝只写通知事件
func (s *MembershipService) ResolveRequest(ctx context.Context, requestID, actorID uint64, decision Decision) (*model.JoinRequest, error) {
	status := model.RequestRejected
	switch decision {
	case DecisionApprove:
		status = model.RequestApproved
	case DecisionReject:
	default:
		return nil, fmt.Errorf("%w: decision must be APPROVE or REJECT", pkg.ErrValidation)
	}

	req, err := s.repo.Resolve(ctx, requestID, actorID, status, func(r *model.JoinRequest) []mysql.OutboxMessage {
		msgs := []mysql.OutboxMessage{resolvedEvent(r)}
		if r.Status == model.RequestApproved {
			msgs = append(msgs, communityEvent(r.CommunityID))
		}
		return msgs
	})
	if err != nil {
		if errors.Is(err, pkg.ErrAlreadyResolved) {
			s.logger.Info("join request already resolved", zap.Uint64("request_id", requestID))
		}
		return nil, err
	}
	s.logger.Info("join request resolved",
		zap.Uint64("request_id", req.ID),
		zap.String("status", req.Status),
		zap.Uint64("resolved_by", actorID),
	)
	return req, nil
}

// RemoveMember 只删除成员关系，申请历史保留
func (s *MembershipService) RemoveMember(ctx context.Context, leaderID, memberID uint64) error {
	err := s.repo.RemoveMember(ctx, leaderID, memberID, func(m *model.Membership) []mysql.OutboxMessage {
		return []mysql.OutboxMessage{communityEvent(m.CommunityID)}
	})
	if err != nil {
		return err
	}
	s.logger.Info("member removed", zap.Uint64("leader_id", leaderID), zap.Uint64("member_id", memberID))
	return nil
}

func (s *MembershipService) Leave(ctx context.Context, userID uint64) error {
	return s.repo.Leave(ctx, userID, func(m *model.Membership) []mysql.OutboxMessage {
		return []mysql.OutboxMessage{communityEvent(m.CommunityID)}
	})
}

// ListPending leader 查看自己社区待处理的申请
func (s *MembershipService) ListPending(ctx context.Context, leaderID uint64) ([]model.JoinRequest, error) {
	c, err := s.communities.FindByLeader(ctx, leaderID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: you do not lead a community", pkg.ErrForbidden)
		}
		return nil, err
	}
	return s.repo.ListPending(ctx, c.ID)
}

func (s *MembershipService) ListMembers(ctx context.Context, communityID uint64) ([]model.Membership, error) {
	if _, err := s.communities.FindByID(ctx, communityID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, communityID)
}

// GetRequest 申请人或目标社区的 leader 可见，其他人一律 NotFound
func (s *MembershipService) GetRequest(ctx context.Context, requestID, viewerID uint64) (*model.JoinRequest, error) {
	req, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.UserID == viewerID {
		return req, nil
	}
	c, err := s.communities.FindByID(ctx, req.CommunityID)
	if err != nil {
		return nil, err
	}
	if c.LeaderID != viewerID {
		return nil, fmt.Errorf("%w: join request %d", pkg.ErrNotFound, requestID)
	}
	return req, nil
}

func (s *MembershipService) ListMyRequests(ctx context.Context, userID uint64) ([]model.JoinRequest, error) {
	return s.repo.ListByUser(ctx, userID)
}
