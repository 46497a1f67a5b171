package mysql

import (
	"context"
	"fmt"
	"time"

	"Green_Community/internal/model"
	"Green_Community/internal/pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MembershipRepository 入会申请与成员关系
type MembershipRepository struct {
	DB *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) *MembershipRepository {
	return &MembershipRepository{DB: db}
}

// CreateRequest 提交入会申请。pending_user_id 唯一索引是“每人最多一条 PENDING”的最终保障，
// 事务内的检查只是为了给出更准确的错误
func (r *MembershipRepository) CreateRequest(ctx context.Context, userID, communityID uint64) (*model.JoinRequest, error) {
	var req model.JoinRequest
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Community
		if err := tx.First(&c, communityID).Error; err != nil {
			return notFound(err, "community")
		}
		if c.LeaderID == userID {
			return conflictf("leader cannot join own community")
		}

		var members int64
		if err := tx.Model(&model.Membership{}).Where("user_id = ?", userID).Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return conflictf("already a member of a community")
		}

		var pending int64
		if err := tx.Model(&model.JoinRequest{}).Where("pending_user_id = ?", userID).Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return conflictf("a pending request already exists")
		}

		uid := userID
		req = model.JoinRequest{
			UserID:        userID,
			CommunityID:   communityID,
			Status:        model.RequestPending,
			PendingUserID: &uid,
			RequestedAt:   time.Now(),
		}
		return conflict(tx.Create(&req).Error, "a pending request already exists")
	})
	if err != nil {
		return nil, storage(err)
	}
	return &req, nil
}

// Resolve 处理申请：NotFound -> Forbidden -> AlreadyResolved 依次判断。
// 状态迁移、成员写入、outbox 在同一事务，任一失败整体回滚
func (r *MembershipRepository) Resolve(ctx context.Context, requestID, actorID uint64, status string,
	events func(*model.JoinRequest) []OutboxMessage) (*model.JoinRequest, error) {
	var req model.JoinRequest
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, requestID).Error; err != nil {
			return notFound(err, "join request")
		}

		var c model.Community
		if err := tx.First(&c, req.CommunityID).Error; err != nil {
			return notFound(err, "community")
		}
		if c.LeaderID != actorID {
			return fmt.Errorf("%w: only the community leader can resolve requests", pkg.ErrForbidden)
		}
		if req.Status != model.RequestPending {
			return pkg.ErrAlreadyResolved
		}

		now := time.Now()
		// CAS：只有仍为 PENDING 的行才会被更新
		res := tx.Model(&model.JoinRequest{}).
			Where("id = ? AND status = ?", req.ID, model.RequestPending).
			Updates(map[string]any{
				"status":          status,
				"pending_user_id": nil,
				"resolved_at":     now,
				"resolved_by":     actorID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return pkg.ErrAlreadyResolved
		}
		req.Status = status
		req.PendingUserID = nil
		req.ResolvedAt = &now
		req.ResolvedBy = &actorID

		if status == model.RequestApproved {
			m := &model.Membership{UserID: req.UserID, CommunityID: req.CommunityID, JoinedAt: now}
			if err := tx.Create(m).Error; err != nil {
				return conflict(err, "user already belongs to a community")
			}
		}
		return insertOutbox(tx, events(&req)...)
	})
	if err != nil {
		return nil, storage(err)
	}
	return &req, nil
}

// RemoveMember leader 移除成员；申请记录保持不变
func (r *MembershipRepository) RemoveMember(ctx context.Context, leaderID, memberID uint64,
	events func(*model.Membership) []OutboxMessage) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Membership
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", memberID).First(&m).Error; err != nil {
			return notFound(err, "membership")
		}
		var c model.Community
		if err := tx.First(&c, m.CommunityID).Error; err != nil {
			return notFound(err, "community")
		}
		if c.LeaderID != leaderID {
			return fmt.Errorf("%w: member does not belong to your community", pkg.ErrForbidden)
		}
		if err := tx.Delete(&m).Error; err != nil {
			return err
		}
		return insertOutbox(tx, events(&m)...)
	})
	return storage(err)
}

// Leave 成员主动退出
func (r *MembershipRepository) Leave(ctx context.Context, userID uint64, events func(*model.Membership) []OutboxMessage) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Membership
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&m).Error; err != nil {
			return notFound(err, "membership")
		}
		if err := tx.Delete(&m).Error; err != nil {
			return err
		}
		return insertOutbox(tx, events(&m)...)
	})
	return storage(err)
}

func (r *MembershipRepository) FindRequest(ctx context.Context, id uint64) (*model.JoinRequest, error) {
	var req model.JoinRequest
	if err := r.DB.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, notFound(err, "join request")
	}
	return &req, nil
}

func (r *MembershipRepository) FindMembership(ctx context.Context, userID uint64) (*model.Membership, error) {
	var m model.Membership
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		return nil, notFound(err, "membership")
	}
	return &m, nil
}

func (r *MembershipRepository) ListPending(ctx context.Context, communityID uint64) ([]model.JoinRequest, error) {
	var list []model.JoinRequest
	err := r.DB.WithContext(ctx).
		Where("community_id = ? AND status = ?", communityID, model.RequestPending).
		Order("id asc").
		Find(&list).Error
	return list, storage(err)
}

func (r *MembershipRepository) ListByUser(ctx context.Context, userID uint64) ([]model.JoinRequest, error) {
	var list []model.JoinRequest
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id desc").Find(&list).Error
	return list, storage(err)
}

func (r *MembershipRepository) ListMembers(ctx context.Context, communityID uint64) ([]model.Membership, error) {
	var list []model.Membership
	err := r.DB.WithContext(ctx).Where("community_id = ?", communityID).Order("id asc").Find(&list).Error
	return list, storage(err)
}
