package model

import "time"

// Community 每个 leader 最多一个社区（uk leader_id）
type Community struct {
	ID                    uint64    `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description           string    `gorm:"type:text" json:"description"`
	LeaderID              uint64    `gorm:"not null;uniqueIndex" json:"leader_id"`
	ResourceUsage         string    `gorm:"type:text" json:"resource_usage"`
	Infrastructure        string    `gorm:"type:text" json:"infrastructure"`
	EnvironmentalConcerns string    `gorm:"type:text" json:"environmental_concerns"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Membership 一个居民在全系统只能属于一个社区（uk user_id）
type Membership struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	UserID      uint64    `gorm:"not null;uniqueIndex" json:"user_id"`
	CommunityID uint64    `gorm:"not null;index" json:"community_id"`
	JoinedAt    time.Time `json:"joined_at"`
}

func (Membership) TableName() string { return "memberships" }

// 入会申请状态
const (
	RequestPending  = "PENDING"
	RequestApproved = "APPROVED"
	RequestRejected = "REJECTED"
)

// JoinRequest 入会申请，只做状态流转，不物理删除
// PendingUserID 在 PENDING 时等于 UserID，处理后置 NULL；唯一索引保证每个用户最多一条 PENDING
type JoinRequest struct {
	ID            uint64     `gorm:"primaryKey" json:"id"`
	UserID        uint64     `gorm:"not null;index" json:"user_id"`
	CommunityID   uint64     `gorm:"not null;index" json:"community_id"`
	Status        string     `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	PendingUserID *uint64    `gorm:"uniqueIndex" json:"-"`
	RequestedAt   time.Time  `json:"requested_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`
	ResolvedBy    *uint64    `json:"resolved_by"`
}

func (JoinRequest) TableName() string { return "join_requests" }
