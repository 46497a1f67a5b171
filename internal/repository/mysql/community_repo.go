package mysql

import (
	"context"

	"Green_Community/internal/model"

	"gorm.io/gorm"
)

type CommunityRepository struct {
	DB *gorm.DB
}

func NewCommunityRepository(db *gorm.DB) *CommunityRepository {
	return &CommunityRepository{DB: db}
}

// Create 创建社区并在同一事务中写入 outbox；leader_id / name 唯一索引冲突视为 Conflict
func (r *CommunityRepository) Create(ctx context.Context, c *model.Community, events func(*model.Community) []OutboxMessage) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var led int64
		if err := tx.Model(&model.Community{}).Where("leader_id = ?", c.LeaderID).Count(&led).Error; err != nil {
			return err
		}
		if led > 0 {
			return conflictf("user already leads a community")
		}
		if err := tx.Create(c).Error; err != nil {
			return conflict(err, "community name taken or leader already has a community")
		}
		return insertOutbox(tx, events(c)...)
	})
	return storage(err)
}

// Update 只更新描述类字段
func (r *CommunityRepository) Update(ctx context.Context, leaderID uint64, fields map[string]any, events func(*model.Community) []OutboxMessage) (*model.Community, error) {
	var c model.Community
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("leader_id = ?", leaderID).First(&c).Error; err != nil {
			return notFound(err, "community")
		}
		if err := tx.Model(&c).Updates(fields).Error; err != nil {
			return conflict(err, "community name taken")
		}
		return insertOutbox(tx, events(&c)...)
	})
	if err != nil {
		return nil, storage(err)
	}
	return &c, nil
}

func (r *CommunityRepository) FindByID(ctx context.Context, id uint64) (*model.Community, error) {
	var c model.Community
	if err := r.DB.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, "community")
	}
	return &c, nil
}

func (r *CommunityRepository) FindByLeader(ctx context.Context, leaderID uint64) (*model.Community, error) {
	var c model.Community
	if err := r.DB.WithContext(ctx).Where("leader_id = ?", leaderID).First(&c).Error; err != nil {
		return nil, notFound(err, "community")
	}
	return &c, nil
}

func (r *CommunityRepository) List(ctx context.Context, offset, limit int) ([]model.Community, error) {
	var list []model.Community
	err := r.DB.WithContext(ctx).Order("id desc").Offset(offset).Limit(limit).Find(&list).Error
	return list, storage(err)
}
