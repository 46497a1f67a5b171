package mysql

import (
	"context"
	"time"

	"Green_Community/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HouseholdRepository struct {
	DB *gorm.DB
}

func NewHouseholdRepository(db *gorm.DB) *HouseholdRepository {
	return &HouseholdRepository{DB: db}
}

// Upsert 按 user_id 覆盖家庭数据，并在同一事务写入 outbox
func (r *HouseholdRepository) Upsert(ctx context.Context, h *model.Household, msgs ...OutboxMessage) error {
	h.UpdatedAt = time.Now()
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"members", "energy_usage", "water_usage", "transportation", "waste_habits", "goals", "updated_at",
			}),
		}).Create(h).Error; err != nil {
			return err
		}
		return insertOutbox(tx, msgs...)
	})
	return storage(err)
}

func (r *HouseholdRepository) FindByUser(ctx context.Context, userID uint64) (*model.Household, error) {
	var h model.Household
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&h).Error; err != nil {
		return nil, notFound(err, "household")
	}
	return &h, nil
}

func (r *HouseholdRepository) FindByUsers(ctx context.Context, userIDs []uint64) ([]model.Household, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var list []model.Household
	err := r.DB.WithContext(ctx).Where("user_id IN ?", userIDs).Order("user_id asc").Find(&list).Error
	return list, storage(err)
}
