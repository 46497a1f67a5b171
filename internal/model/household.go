package model

import "time"

// Household 居民提交的家庭数据快照，每个用户一条
type Household struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	UserID         uint64    `gorm:"not null;uniqueIndex" json:"user_id"`
	Members        int       `gorm:"not null;default:1" json:"members"`
	EnergyUsage    string    `gorm:"type:text" json:"energy_usage"`
	WaterUsage     string    `gorm:"type:text" json:"water_usage"`
	Transportation string    `gorm:"type:text" json:"transportation"`
	WasteHabits    string    `gorm:"type:text" json:"waste_habits"`
	Goals          string    `gorm:"type:text" json:"goals"`
	UpdatedAt      time.Time `json:"updated_at"`
}
