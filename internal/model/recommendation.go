package model

import "time"

// Recommendation 计划图的归属：UserID 与 CommunityID 恰好一个非空，各自唯一
type Recommendation struct {
	ID          uint64  `gorm:"primaryKey"`
	UserID      *uint64 `gorm:"uniqueIndex"`
	CommunityID *uint64 `gorm:"uniqueIndex"`
	Title       string  `gorm:"size:128;not null"`
	Category    string  `gorm:"size:32;not null"`
	Status      string  `gorm:"size:16;not null;default:ACTIVE"`
	// Version 每次重建 +1，只用于并发观测
	Version   uint64 `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Node struct {
	ID               uint64  `gorm:"primaryKey"`
	RecommendationID uint64  `gorm:"not null;index"`
	ModelKey         string  `gorm:"size:64"`
	Label            string  `gorm:"type:text;not null"`
	PositionX        float64 `gorm:"not null;default:0"`
	PositionY        float64 `gorm:"not null;default:0"`
	Status           string  `gorm:"size:16;not null;default:PENDING"`
	CreatedAt        time.Time
}

func (Node) TableName() string { return "nodes" }

type Edge struct {
	ID               uint64 `gorm:"primaryKey"`
	RecommendationID uint64 `gorm:"not null;index"`
	SourceNodeID     uint64 `gorm:"not null"`
	TargetNodeID     uint64 `gorm:"not null"`
	ModelKey         string `gorm:"size:64"`
	CreatedAt        time.Time
}

func (Edge) TableName() string { return "edges" }
