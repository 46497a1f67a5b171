package model

import "time"

const (
	OutboxPending int8 = 0
	OutboxSent    int8 = 1
	OutboxFailed  int8 = 2
)

// EventOutbox 事件发件箱，与业务变更在同一事务中写入
type EventOutbox struct {
	ID         uint64 `gorm:"primaryKey"`
	Topic      string `gorm:"size:64;not null"`
	SubjectKey string `gorm:"size:64;not null;index"`
	Payload    string `gorm:"type:text;not null"`
	Status     int8   `gorm:"not null;default:0;index;comment:'0=pending,1=sent,2=failed'"`
	Retry      int    `gorm:"not null;default:0"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (EventOutbox) TableName() string { return "event_outbox" }
