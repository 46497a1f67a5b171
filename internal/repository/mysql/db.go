package mysql

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Green_Community/internal/config"
	"Green_Community/internal/model"
	"Green_Community/internal/pkg"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// InitDB 连接 MySQL 并设置连接池
func InitDB(cfg config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// AutoMigrate 建表，main 与测试共用同一份 schema
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Community{},
		&model.Membership{},
		&model.JoinRequest{},
		&model.Household{},
		&model.Recommendation{},
		&model.Node{},
		&model.Edge{},
		&model.EventOutbox{},
	)
}

// OutboxMessage 待写入发件箱的事件
type OutboxMessage struct {
	Topic      string
	SubjectKey string
	Payload    any
}

// insertOutbox 必须在业务事务内调用
func insertOutbox(tx *gorm.DB, msgs ...OutboxMessage) error {
	now := time.Now()
	for _, m := range msgs {
		payload, err := json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("marshal outbox payload for %s: %w", m.Topic, err)
		}
		ob := &model.EventOutbox{
			Topic:      m.Topic,
			SubjectKey: m.SubjectKey,
			Payload:    string(payload),
			Status:     model.OutboxPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(ob).Error; err != nil {
			return err
		}
	}
	return nil
}

// notFound 把 gorm.ErrRecordNotFound 转成业务 NotFound
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", pkg.ErrNotFound, what)
	}
	return storage(err)
}

// conflict 把唯一索引冲突转成业务 Conflict
func conflict(err error, what string) error {
	if pkg.IsDuplicateKey(err) {
		return fmt.Errorf("%w: %s", pkg.ErrConflict, what)
	}
	return storage(err)
}

// storage 业务分类以外的存储错误统一归为 Upstream
func storage(err error) error {
	if err == nil || pkg.ErrorCode(err) != "INTERNAL" {
		return err
	}
	return fmt.Errorf("%w: %w", pkg.ErrUpstream, err)
}

func conflictf(msg string) error {
	return fmt.Errorf("%w: %s", pkg.ErrConflict, msg)
}
