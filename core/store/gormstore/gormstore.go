// Package gormstore 用 GORM 在 PostgreSQL 中保存账号 user data。
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	coreerrors "github.com/dnslin/owncloud-desktop/core/errors"
	"github.com/dnslin/owncloud-desktop/core/store"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
)

// UserData 是账号下的一条键值。
type UserData struct {
	Account   string    `gorm:"column:account_name;primaryKey;size:255"`
	Key       string    `gorm:"column:data_key;primaryKey;size:128"`
	Value     string    `gorm:"column:data_value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名。
func (UserData) TableName() string {
	return "account_user_data"
}

// Open 打开数据库连接并设置连接池。
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)
	return db, nil
}

// AccountStore 实现 store.AccountStore。
type AccountStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.AccountStore = (*AccountStore)(nil)

// NewAccountStore 创建 AccountStore。
func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db, now: time.Now}
}

// Migrate 自动建表。
func (s *AccountStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&UserData{})
}

func upsert(tx *gorm.DB, row *UserData) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_name"}, {Name: "data_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data_value", "updated_at"}),
	}).Create(row)
}

func (s *AccountStore) SetUserData(ctx context.Context, account, key, value string) error {
	row := &UserData{Account: account, Key: key, Value: value, UpdatedAt: s.now().UTC()}
	if err := upsert(s.db.WithContext(ctx), row).Error; err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "gormstore: 写入账号数据失败", err)
	}
	return nil
}

func (s *AccountStore) GetUserData(ctx context.Context, account, key string) (string, error) {
	var row UserData
	err := s.db.WithContext(ctx).
		Where("account_name = ? AND data_key = ?", account, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", store.ErrUserDataNotFound
	}
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "gormstore: 读取账号数据失败", err)
	}
	return row.Value, nil
}

// DeleteAccount 删除账号下的所有数据。
func (s *AccountStore) DeleteAccount(ctx context.Context, account string) error {
	return s.db.WithContext(ctx).Where("account_name = ?", account).Delete(&UserData{}).Error
}
