// Package store 定义会话、账号数据、资料与头像缓存的持久化接口。
package store

import (
	"context"

	coreerrors "github.com/dnslin/owncloud-desktop/core/errors"
	"github.com/dnslin/owncloud-desktop/core/model"
)

// 账号 user data 的标准键。
const (
	KeyDisplayName = "display_name"
	KeyUserID      = "user_id"
)

var (
	// ErrProfileNotFound 表示资料库中没有该账号。
	ErrProfileNotFound = coreerrors.New(coreerrors.ErrCodeNotFound, "store: 未找到用户资料")
	// ErrUserDataNotFound 表示账号下不存在该键。
	ErrUserDataNotFound = coreerrors.New(coreerrors.ErrCodeNotFound, "store: 未找到账号数据")
	// ErrInvalidProfile 表示写入的资料缺少账号名。
	ErrInvalidProfile = coreerrors.New(coreerrors.ErrCodeInvalidArgument, "store: 资料缺少账号名")
	// ErrAvatarNotFound 表示头像缓存中没有该键。
	ErrAvatarNotFound = coreerrors.New(coreerrors.ErrCodeNotFound, "store: 未找到头像缓存")
)

// SessionStore 抽象会话存储，由业务方约定具体 Session 结构体。
type SessionStore[T any] interface {
	SaveSession(session T) error
	LoadSession() (T, error)
	ClearSession() error
}

// AccountStore 是账号级别的键值数据存储。
type AccountStore interface {
	SetUserData(ctx context.Context, account, key, value string) error
	GetUserData(ctx context.Context, account, key string) (string, error)
}

// ProfileRepository 持有各账号的 UserProfile，Update 为整体覆盖。
type ProfileRepository interface {
	Get(ctx context.Context, account string) (*model.UserProfile, error)
	List(ctx context.Context) ([]*model.UserProfile, error)
	Update(ctx context.Context, profile *model.UserProfile) error
	// DeleteAvatar 仅清除头像引用，资料其余字段保留。
	DeleteAvatar(ctx context.Context, account string) error
	Delete(ctx context.Context, account string) error
}

// AvatarCache 是头像缩略图缓存。
type AvatarCache interface {
	// AddAvatarToCache 写入头像并返回缓存键。
	AddAvatarToCache(ctx context.Context, account string, data []byte, dimension int) (string, error)
	// RemoveAvatarFromCache 删除该账号所有尺寸的头像。
	RemoveAvatarFromCache(ctx context.Context, account string) error
	// GetAvatar 读取缓存的头像及其 MIME 类型。
	GetAvatar(ctx context.Context, key string) ([]byte, string, error)
}
