// Package profilesync 把单个账号的用户信息、配额与头像同步到本地存储。
package profilesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnslin/owncloud-desktop/core/httpclient"
	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/owncloud"
	"github.com/dnslin/owncloud-desktop/core/store"
)

// Stage 是同步流程所处的阶段，只会单向推进。
type Stage int

const (
	StageUserInfo Stage = iota + 1
	StageAccountWrite
	StageQuota
	StageAvatar
	StagePersist
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageUserInfo:
		return "user_info"
	case StageAccountWrite:
		return "account_write"
	case StageQuota:
		return "quota"
	case StageAvatar:
		return "avatar"
	case StagePersist:
		return "persist"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// RemoteClient 是一个已鉴权账号的远端接口。
type RemoteClient interface {
	GetUserInfo(ctx context.Context) (*model.UserInfo, error)
	GetUserQuota(ctx context.Context, accountName string) (*model.UserQuota, error)
	GetAvatar(ctx context.Context, dimension int, etag string) (*model.Avatar, error)
}

var _ RemoteClient = (*owncloud.Client)(nil)

// ClientProvider 按账号名返回远端客户端。
type ClientProvider interface {
	Client(account string) (RemoteClient, error)
}

// ClientProviderFunc 适配普通函数。
type ClientProviderFunc func(account string) (RemoteClient, error)

func (f ClientProviderFunc) Client(account string) (RemoteClient, error) { return f(account) }

// Observer 接收阶段变化，task.Manager 用它记录进度。
type Observer interface {
	OnStage(account string, stage Stage)
}

// ObserverFunc 适配普通函数。
type ObserverFunc func(account string, stage Stage)

func (f ObserverFunc) OnStage(account string, stage Stage) { f(account, stage) }

// Options 是 Step 的显式配置。
type Options struct {
	// AvatarDimension 头像像素尺寸，必须为正数。
	AvatarDimension int
	Logger          httpclient.Logger
	Observer        Observer
	Now             func() time.Time
}

// Step 同步单个账号的资料。同一账号不能并发执行，由调用方保证。
type Step struct {
	clients  ClientProvider
	accounts store.AccountStore
	profiles store.ProfileRepository
	avatars  store.AvatarCache
	opts     Options
}

// NewStep 创建 Step。
func NewStep(clients ClientProvider, accounts store.AccountStore, profiles store.ProfileRepository, avatars store.AvatarCache, opts Options) (*Step, error) {
	if clients == nil || accounts == nil || profiles == nil || avatars == nil {
		return nil, errors.New("profilesync: 依赖不完整")
	}
	if opts.AvatarDimension <= 0 {
		return nil, fmt.Errorf("profilesync: 头像尺寸无效: %d", opts.AvatarDimension)
	}
	if opts.Logger == nil {
		opts.Logger = httpclient.NopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Step{clients: clients, accounts: accounts, profiles: profiles, avatars: avatars, opts: opts}, nil
}

// Execute 执行一次同步并返回持久化后的资料。
// 返回的错误总是 *Error；账号数据写入在后续失败时不会回滚。
func (s *Step) Execute(ctx context.Context, account string) (profile *model.UserProfile, err error) {
	stage := StageUserInfo
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Errorf("同步 %s 在 %s 阶段 panic: %v", account, stage, r)
			profile, err = nil, fail(KindUnexpected, stage, fmt.Errorf("panic: %v", r))
		}
	}()
	enter := func(next Stage) {
		stage = next
		if s.opts.Observer != nil {
			s.opts.Observer.OnStage(account, next)
		}
	}

	enter(StageUserInfo)
	remote, err := s.clients.Client(account)
	if err != nil {
		return nil, fail(KindUnexpected, stage, err)
	}
	info, err := remote.GetUserInfo(ctx)
	if err != nil || info == nil {
		s.opts.Logger.Errorf("获取 %s 用户信息失败: %v", account, err)
		return nil, fail(KindProfileUnavailable, stage, err)
	}
	s.opts.Logger.Debugf("用户信息: id=%s name=%s", info.ID, info.DisplayName)

	enter(StageAccountWrite)
	if err := s.accounts.SetUserData(ctx, account, store.KeyDisplayName, info.DisplayName); err != nil {
		return nil, fail(KindUnexpected, stage, err)
	}
	if err := s.accounts.SetUserData(ctx, account, store.KeyUserID, info.ID); err != nil {
		return nil, fail(KindUnexpected, stage, err)
	}
	profile = model.NewUserProfile(account, *info)

	enter(StageQuota)
	quota, err := remote.GetUserQuota(ctx, account)
	if err != nil || quota == nil {
		s.opts.Logger.Errorf("获取 %s 配额失败: %v", account, err)
		return nil, fail(KindQuotaUnavailable, stage, err)
	}
	q := *quota
	profile.Quota = &q

	enter(StageAvatar)
	if err := s.syncAvatar(ctx, remote, account, profile); err != nil {
		return nil, fail(KindUnexpected, stage, err)
	}

	enter(StagePersist)
	profile.SyncedAt = s.opts.Now()
	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, fail(KindUnexpected, stage, err)
	}

	enter(StageDone)
	s.opts.Logger.Infof("账号 %s 资料同步完成", account)
	return profile, nil
}

// syncAvatar 只有协作方写入失败才返回错误，远端头像错误在此吸收。
func (s *Step) syncAvatar(ctx context.Context, remote RemoteClient, account string, profile *model.UserProfile) error {
	previous := s.previousAvatar(ctx, account)
	etag := ""
	if previous != nil {
		etag = previous.ETag
	}

	avatar, err := remote.GetAvatar(ctx, s.opts.AvatarDimension, etag)
	switch {
	case err == nil && avatar != nil:
		key, err := s.avatars.AddAvatarToCache(ctx, account, avatar.Data, s.opts.AvatarDimension)
		if err != nil {
			return err
		}
		profile.Avatar = &model.UserAvatar{CacheKey: key, MimeType: avatar.MimeType, ETag: avatar.ETag}
	case errors.Is(err, owncloud.ErrNotFound):
		s.opts.Logger.Infof("账号 %s 没有头像，清除缓存", account)
		if err := s.profiles.DeleteAvatar(ctx, account); err != nil {
			return err
		}
		if err := s.avatars.RemoveAvatarFromCache(ctx, account); err != nil {
			return err
		}
	default:
		switch {
		case err == nil:
			s.opts.Logger.Infof("账号 %s 头像响应为空，保留原头像", account)
		case errors.Is(err, owncloud.ErrNotModified):
			s.opts.Logger.Debugf("账号 %s 头像未变化", account)
		default:
			s.opts.Logger.Infof("获取 %s 头像失败，保留原头像: %v", account, err)
		}
		if previous != nil {
			a := *previous
			profile.Avatar = &a
		}
	}
	return nil
}

// previousAvatar 读取已存资料中的头像引用，读取失败视为没有。
func (s *Step) previousAvatar(ctx context.Context, account string) *model.UserAvatar {
	prev, err := s.profiles.Get(ctx, account)
	if err != nil {
		if !errors.Is(err, store.ErrProfileNotFound) {
			s.opts.Logger.Errorf("读取 %s 已存资料失败: %v", account, err)
		}
		return nil
	}
	if prev == nil {
		return nil
	}
	return prev.Avatar
}
