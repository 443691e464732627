// Package model 定义账号资料同步涉及的领域模型。
package model

import "time"

// UserInfo 是服务端返回的用户基本信息。
type UserInfo struct {
	ID          string
	DisplayName string
	Email       string
}

// UserQuota 描述用户存储配额快照，附加到 UserProfile 后不再修改。
type UserQuota struct {
	Available int64   // 可用字节数，负数为服务端哨兵值
	Relative  float64 // 已用百分比，保留两位小数
	Total     int64
	Used      int64
}

// Unlimited 判断服务端是否未限制配额。
func (q UserQuota) Unlimited() bool {
	return q.Available == QuotaUnlimited
}

// WebDAV quota-available-bytes 的哨兵值。
const (
	QuotaNotComputed int64 = -1
	QuotaUnknown     int64 = -2
	QuotaUnlimited   int64 = -3
)

// NewUserQuota 按已用与可用字节数推导总量和使用率。
func NewUserQuota(available, used int64) UserQuota {
	q := UserQuota{Available: available, Used: used}
	if available < 0 {
		q.Total = available
		return q
	}
	q.Total = available + used
	if q.Total > 0 {
		pct := float64(used) * 100 / float64(q.Total)
		q.Relative = float64(int64(pct*100+0.5)) / 100
	}
	return q
}

// UserAvatar 引用头像缓存中的一项。
type UserAvatar struct {
	CacheKey string
	MimeType string
	ETag     string
}

// Avatar 是服务端返回的头像内容。
type Avatar struct {
	Data     []byte
	MimeType string
	ETag     string
}

// UserProfile 是账号的本地资料记录，以账号名为唯一键，每次同步整体替换。
type UserProfile struct {
	AccountName string
	UserID      string
	DisplayName string
	Email       string
	Quota       *UserQuota
	Avatar      *UserAvatar
	SyncedAt    time.Time
}

// NewUserProfile 以账号名和用户信息创建资料。
func NewUserProfile(accountName string, info UserInfo) *UserProfile {
	return &UserProfile{
		AccountName: accountName,
		UserID:      info.ID,
		DisplayName: info.DisplayName,
		Email:       info.Email,
	}
}

// Clone 返回深拷贝，quota 与 avatar 值对象一并复制。
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Quota != nil {
		q := *p.Quota
		cp.Quota = &q
	}
	if p.Avatar != nil {
		a := *p.Avatar
		cp.Avatar = &a
	}
	return &cp
}
