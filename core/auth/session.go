package auth

import (
	"strings"
	"time"
)

// SessionProvider 提供鉴权所需的会话字段。
type SessionProvider interface {
	GetServerURL() string
	GetUserID() string
	GetPassword() string
	GetAccessToken() string
}

// Session 记录 ownCloud 账号的当前凭证。
// AccessToken 非空时走 OAuth Bearer，否则用 UserID/Password 做 Basic 认证。
type Session struct {
	ServerURL    string    `json:"serverUrl,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	Password     string    `json:"password,omitempty"`
	AccessToken  string    `json:"accessToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
}

// GetServerURL 实现 SessionProvider。
func (s *Session) GetServerURL() string {
	if s == nil {
		return ""
	}
	return strings.TrimSuffix(s.ServerURL, "/")
}

// GetUserID 实现 SessionProvider。
func (s *Session) GetUserID() string {
	if s == nil {
		return ""
	}
	return s.UserID
}

// GetPassword 实现 SessionProvider。
func (s *Session) GetPassword() string {
	if s == nil {
		return ""
	}
	return s.Password
}

// GetAccessToken 实现 SessionProvider。
func (s *Session) GetAccessToken() string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// Expired 判断会话是否过期，仅 OAuth 会话有过期时间。
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Clone 返回会话的浅拷贝，避免直接暴露内部指针。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// AccountName 按 ownCloud 约定返回 "user@host[:port][/path]"。
func AccountName(serverURL, userID string) string {
	host := strings.TrimSuffix(serverURL, "/")
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return userID + "@" + host
}

// UserFromAccountName 取账号名 "@" 之前的部分。
func UserFromAccountName(account string) string {
	if i := strings.LastIndex(account, "@"); i > 0 {
		return account[:i]
	}
	return account
}
