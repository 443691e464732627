package auth

import coreerrors "github.com/dnslin/owncloud-desktop/core/errors"

var (
	// ErrSessionNotFound 用于标记存储中不存在会话。
	ErrSessionNotFound = coreerrors.New(coreerrors.ErrCodeNotFound, "auth: 未找到会话")
	// ErrSessionStoreNil 在未注入存储时返回。
	ErrSessionStoreNil = coreerrors.New(coreerrors.ErrCodeInvalidConfig, "auth: SessionStore 未设置")
	// ErrMissingCredentials 无可用凭证（密码或刷新令牌）时返回。
	ErrMissingCredentials = coreerrors.New(coreerrors.ErrCodeInvalidConfig, "auth: 缺少登录凭证")
)
