package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dnslin/owncloud-desktop/core/httpclient"
	"github.com/dnslin/owncloud-desktop/core/store"
)

// DefaultTokenPath 是 ownCloud oauth2 应用的令牌端点。
const DefaultTokenPath = "/index.php/apps/oauth2/api/v1/token"

// expirySkew 提前刷新的余量。
const expirySkew = 30 * time.Second

// OAuthClient 是在服务端注册的 OAuth 客户端。
type OAuthClient struct {
	ID     string
	Secret string
}

// OAuthRefresher 使用 refresh token 刷新 Session，无刷新令牌时回退到应用密码。
type OAuthRefresher struct {
	client    *httpclient.Client
	store     store.SessionStore[*Session]
	oauth     OAuthClient
	tokenPath string
	now       func() time.Time
	logger    httpclient.Logger
}

// OAuthRefresherOption 自定义 OAuthRefresher。
type OAuthRefresherOption func(*OAuthRefresher)

// WithTokenPath 替换令牌接口路径。
func WithTokenPath(path string) OAuthRefresherOption {
	return func(r *OAuthRefresher) {
		if path != "" {
			r.tokenPath = path
		}
	}
}

// WithRefresherLogger 注入日志。
func WithRefresherLogger(logger httpclient.Logger) OAuthRefresherOption {
	return func(r *OAuthRefresher) {
		r.logger = logger
	}
}

// WithRefresherNow 替换时间来源。
func WithRefresherNow(now func() time.Time) OAuthRefresherOption {
	return func(r *OAuthRefresher) {
		r.now = now
	}
}

// NewOAuthRefresher 创建刷新器。
func NewOAuthRefresher(client *httpclient.Client, store store.SessionStore[*Session], oauth OAuthClient, opts ...OAuthRefresherOption) *OAuthRefresher {
	if client == nil {
		client = httpclient.NewClient()
	}
	r := &OAuthRefresher{
		client:    client,
		store:     store,
		oauth:     oauth,
		tokenPath: DefaultTokenPath,
		now:       time.Now,
		logger:    httpclient.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = httpclient.NopLogger{}
	}
	return r
}

// Refresh 优先用 refresh token 换新令牌，失败后回退应用密码。
func (r *OAuthRefresher) Refresh(ctx context.Context) error {
	if r.store == nil {
		return ErrSessionStoreNil
	}
	session, err := r.store.LoadSession()
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if session == nil {
		return ErrMissingCredentials
	}

	if session.RefreshToken != "" {
		refreshed, refreshErr := r.refreshByToken(ctx, session)
		if refreshErr == nil {
			return r.store.SaveSession(refreshed)
		}
		r.logger.Errorf("refresh token 刷新失败，准备回退应用密码: %v", refreshErr)
	}

	if session.UserID == "" || session.Password == "" {
		return ErrMissingCredentials
	}
	fallback := session.Clone()
	fallback.AccessToken = ""
	fallback.RefreshToken = ""
	fallback.ExpiresAt = time.Time{}
	return r.store.SaveSession(fallback)
}

// NeedsRefresh 判断当前会话是否需要刷新。
func (r *OAuthRefresher) NeedsRefresh() bool {
	if r.store == nil {
		return true
	}
	session, err := r.store.LoadSession()
	if err != nil || session == nil {
		return true
	}
	if session.AccessToken == "" {
		return session.Password == ""
	}
	return session.Expired(r.now().Add(expirySkew))
}

func (r *OAuthRefresher) refreshByToken(ctx context.Context, session *Session) (*Session, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", session.RefreshToken)
	endpoint := session.GetServerURL() + r.tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(form.Encode())), nil
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if r.oauth.ID != "" {
		req.SetBasicAuth(r.oauth.ID, r.oauth.Secret)
	}
	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
		UserID       string `json:"user_id"`
	}
	if err := r.client.Do(req, &payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, errors.New("auth: 令牌响应缺少 access_token")
	}
	refreshed := session.Clone()
	refreshed.AccessToken = payload.AccessToken
	if payload.RefreshToken != "" {
		refreshed.RefreshToken = payload.RefreshToken
	}
	if payload.UserID != "" {
		refreshed.UserID = payload.UserID
	}
	refreshed.ExpiresAt = time.Time{}
	if payload.ExpiresIn > 0 {
		refreshed.ExpiresAt = r.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return refreshed, nil
}
