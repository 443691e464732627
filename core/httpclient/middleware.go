package httpclient

import (
	"errors"
	"net/http"
)

// ErrNoCredentials 表示请求时拿不到任何可用凭证。
var ErrNoCredentials = errors.New("httpclient: 缺少认证凭证")

// Middleware 在每次尝试发送前修改请求，重试时会重新执行。
type Middleware func(req *http.Request) error

// PrepareChain 按顺序执行中间件，遇到错误立即返回。
type PrepareChain []Middleware

// Apply 执行整条链。
func (c PrepareChain) Apply(req *http.Request) error {
	for _, mw := range c {
		if mw == nil {
			continue
		}
		if err := mw(req); err != nil {
			return err
		}
	}
	return nil
}

// WithHeader 设置请求头。
func WithHeader(key, value string) Middleware {
	return func(req *http.Request) error {
		req.Header.Set(key, value)
		return nil
	}
}

// WithUserAgent 设置 User-Agent。
func WithUserAgent(ua string) Middleware {
	return WithHeader("User-Agent", ua)
}

// Credentials 是一次请求使用的凭证。Token 非空时优先使用 Bearer。
type Credentials struct {
	User     string
	Password string
	Token    string
}

// WithAuthorization 在每次尝试时取最新凭证写入 Authorization，刷新后的重试因此生效。
func WithAuthorization(get func() (Credentials, error)) Middleware {
	return func(req *http.Request) error {
		cred, err := get()
		if err != nil {
			return err
		}
		switch {
		case cred.Token != "":
			req.Header.Set("Authorization", "Bearer "+cred.Token)
		case cred.User != "" && cred.Password != "":
			req.SetBasicAuth(cred.User, cred.Password)
		default:
			return ErrNoCredentials
		}
		return nil
	}
}
