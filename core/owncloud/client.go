// Package owncloud 封装 ownCloud 的 OCS、WebDAV 与头像接口。
package owncloud

import (
	"errors"
	"net/http"

	"github.com/dnslin/owncloud-desktop/core/auth"
	"github.com/dnslin/owncloud-desktop/core/httpclient"
)

// Client 统一封装单个账号的接口调用与鉴权。
type Client struct {
	http      *httpclient.Client
	session   auth.SessionProvider
	logger    httpclient.Logger
	userAgent string
}

// Option 自定义客户端配置。
type Option func(*Client)

// WithHTTPClient 注入自定义 httpclient.Client。
func WithHTTPClient(cli *httpclient.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.http = cli
		}
	}
}

// WithLogger 注入日志接口。
func WithLogger(logger httpclient.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent 替换 User-Agent。
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient 创建客户端，session 提供服务器地址与凭证。
func NewClient(session auth.SessionProvider, opts ...Option) *Client {
	cli := &Client{
		session:   session,
		logger:    httpclient.NopLogger{},
		userAgent: UserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cli)
		}
	}
	if cli.http == nil {
		cli.http = httpclient.NewClient(httpclient.WithLogger(cli.logger))
	}
	if cli.logger == nil {
		cli.logger = httpclient.NopLogger{}
	}
	return cli
}

func (c *Client) base() string {
	if c.session == nil {
		return ""
	}
	return c.session.GetServerURL()
}

func (c *Client) userID(fallbackAccount string) string {
	if c.session != nil {
		if id := c.session.GetUserID(); id != "" {
			return id
		}
	}
	return auth.UserFromAccountName(fallbackAccount)
}

// doJSON 发送 OCS 请求；鉴权中间件随请求传入，不修改共享的 httpclient。
func (c *Client) doJSON(req *http.Request, out any) error {
	if c.http == nil {
		return &httpclient.NetworkError{Err: errors.New("owncloud: httpclient 未初始化")}
	}
	return toOwnCloudError(c.http.Do(req, out, c.authMiddleware()))
}

func (c *Client) fetch(req *http.Request) (*httpclient.Response, error) {
	if c.http == nil {
		return nil, &httpclient.NetworkError{Err: errors.New("owncloud: httpclient 未初始化")}
	}
	rsp, err := c.http.Fetch(req, c.authMiddleware())
	if err != nil {
		return nil, toOwnCloudError(err)
	}
	return rsp, nil
}
