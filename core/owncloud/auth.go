package owncloud

import (
	"errors"

	"github.com/dnslin/owncloud-desktop/core/httpclient"
)

// authMiddleware 附加凭证与 OCS 请求头；有 access token 时用 Bearer，否则 Basic。
func (c *Client) authMiddleware() httpclient.Middleware {
	chain := httpclient.PrepareChain{
		httpclient.WithAuthorization(c.credentials),
		httpclient.WithHeader("OCS-APIREQUEST", "true"),
		httpclient.WithUserAgent(c.userAgent),
	}
	return chain.Apply
}

func (c *Client) credentials() (httpclient.Credentials, error) {
	if c.session == nil {
		return httpclient.Credentials{}, errors.New("owncloud: SessionProvider 未设置")
	}
	return httpclient.Credentials{
		User:     c.session.GetUserID(),
		Password: c.session.GetPassword(),
		Token:    c.session.GetAccessToken(),
	}, nil
}
