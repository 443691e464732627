package owncloud

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// OCSMeta 是 OCS 响应的 meta 段。
type OCSMeta struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statuscode"`
	Msg        string `json:"message"`
}

// OCSResponse 兼容 OCS v1/v2 的 JSON 包装，实现业务错误检测。
type OCSResponse[T any] struct {
	OCS struct {
		Meta OCSMeta `json:"meta"`
		Data T       `json:"data"`
	} `json:"ocs"`
}

// IsSuccess 判断业务码是否为成功，v1 为 100，v2 为 200。
func (r *OCSResponse[T]) IsSuccess() bool {
	if r == nil {
		return true
	}
	meta := r.OCS.Meta
	if meta.Status == "" && meta.StatusCode == 0 {
		return true
	}
	if strings.EqualFold(meta.Status, "ok") {
		return true
	}
	return meta.StatusCode == 100 || meta.StatusCode == 200
}

// Error 满足 error 接口，便于 httpclient 包装。
func (r *OCSResponse[T]) Error() string {
	return fmt.Sprintf("%s: %s", r.Code(), r.Message())
}

// Code 返回 OCS 状态码。
func (r *OCSResponse[T]) Code() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d", r.OCS.Meta.StatusCode)
}

// Message 返回服务端消息。
func (r *OCSResponse[T]) Message() string {
	if r == nil {
		return ""
	}
	return r.OCS.Meta.Msg
}

func buildRequest(ctx context.Context, method, base, path string, params map[string]string, body io.Reader) (*http.Request, error) {
	if base == "" {
		return nil, fmt.Errorf("owncloud: 服务器地址为空")
	}
	u := joinURL(base, path)
	if len(params) > 0 {
		vals := url.Values{}
		for k, v := range params {
			vals.Set(k, v)
		}
		if strings.Contains(u, "?") {
			u += "&" + vals.Encode()
		} else {
			u += "?" + vals.Encode()
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	base = strings.TrimSuffix(base, "/")
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}
