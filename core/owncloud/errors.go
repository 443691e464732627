package owncloud

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dnslin/owncloud-desktop/core/httpclient"
)

// ErrorCode 是远端错误的分类。
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeUnauthorized
	ErrCodeForbidden
	ErrCodeNotFound
	ErrCodeNotModified
	ErrCodeInvalidRequest
	ErrCodeInvalidResponse
	ErrCodeRateLimited
	ErrCodeServer
)

var codeNames = [...]string{
	ErrCodeUnknown:         "unknown",
	ErrCodeUnauthorized:    "unauthorized",
	ErrCodeForbidden:       "forbidden",
	ErrCodeNotFound:        "not_found",
	ErrCodeNotModified:     "not_modified",
	ErrCodeInvalidRequest:  "invalid_request",
	ErrCodeInvalidResponse: "invalid_response",
	ErrCodeRateLimited:     "rate_limited",
	ErrCodeServer:          "server_error",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return "code(" + strconv.Itoa(int(c)) + ")"
	}
	return codeNames[c]
}

var (
	// ErrNotFound 表示资源不存在，用户未设置头像时服务端返回 404。
	ErrNotFound = NewOwnCloudError(ErrCodeNotFound, "owncloud: 资源不存在")
	// ErrNotModified 表示资源与 If-None-Match 一致。
	ErrNotModified = NewOwnCloudError(ErrCodeNotModified, "owncloud: 资源未修改")
	// ErrUnauthorized 表示凭证无效或已过期。
	ErrUnauthorized = NewOwnCloudError(ErrCodeUnauthorized, "owncloud: 未认证")
)

// OwnCloudError 是 Client 返回的错误，errors.Is 按 Code 匹配上面的 sentinel。
type OwnCloudError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	// OCSStatus 为 OCS meta.statuscode，非 OCS 响应时为空。
	OCSStatus string
	Raw       error
}

func (e *OwnCloudError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Raw != nil {
		msg = e.Raw.Error()
	}
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("owncloud: %s (HTTP %d): %s", e.Code, e.HTTPStatus, msg)
	}
	return fmt.Sprintf("owncloud: %s: %s", e.Code, msg)
}

func (e *OwnCloudError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Raw
}

func (e *OwnCloudError) Is(target error) bool {
	t, ok := target.(*OwnCloudError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e == t || (e.Code != ErrCodeUnknown && e.Code == t.Code)
}

// NewOwnCloudError 创建不带底层错误的 OwnCloudError。
func NewOwnCloudError(code ErrorCode, message string) *OwnCloudError {
	return &OwnCloudError{Code: code, Message: message}
}

// WrapOwnCloudError 包装底层错误并记录其 HTTP 状态。
func WrapOwnCloudError(code ErrorCode, message string, raw error) *OwnCloudError {
	return &OwnCloudError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpclient.StatusOf(raw),
		Raw:        raw,
	}
}

// OCS 在 meta.statuscode 中携带的失败码。
var ocsCodes = map[string]ErrorCode{
	"996": ErrCodeServer,
	"997": ErrCodeUnauthorized,
	"998": ErrCodeNotFound,
}

var statusCodes = map[int]ErrorCode{
	http.StatusNotModified:     ErrCodeNotModified,
	http.StatusBadRequest:      ErrCodeInvalidRequest,
	http.StatusUnauthorized:    ErrCodeUnauthorized,
	http.StatusForbidden:       ErrCodeForbidden,
	http.StatusNotFound:        ErrCodeNotFound,
	http.StatusTooManyRequests: ErrCodeRateLimited,
}

// classify 先看 OCS 码，再看 HTTP 状态。
func classify(ec *httpclient.ErrCode) ErrorCode {
	if code, ok := ocsCodes[ec.Code]; ok {
		return code
	}
	if code, ok := statusCodes[ec.Status]; ok {
		return code
	}
	if ec.Status >= http.StatusInternalServerError && ec.Status < 600 {
		return ErrCodeServer
	}
	return ErrCodeUnknown
}

// toOwnCloudError 把 httpclient 的错误转换为 OwnCloudError，其余错误原样返回。
func toOwnCloudError(err error) error {
	if err == nil {
		return nil
	}
	var oe *OwnCloudError
	if errors.As(err, &oe) {
		return oe
	}
	var ec *httpclient.ErrCode
	if errors.As(err, &ec) {
		out := WrapOwnCloudError(classify(ec), ec.Message, err)
		if _, isOCS := ocsCodes[ec.Code]; isOCS || ec.Status == http.StatusOK {
			out.OCSStatus = ec.Code
		}
		return out
	}
	var de *httpclient.DecodeError
	if errors.As(err, &de) {
		return WrapOwnCloudError(ErrCodeInvalidResponse, "响应无法解析", err)
	}
	return err
}
