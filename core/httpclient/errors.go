package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrCode 是带 HTTP 状态的业务错误，OCS 的 statuscode 记在 Code 中。
type ErrCode struct {
	Code    string
	Message string
	Status  int
	// RetryAfter 来自 429/503 响应的 Retry-After 头。
	RetryAfter time.Duration
}

func (e *ErrCode) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Code != "":
		return e.Code
	case e.Message != "":
		return e.Message
	default:
		return fmt.Sprintf("http 状态码: %d", e.Status)
	}
}

// NetworkError 是连接层失败，总是可重试。
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("网络错误: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError 表示响应体无法解析。
type DecodeError struct {
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("解码失败(status=%d): %v", e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// OkRsp 由响应包装实现，用来识别 HTTP 200 内的业务失败。
type OkRsp interface {
	error
	IsSuccess() bool
	Code() string
	Message() string
}

func toErrCode(rsp OkRsp, status int) *ErrCode {
	return &ErrCode{Code: rsp.Code(), Message: rsp.Message(), Status: status}
}

// statusToErr 把非成功状态转成 ErrCode，并解析 Retry-After。
func statusToErr(resp *http.Response) *ErrCode {
	ec := &ErrCode{
		Status:  resp.StatusCode,
		Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message: http.StatusText(resp.StatusCode),
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		ec.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return ec
}

// parseRetryAfter 支持秒数与 HTTP 日期两种格式，无法解析时为 0。
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// StatusOf 返回错误链上 ErrCode 的 HTTP 状态码，未命中时为 0。
func StatusOf(err error) int {
	var ec *ErrCode
	if errors.As(err, &ec) {
		return ec.Status
	}
	return 0
}
