// Package errors 定义存储与会话层共享的结构化错误。
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code 是错误分类，errors.Is 按 Code 匹配。
type Code string

const (
	ErrCodeUnknown         Code = "UNKNOWN"
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeInvalidArgument Code = "INVALID_ARGUMENT"
	// ErrCodeInvalidConfig 表示依赖未注入或配置缺失。
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	// ErrCodeInvalidState 表示持久化数据无法还原。
	ErrCodeInvalidState Code = "INVALID_STATE"
	// ErrCodeUnavailable 表示数据库或对象存储暂时不可用。
	ErrCodeUnavailable Code = "UNAVAILABLE"
)

// CoreError 携带分类、可读消息与底层错误。
type CoreError struct {
	Code    Code
	Message string
	Raw     error
}

func (e *CoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" && e.Raw != nil {
		return e.Raw.Error()
	}
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("core: [%s] %s", e.Code, e.Message)
}

func (e *CoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Raw
}

// Is 让同分类的错误互相匹配，sentinel 只需比较 Code。
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e == t || (e.Code != "" && e.Code == t.Code)
}

// New 创建 sentinel 错误。
func New(code Code, message string) *CoreError {
	return &CoreError{Code: code, Message: message}
}

// Wrap 包装底层错误，message 为空时沿用底层错误文本。
func Wrap(code Code, message string, raw error) *CoreError {
	if message == "" && raw != nil {
		message = raw.Error()
	}
	return &CoreError{Code: code, Message: message, Raw: raw}
}

// CodeOf 返回错误链上第一个 CoreError 的分类。
func CodeOf(err error) Code {
	var ce *CoreError
	if stderrors.As(err, &ce) && ce.Code != "" {
		return ce.Code
	}
	return ErrCodeUnknown
}
