package profilesync

import (
	"errors"
	"fmt"
)

// Kind 是同步失败的分类。
type Kind int

const (
	KindProfileUnavailable Kind = iota + 1
	KindQuotaUnavailable
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindProfileUnavailable:
		return "profile_unavailable"
	case KindQuotaUnavailable:
		return "quota_unavailable"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

var (
	// ErrProfileUnavailable 用户信息获取失败。
	ErrProfileUnavailable = &Error{Kind: KindProfileUnavailable}
	// ErrQuotaUnavailable 配额获取失败。
	ErrQuotaUnavailable = &Error{Kind: KindQuotaUnavailable}
	// ErrUnexpected 其余任何错误，包括协作方 panic。
	ErrUnexpected = &Error{Kind: KindUnexpected}
)

// Error 是 Step 返回的唯一错误类型。
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("profilesync: %s", e.Kind)
	}
	return fmt.Sprintf("profilesync: %s (%s): %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is 按 Kind 匹配，使 errors.Is(err, ErrQuotaUnavailable) 可用。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf 返回错误的分类，非 *Error 返回 0。
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

func fail(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
