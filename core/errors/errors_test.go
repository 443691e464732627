package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCoreError_IsByCode(t *testing.T) {
	sentinel := New(ErrCodeNotFound, "store: 未找到资料")
	err := fmt.Errorf("查询失败: %w", Wrap(ErrCodeNotFound, "mongo: 无文档", stderrors.New("no documents")))

	if !stderrors.Is(err, sentinel) {
		t.Fatalf("相同错误码应当匹配: %v", err)
	}
	if stderrors.Is(err, New(ErrCodeUnavailable, "")) {
		t.Fatalf("不同错误码不应匹配")
	}
}

func TestCodeOf(t *testing.T) {
	if code := CodeOf(Wrap(ErrCodeUnavailable, "", stderrors.New("down"))); code != ErrCodeUnavailable {
		t.Fatalf("错误码应为 UNAVAILABLE，实际 %s", code)
	}
	if code := CodeOf(stderrors.New("plain")); code != ErrCodeUnknown {
		t.Fatalf("普通错误应为 UNKNOWN，实际 %s", code)
	}
}

func TestWrap_DefaultMessage(t *testing.T) {
	err := Wrap(ErrCodeInvalidState, "", stderrors.New("bad payload"))
	if err.Message != "bad payload" {
		t.Fatalf("缺省消息应取自底层错误，实际 %q", err.Message)
	}
	if err.Error() != "core: [INVALID_STATE] bad payload" {
		t.Fatalf("错误文本不符合预期: %s", err.Error())
	}
}
