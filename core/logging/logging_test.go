package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo, "text")
	l.Debugf("隐藏 %d", 1)
	l.Infof("同步 %s 完成", "alice@host")

	out := buf.String()
	if strings.Contains(out, "隐藏") {
		t.Fatalf("info 级别不应输出 debug: %s", out)
	}
	if !strings.Contains(out, "同步 alice@host 完成") {
		t.Fatalf("缺少 info 日志: %s", out)
	}
}

func TestLoggerJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug, "JSON").With("account", "alice@host")
	l.Error("同步失败", errors.New("boom"))
	l.Error("忽略", nil)

	out := buf.String()
	if !strings.Contains(out, `"account":"alice@host"`) || !strings.Contains(out, `"err":"boom"`) {
		t.Fatalf("JSON 字段缺失: %s", out)
	}
	if strings.Contains(out, "忽略") {
		t.Fatalf("err 为空时不应输出: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v 预期 %v", in, got, want)
		}
	}
}
