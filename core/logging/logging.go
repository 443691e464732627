// Package logging 提供基于 log/slog 的 httpclient.Logger 实现。
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dnslin/owncloud-desktop/core/httpclient"
)

// Logger 同时提供格式化接口（供 core 包注入）和结构化接口（供 cmd 使用）。
type Logger struct {
	base *slog.Logger
}

var _ httpclient.Logger = (*Logger)(nil)

// NewFromEnv 按 LOG_LEVEL 与 LOG_FORMAT 创建输出到 stderr 的日志。
func NewFromEnv() *Logger {
	return New(os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT"))
}

// New 创建日志，format 为 json 时输出 JSON，否则输出文本。
func New(output io.Writer, level slog.Level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch normalize(format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}
	return &Logger{base: slog.New(handler)}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.base.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...any) {
	l.base.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.base.Error(fmt.Sprintf(format, args...))
}

// Info 输出结构化日志。
func (l *Logger) Info(msg string, args ...any) {
	l.base.Info(msg, args...)
}

// Error 输出带错误的结构化日志，err 为空时忽略。
func (l *Logger) Error(msg string, err error, args ...any) {
	if err == nil {
		return
	}
	l.base.Error(msg, append([]any{"err", err}, args...)...)
}

// With 返回附加固定字段的子日志。
func (l *Logger) With(args ...any) *Logger {
	return &Logger{base: l.base.With(args...)}
}

// Slog 暴露底层 slog.Logger。
func (l *Logger) Slog() *slog.Logger {
	return l.base
}

// ParseLevel 解析日志级别，未知值按 info 处理。
func ParseLevel(value string) slog.Level {
	switch normalize(value) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
