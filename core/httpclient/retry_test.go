package httpclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// lineLogger 记录格式化后的日志行。
type lineLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *lineLogger) Debugf(format string, args ...any) { l.add("DEBUG", format, args...) }
func (l *lineLogger) Infof(format string, args ...any)  { l.add("INFO", format, args...) }
func (l *lineLogger) Errorf(format string, args ...any) { l.add("ERROR", format, args...) }

func (l *lineLogger) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func testPolicy(log Logger, refresh func() error) *ExponentialBackoffRetry {
	return NewExponentialBackoffRetry(RetryConfig{
		MaxRetries:    2,
		BaseDelay:     10 * time.Millisecond,
		MaxDelay:      40 * time.Millisecond,
		MaxRetryAfter: 5 * time.Second,
		AuthCodes:     []string{"997"},
		Refresh:       refresh,
		Logger:        log,
	})
}

func TestBackoffDoublesUpToCeiling(t *testing.T) {
	p := testPolicy(nil, nil)
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 40 * time.Millisecond}
	for attempt, w := range want {
		if got := p.backoff(attempt); got != w {
			t.Fatalf("第 %d 次退避应为 %v，实际 %v", attempt, w, got)
		}
	}
	if got := NewExponentialBackoffRetry(RetryConfig{}).backoff(10); got != 2*time.Second {
		t.Fatalf("未配置时上限应为 2s，实际 %v", got)
	}
}

// TestShouldRetryDecisions 覆盖 ownCloud 响应的重试判定。
func TestShouldRetryDecisions(t *testing.T) {
	cases := []struct {
		name      string
		resp      *http.Response
		err       error
		attempt   int
		retry     bool
		delay     time.Duration
		refreshes int
	}{
		{name: "网络错误", err: &NetworkError{Err: errors.New("reset")}, retry: true, delay: 10 * time.Millisecond},
		{name: "5xx 响应", resp: &http.Response{StatusCode: http.StatusBadGateway}, attempt: 1, retry: true, delay: 20 * time.Millisecond},
		{name: "解码错误", err: &DecodeError{Status: http.StatusMultiStatus, Err: errors.New("eof")}},
		{name: "403 不重试也不刷新", err: &ErrCode{Code: "HTTP_403", Status: http.StatusForbidden}},
		{name: "404 不重试", err: &ErrCode{Code: "998", Status: http.StatusNotFound}},
		{name: "401 刷新后重试", err: &ErrCode{Code: "HTTP_401", Status: http.StatusUnauthorized}, retry: true, delay: 10 * time.Millisecond, refreshes: 1},
		{name: "OCS 997 刷新后重试", err: &ErrCode{Code: "997", Status: http.StatusOK}, retry: true, delay: 10 * time.Millisecond, refreshes: 1},
		{name: "429 无 Retry-After 走退避", err: &ErrCode{Code: "HTTP_429", Status: http.StatusTooManyRequests}, attempt: 1, retry: true, delay: 20 * time.Millisecond},
		{name: "503 遵循 Retry-After", err: &ErrCode{Code: "HTTP_503", Status: http.StatusServiceUnavailable, RetryAfter: 2 * time.Second}, retry: true, delay: 2 * time.Second},
		{name: "Retry-After 短于退避", err: &ErrCode{Code: "HTTP_429", Status: http.StatusTooManyRequests, RetryAfter: time.Millisecond}, attempt: 1, retry: true, delay: 20 * time.Millisecond},
		{name: "Retry-After 超过上限", err: &ErrCode{Code: "HTTP_503", Status: http.StatusServiceUnavailable, RetryAfter: time.Minute}},
		{name: "达到最大次数", err: &NetworkError{Err: errors.New("reset")}, attempt: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			refreshes := 0
			p := testPolicy(nil, func() error {
				refreshes++
				return nil
			})
			req, _ := http.NewRequest(http.MethodGet, "https://cloud.example.com/ocs/v2.php/cloud/user", nil)
			retry, delay, err := p.ShouldRetry(req, tc.resp, tc.err, tc.attempt)
			if err != nil {
				t.Fatalf("不期望错误: %v", err)
			}
			if retry != tc.retry || delay != tc.delay {
				t.Fatalf("期望 retry=%v delay=%v，实际 retry=%v delay=%v", tc.retry, tc.delay, retry, delay)
			}
			if refreshes != tc.refreshes {
				t.Fatalf("刷新次数应为 %d，实际 %d", tc.refreshes, refreshes)
			}
		})
	}
}

func TestShouldRetryRefreshFailure(t *testing.T) {
	boom := errors.New("refresh token revoked")
	p := testPolicy(nil, func() error { return boom })
	req, _ := http.NewRequest(http.MethodGet, "https://cloud.example.com/ocs", nil)
	retry, _, err := p.ShouldRetry(req, nil, &ErrCode{Code: "997", Status: http.StatusOK}, 0)
	if retry || !errors.Is(err, boom) {
		t.Fatalf("刷新失败应停止重试并返回刷新错误，实际 retry=%v err=%v", retry, err)
	}
}

func TestShouldRetryLogsRequestPath(t *testing.T) {
	log := &lineLogger{}
	p := testPolicy(log, nil)
	quota, _ := http.NewRequest("PROPFIND", "https://cloud.example.com/remote.php/dav/files/alice/", nil)
	avatar, _ := http.NewRequest(http.MethodGet, "https://cloud.example.com/index.php/avatar/alice/128", nil)

	p.ShouldRetry(quota, nil, &ErrCode{Status: http.StatusServiceUnavailable, RetryAfter: time.Hour}, 0)
	p.ShouldRetry(avatar, nil, &NetworkError{Err: errors.New("timeout")}, 1)

	out := log.joined()
	if !strings.Contains(out, "INFO /remote.php/dav/files/alice/ Retry-After 1h0m0s 超过上限") {
		t.Fatalf("超过上限应以 INFO 记录请求路径:\n%s", out)
	}
	if !strings.Contains(out, "DEBUG /index.php/avatar/alice/128 网络错误，第 2 次重试") {
		t.Fatalf("网络错误重试应记录请求路径与次数:\n%s", out)
	}
}

func TestShouldRetryNilPolicy(t *testing.T) {
	var p *ExponentialBackoffRetry
	req, _ := http.NewRequest(http.MethodGet, "https://cloud.example.com/", nil)
	if retry, _, _ := p.ShouldRetry(req, nil, &NetworkError{Err: errors.New("x")}, 0); retry {
		t.Fatalf("空策略不应重试")
	}
}
