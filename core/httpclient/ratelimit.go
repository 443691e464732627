package httpclient

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// RateLimiter 在请求发出前阻塞，重试的每次尝试都会经过它。
type RateLimiter interface {
	Wait(ctx context.Context, req *http.Request) error
}

// bucket 是单个服务器的令牌桶。
type bucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
}

// take 取一个令牌，返回需要等待的时长。
func (b *bucket) take(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = min(b.burst, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

// HostLimiter 按服务器分别限流，同一 ownCloud 实例上的多个账号共享额度。
type HostLimiter struct {
	rate  float64
	burst int
	key   func(*http.Request) string

	mu      sync.Mutex
	buckets map[string]*bucket
}

// HostLimiterOption 配置 HostLimiter。
type HostLimiterOption func(*HostLimiter)

// WithLimitKey 自定义分桶键，返回空串时回退到 Host。
func WithLimitKey(fn func(*http.Request) string) HostLimiterOption {
	return func(l *HostLimiter) {
		l.key = fn
	}
}

// NewHostLimiter 创建限流器，rps <= 0 时不限流。
func NewHostLimiter(rps float64, burst int, opts ...HostLimiterOption) *HostLimiter {
	l := &HostLimiter{
		rate:    rps,
		burst:   max(burst, 1),
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait 等待当前服务器的令牌。
func (l *HostLimiter) Wait(ctx context.Context, req *http.Request) error {
	if l == nil || l.rate <= 0 {
		return nil
	}
	b := l.bucketFor(req)
	for {
		wait := b.take(time.Now())
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *HostLimiter) bucketFor(req *http.Request) *bucket {
	var key string
	if l.key != nil {
		key = l.key(req)
	}
	if key == "" && req.URL != nil {
		key = req.URL.Host
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{rate: l.rate, burst: float64(l.burst), tokens: float64(l.burst), last: time.Now()}
		l.buckets[key] = b
	}
	return b
}
