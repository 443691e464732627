package httpclient

import (
	"errors"
	"net/http"
	"time"
)

// RetryPolicy 定义重试策略。
type RetryPolicy interface {
	ShouldRetry(req *http.Request, resp *http.Response, err error, attempt int) (bool, time.Duration, error)
}

// RetryConfig 配置指数退避重试。
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// MaxRetryAfter 限制服务端 Retry-After 的等待上限，超出时放弃重试。
	MaxRetryAfter time.Duration
	Refresh       func() error
	AuthCodes     []string
	Logger        Logger
}

// ExponentialBackoffRetry 实现指数退避重试，429 与维护模式 503 遵循 Retry-After。
type ExponentialBackoffRetry struct {
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	maxRetryAfter time.Duration
	refresh       func() error
	authCodes     map[string]struct{}
	logger        Logger
}

// DefaultRetryConfig 返回适用于 ownCloud 接口的默认重试配置。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		MaxRetryAfter: 30 * time.Second,
		// OCS 在 HTTP 200 内返回 997 表示未认证
		AuthCodes: []string{
			"997",
			"invalid_token",
		},
	}
}

// NewExponentialBackoffRetry 创建重试策略。
func NewExponentialBackoffRetry(cfg RetryConfig) *ExponentialBackoffRetry {
	authCodes := make(map[string]struct{}, len(cfg.AuthCodes))
	for _, code := range cfg.AuthCodes {
		authCodes[code] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	return &ExponentialBackoffRetry{
		maxRetries:    cfg.MaxRetries,
		baseDelay:     cfg.BaseDelay,
		maxDelay:      cfg.MaxDelay,
		maxRetryAfter: cfg.MaxRetryAfter,
		refresh:       cfg.Refresh,
		authCodes:     authCodes,
		logger:        logger,
	}
}

// ShouldRetry 根据错误类型与状态码决定是否重试以及等待多久。
func (r *ExponentialBackoffRetry) ShouldRetry(req *http.Request, resp *http.Response, err error, attempt int) (bool, time.Duration, error) {
	if r == nil || attempt >= r.maxRetries {
		return false, 0, nil
	}
	delay := r.backoff(attempt)

	var (
		netErr *NetworkError
		decErr *DecodeError
		ec     *ErrCode
	)
	switch {
	case errors.As(err, &netErr):
		r.logger.Debugf("%s 网络错误，第 %d 次重试", req.URL.Path, attempt+1)
		return true, delay, nil
	case errors.As(err, &decErr):
		return false, 0, nil
	case errors.As(err, &ec):
		return r.retryErrCode(req, ec, attempt, delay)
	case resp != nil && resp.StatusCode >= http.StatusInternalServerError:
		r.logger.Debugf("%s 服务端错误 %d，第 %d 次重试", req.URL.Path, resp.StatusCode, attempt+1)
		return true, delay, nil
	}
	return false, 0, nil
}

func (r *ExponentialBackoffRetry) retryErrCode(req *http.Request, ec *ErrCode, attempt int, delay time.Duration) (bool, time.Duration, error) {
	if ec.RetryAfter > 0 {
		if r.maxRetryAfter > 0 && ec.RetryAfter > r.maxRetryAfter {
			r.logger.Infof("%s Retry-After %s 超过上限，放弃重试", req.URL.Path, ec.RetryAfter)
			return false, 0, nil
		}
		r.logger.Debugf("%s 状态 %d，%s 后重试", req.URL.Path, ec.Status, ec.RetryAfter)
		return true, max(delay, ec.RetryAfter), nil
	}
	if ec.Status >= http.StatusInternalServerError || ec.Status == http.StatusTooManyRequests {
		r.logger.Debugf("%s 状态 %d，第 %d 次重试", req.URL.Path, ec.Status, attempt+1)
		return true, delay, nil
	}
	if !r.isAuth(ec) {
		return false, 0, nil
	}
	if r.refresh != nil {
		if refreshErr := r.refresh(); refreshErr != nil {
			return false, 0, refreshErr
		}
	}
	r.logger.Debugf("%s 认证失败，刷新凭证后第 %d 次重试", req.URL.Path, attempt+1)
	return true, delay, nil
}

func (r *ExponentialBackoffRetry) isAuth(ec *ErrCode) bool {
	if ec.Status == http.StatusUnauthorized {
		return true
	}
	_, ok := r.authCodes[ec.Code]
	return ok && ec.Code != ""
}

func (r *ExponentialBackoffRetry) backoff(attempt int) time.Duration {
	base := r.baseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	ceiling := r.maxDelay
	if ceiling <= 0 {
		ceiling = 2 * time.Second
	}
	return min(base<<attempt, ceiling)
}
