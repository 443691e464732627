package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"
)

// Logger 由外部注入，满足 core 层无输出原则。
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger 默认空日志实现。
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

// DefaultMaxBodySize 限制 Fetch 读取的响应体大小（头像等小文件）。
const DefaultMaxBodySize = 8 << 20

// Client 为统一 HTTP 客户端封装。
type Client struct {
	HTTP        *http.Client
	Jar         http.CookieJar
	Prepare     PrepareChain
	Retry       RetryPolicy
	Limiter     RateLimiter
	Logger      Logger
	MaxBodySize int64
}

// Response 是 Fetch 返回的原始响应。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Option 配置客户端。
type Option func(*Client)

// WithHTTPClient 自定义 http.Client。
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTP = httpClient
	}
}

// WithCookieJar 设置 CookieJar。
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.Jar = jar
	}
}

// WithRetryPolicy 设置重试策略。
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.Retry = policy
	}
}

// WithRateLimiter 设置限流。
func WithRateLimiter(limiter RateLimiter) Option {
	return func(c *Client) {
		c.Limiter = limiter
	}
}

// WithLogger 注入日志。
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.Logger = logger
	}
}

// WithMiddlewares 设置请求中间件链。
func WithMiddlewares(mw ...Middleware) Option {
	return func(c *Client) {
		c.Prepare = append(c.Prepare, mw...)
	}
}

// WithMaxBodySize 设置 Fetch 允许读取的最大字节数。
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		c.MaxBodySize = n
	}
}

// NewClient 创建带默认重试、CookieJar 的客户端。
func NewClient(opts ...Option) *Client {
	// cookiejar.New(nil) 传入 nil 时不会返回错误
	jar, _ := cookiejar.New(nil)
	client := &Client{
		HTTP:        &http.Client{Jar: jar, Timeout: 30 * time.Second},
		Jar:         jar,
		Prepare:     PrepareChain{},
		Logger:      NopLogger{},
		MaxBodySize: DefaultMaxBodySize,
	}
	client.Retry = NewExponentialBackoffRetry(DefaultRetryConfig())
	for _, opt := range opts {
		opt(client)
	}
	if client.HTTP == nil {
		client.HTTP = &http.Client{}
	}
	if client.Logger == nil {
		client.Logger = NopLogger{}
	}
	if client.MaxBodySize <= 0 {
		client.MaxBodySize = DefaultMaxBodySize
	}
	if client.Jar == nil {
		client.Jar = client.HTTP.Jar
	}
	if client.Jar == nil {
		j, _ := cookiejar.New(nil)
		client.Jar = j
	}
	if client.HTTP.Jar == nil {
		client.HTTP.Jar = client.Jar
	}
	return client
}

// Cookies 读取当前 jar 中的 cookies。
func (c *Client) Cookies(u *url.URL) []*http.Cookie {
	if c == nil || c.Jar == nil {
		return nil
	}
	return c.Jar.Cookies(u)
}

// Use 添加中间件。
func (c *Client) Use(mw ...Middleware) {
	c.Prepare = append(c.Prepare, mw...)
}

// Do 发送请求并按需解码 JSON，包含重试、限流、中间件。
// extra 只作用于本次请求，排在 Prepare 之后，每次重试都会重新执行。
func (c *Client) Do(req *http.Request, out any, extra ...Middleware) error {
	_, err := c.roundTrip(req, extra, func(resp *http.Response) error {
		return decodeJSON(resp, out)
	})
	return err
}

// Fetch 发送请求并返回原始响应体，适用于二进制或 XML 响应。
// 304 与 4xx/5xx 均以 *ErrCode 返回，Status 为对应状态码。
func (c *Client) Fetch(req *http.Request, extra ...Middleware) (*Response, error) {
	var out *Response
	_, err := c.roundTrip(req, extra, func(resp *http.Response) error {
		if resp.StatusCode == http.StatusNotModified || resp.StatusCode >= http.StatusBadRequest {
			return statusToErr(resp)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxBodySize+1))
		if err != nil {
			return &NetworkError{Err: err}
		}
		if int64(len(body)) > c.MaxBodySize {
			return &DecodeError{Status: resp.StatusCode, Err: fmt.Errorf("响应体超过 %d 字节", c.MaxBodySize)}
		}
		out = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) roundTrip(req *http.Request, extra PrepareChain, handle func(*http.Response) error) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("httpclient: 请求为空")
	}
	if c.HTTP == nil {
		return nil, errors.New("httpclient: http.Client 未配置")
	}
	attempt := 0
	for {
		clonedReq, cloneErr := c.cloneRequest(req, attempt)
		if cloneErr != nil {
			return nil, cloneErr
		}
		resp, err := c.execute(clonedReq, extra, handle)
		if err == nil {
			return resp, nil
		}
		if c.Retry == nil {
			return resp, err
		}
		retry, wait, refreshErr := c.Retry.ShouldRetry(clonedReq, resp, err, attempt)
		if refreshErr != nil {
			return resp, refreshErr
		}
		if !retry {
			return resp, err
		}
		attempt++
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return resp, req.Context().Err()
			case <-timer.C:
			}
		}
	}
}

func (c *Client) execute(req *http.Request, extra PrepareChain, handle func(*http.Response) error) (*http.Response, error) {
	if err := c.Prepare.Apply(req); err != nil {
		return nil, err
	}
	if err := extra.Apply(req); err != nil {
		return nil, err
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context(), req); err != nil {
			return nil, err
		}
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp, statusToErr(resp)
	}
	c.Logger.Debugf("%s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)
	return resp, handle(resp)
}

func decodeJSON(resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		// 4xx 可能带 OCS 包装，取其中的 statuscode 与 message
		ec := statusToErr(resp)
		var meta struct {
			OCS struct {
				Meta struct {
					StatusCode int    `json:"statuscode"`
					Message    string `json:"message"`
				} `json:"meta"`
			} `json:"ocs"`
		}
		if json.NewDecoder(resp.Body).Decode(&meta) == nil && meta.OCS.Meta.StatusCode != 0 {
			ec.Code = strconv.Itoa(meta.OCS.Meta.StatusCode)
			if meta.OCS.Meta.Message != "" {
				ec.Message = meta.OCS.Meta.Message
			}
		}
		return ec
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber() // 保留数字精度
	if decodeErr := dec.Decode(out); decodeErr != nil {
		if decodeErr == io.EOF {
			// 空响应体，视为成功
			return nil
		}
		return &DecodeError{Status: resp.StatusCode, Err: decodeErr}
	}
	if ok, okType := out.(OkRsp); okType && !ok.IsSuccess() {
		return toErrCode(ok, resp.StatusCode)
	}
	return nil
}

func (c *Client) cloneRequest(req *http.Request, attempt int) (*http.Request, error) {
	cloned := req.Clone(req.Context())
	cloned.Header = req.Header.Clone()
	cloned.GetBody = req.GetBody
	cloned.ContentLength = req.ContentLength
	cloned.TransferEncoding = append([]string(nil), req.TransferEncoding...)
	if req.Body != nil {
		if attempt == 0 {
			cloned.Body = req.Body
		} else {
			if req.GetBody == nil {
				return nil, fmt.Errorf("httpclient: 请求体不可重试")
			}
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			cloned.Body = body
		}
	}
	return cloned, nil
}
