// Package thumbcache 实现头像缩略图缓存：内存前端加可插拔的持久化后端。
package thumbcache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"

	"github.com/dnslin/owncloud-desktop/core/httpclient"
	"github.com/dnslin/owncloud-desktop/core/store"
)

// KeyPrefix 是所有头像缓存键的公共前缀。
const KeyPrefix = "avatars/"

// DefaultMemoryEntries 是内存前端默认保留的条目数。
const DefaultMemoryEntries = 64

// ErrNotFound 由 Backend 在键不存在时返回。
var ErrNotFound = errors.New("thumbcache: 缓存项不存在")

// Backend 是头像的持久化存储。
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	// DeletePrefix 删除以 prefix 开头的所有键，prefix 不存在时不报错。
	DeletePrefix(ctx context.Context, prefix string) error
}

type entry struct {
	key         string
	data        []byte
	contentType string
}

// Cache 实现 store.AvatarCache。
type Cache struct {
	backend Backend
	logger  httpclient.Logger
	max     int

	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element
	group singleflight.Group
}

// Option 配置 Cache。
type Option func(*Cache)

// WithLogger 注入日志。
func WithLogger(logger httpclient.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMemoryEntries 设置内存前端容量，0 表示关闭内存前端。
func WithMemoryEntries(n int) Option {
	return func(c *Cache) {
		if n >= 0 {
			c.max = n
		}
	}
}

var _ store.AvatarCache = (*Cache)(nil)

// New 创建缓存。
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		logger:  httpclient.NopLogger{},
		max:     DefaultMemoryEntries,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Key 返回账号在指定尺寸下的缓存键。
func Key(account string, dimension int) string {
	return accountPrefix(account) + strconv.Itoa(dimension)
}

func accountPrefix(account string) string {
	return KeyPrefix + url.PathEscape(account) + "/"
}

// AddAvatarToCache 写入头像并返回缓存键，相同账号与尺寸会覆盖旧值。
func (c *Cache) AddAvatarToCache(ctx context.Context, account string, data []byte, dimension int) (string, error) {
	if account == "" {
		return "", fmt.Errorf("thumbcache: 账号名为空")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("thumbcache: 头像内容为空")
	}
	if c.backend == nil {
		return "", fmt.Errorf("thumbcache: 未配置后端")
	}
	key := Key(account, dimension)
	contentType := mimetype.Detect(data).String()
	buf := append([]byte(nil), data...)
	if err := c.backend.Put(ctx, key, buf, contentType); err != nil {
		return "", fmt.Errorf("thumbcache: 写入 %s 失败: %w", key, err)
	}
	c.remember(key, buf, contentType)
	c.logger.Debugf("头像已缓存: %s (%s, %d 字节)", key, contentType, len(buf))
	return key, nil
}

// RemoveAvatarFromCache 删除账号所有尺寸的头像。
func (c *Cache) RemoveAvatarFromCache(ctx context.Context, account string) error {
	if account == "" {
		return fmt.Errorf("thumbcache: 账号名为空")
	}
	prefix := accountPrefix(account)
	c.forgetPrefix(prefix)
	if c.backend == nil {
		return nil
	}
	if err := c.backend.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("thumbcache: 删除 %s 失败: %w", prefix, err)
	}
	c.logger.Debugf("头像缓存已清除: %s", prefix)
	return nil
}

// GetAvatar 读取缓存的头像，不存在时返回 store.ErrAvatarNotFound。
func (c *Cache) GetAvatar(ctx context.Context, key string) ([]byte, string, error) {
	if data, ct, ok := c.lookup(key); ok {
		return data, ct, nil
	}
	if c.backend == nil {
		return nil, "", store.ErrAvatarNotFound
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		data, ct, err := c.backend.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ct == "" {
			ct = mimetype.Detect(data).String()
		}
		c.remember(key, data, ct)
		return &entry{key: key, data: data, contentType: ct}, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", store.ErrAvatarNotFound
		}
		return nil, "", fmt.Errorf("thumbcache: 读取 %s 失败: %w", key, err)
	}
	e := v.(*entry)
	return append([]byte(nil), e.data...), e.contentType, nil
}

func (c *Cache) lookup(key string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, "", false
	}
	c.order.MoveToFront(el)
	e := el.Value.(*entry)
	return append([]byte(nil), e.data...), e.contentType, true
}

func (c *Cache) remember(key string, data []byte, contentType string) {
	if c.max == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value = &entry{key: key, data: data, contentType: contentType}
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&entry{key: key, data: data, contentType: contentType})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

func (c *Cache) forgetPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(el)
			delete(c.items, key)
		}
	}
}
