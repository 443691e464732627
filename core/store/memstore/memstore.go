// Package memstore 提供 store 接口的内存实现，用于测试与单机 CLI。
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/store"
)

// SessionStore 内存会话存储；T 实现 Clone() T 时读写均复制。
type SessionStore[T any] struct {
	mu         sync.RWMutex
	session    T
	hasSession bool
	notFound   error
}

// NewSessionStore 创建会话存储，notFound 为会话缺失时返回的错误。
func NewSessionStore[T any](notFound error) *SessionStore[T] {
	return &SessionStore[T]{notFound: notFound}
}

func (m *SessionStore[T]) SaveSession(session T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if any(session) == nil {
		m.reset()
		return nil
	}
	m.session = cloneValue(session)
	m.hasSession = true
	return nil
}

func (m *SessionStore[T]) LoadSession() (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasSession {
		var zero T
		return zero, m.notFound
	}
	return cloneValue(m.session), nil
}

func (m *SessionStore[T]) ClearSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *SessionStore[T]) reset() {
	var zero T
	m.session = zero
	m.hasSession = false
}

func cloneValue[T any](v T) T {
	if c, ok := any(v).(interface{ Clone() T }); ok {
		return c.Clone()
	}
	return v
}

// AccountStore 内存账号数据。
type AccountStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewAccountStore 创建 AccountStore。
func NewAccountStore() *AccountStore {
	return &AccountStore{data: make(map[string]map[string]string)}
}

func (s *AccountStore) SetUserData(_ context.Context, account, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.data[account]
	if !ok {
		kv = make(map[string]string)
		s.data[account] = kv
	}
	kv[key] = value
	return nil
}

func (s *AccountStore) GetUserData(_ context.Context, account, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[account][key]
	if !ok {
		return "", store.ErrUserDataNotFound
	}
	return v, nil
}

// ProfileRepository 内存资料库，读写均返回副本。
type ProfileRepository struct {
	mu       sync.RWMutex
	profiles map[string]*model.UserProfile
}

// NewProfileRepository 创建 ProfileRepository。
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{profiles: make(map[string]*model.UserProfile)}
}

func (r *ProfileRepository) Get(_ context.Context, account string) (*model.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[account]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (r *ProfileRepository) List(_ context.Context) ([]*model.UserProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.UserProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountName < out[j].AccountName })
	return out, nil
}

func (r *ProfileRepository) Update(_ context.Context, profile *model.UserProfile) error {
	if profile == nil || profile.AccountName == "" {
		return store.ErrInvalidProfile
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.AccountName] = profile.Clone()
	return nil
}

func (r *ProfileRepository) DeleteAvatar(_ context.Context, account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[account]; ok {
		p.Avatar = nil
	}
	return nil
}

func (r *ProfileRepository) Delete(_ context.Context, account string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, account)
	return nil
}

var (
	_ store.AccountStore      = (*AccountStore)(nil)
	_ store.ProfileRepository = (*ProfileRepository)(nil)
)
