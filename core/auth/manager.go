package auth

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	coreerrors "github.com/dnslin/owncloud-desktop/core/errors"
	"github.com/dnslin/owncloud-desktop/core/store"
)

var (
	// ErrAccountNotFound 在账号不存在或未选择时返回。
	ErrAccountNotFound = coreerrors.New(coreerrors.ErrCodeNotFound, "auth: 未找到账号")
	// ErrAccountIDEmpty 在新增账号时未提供 ID 返回。
	ErrAccountIDEmpty = coreerrors.New(coreerrors.ErrCodeInvalidArgument, "auth: 账号 ID 不能为空")
	// ErrRefresherNil 需要刷新但未配置刷新器时返回。
	ErrRefresherNil = coreerrors.New(coreerrors.ErrCodeInvalidConfig, "auth: 未配置刷新器")
)

// Refresher 在凭证失效时更新会话存储，OAuthRefresher 为默认实现。
type Refresher interface {
	Refresh(ctx context.Context) error
	NeedsRefresh() bool
}

// AccountSession 记录账号关联的会话存储、刷新器与元信息。
// AccountID 即 ownCloud 账号名（user@host）。
type AccountSession struct {
	AccountID   string
	DisplayName string
	Store       store.SessionStore[*Session]
	Refresher   Refresher
}

// AuthManager 负责多账号的会话管理与自动刷新。
type AuthManager struct {
	mu       sync.RWMutex
	accounts map[string]*AccountSession
	current  string
	now      func() time.Time
}

// NewAuthManager 创建 AuthManager。
func NewAuthManager() *AuthManager {
	return &AuthManager{
		accounts: make(map[string]*AccountSession),
		now:      time.Now,
	}
}

// AddAccount 注册一个账号，会更新默认当前账号。
func (m *AuthManager) AddAccount(accountID string, session AccountSession) error {
	if accountID == "" {
		return ErrAccountIDEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accounts == nil {
		m.accounts = make(map[string]*AccountSession)
	}
	cp := session
	cp.AccountID = accountID
	m.accounts[accountID] = &cp
	if m.current == "" {
		m.current = accountID
	}
	return nil
}

// AccountIDs 返回按名称排序的账号 ID。
func (m *AuthManager) AccountIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetDisplayName 更新账号展示名，资料同步写入 display_name 时经 AccountData 调用。
func (m *AuthManager) SetDisplayName(accountID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	acc.DisplayName = name
	return nil
}

// DisplayName 返回账号展示名。
func (m *AuthManager) DisplayName(accountID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[accountID]
	if !ok {
		return "", false
	}
	return acc.DisplayName, true
}

// AccountData 包装账号数据存储，写入展示名时同步到 AuthManager。
type AccountData struct {
	store.AccountStore
	manager *AuthManager
}

var _ store.AccountStore = (*AccountData)(nil)

// AccountData 返回绑定到 next 的账号数据存储。
func (m *AuthManager) AccountData(next store.AccountStore) *AccountData {
	return &AccountData{AccountStore: next, manager: m}
}

// SetUserData 先落盘再更新内存中的展示名。
func (d *AccountData) SetUserData(ctx context.Context, account, key, value string) error {
	if err := d.AccountStore.SetUserData(ctx, account, key, value); err != nil {
		return err
	}
	if key == store.KeyDisplayName {
		return d.manager.SetDisplayName(account, value)
	}
	return nil
}

// GetAccount 返回指定账号（或当前账号）的有效 Session，必要时自动刷新。
func (m *AuthManager) GetAccount(ctx context.Context, accountID string) (*Session, error) {
	_, acc, err := m.resolveAccount(accountID)
	if err != nil {
		return nil, err
	}
	session, err := m.ensureSession(ctx, acc)
	if err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// RefreshAccount 主动触发账号刷新。
func (m *AuthManager) RefreshAccount(ctx context.Context, accountID string) error {
	accID, acc, err := m.resolveAccount(accountID)
	if err != nil {
		return err
	}
	if acc.Refresher == nil {
		return ErrRefresherNil
	}
	if err := acc.Refresher.Refresh(ctx); err != nil {
		return err
	}
	_, err = m.snapshot(accID)
	return err
}

// SessionProvider 返回面向当前存储的 SessionProvider，便于签名器获取最新凭证。
func (m *AuthManager) SessionProvider(accountID string) (SessionProvider, error) {
	accID, acc, err := m.resolveAccount(accountID)
	if err != nil {
		return nil, err
	}
	if acc.Store == nil {
		return nil, ErrSessionStoreNil
	}
	return &storeProvider{manager: m, accountID: accID}, nil
}

func (m *AuthManager) resolveAccount(accountID string) (string, *AccountSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id := accountID
	if id == "" {
		id = m.current
	}
	if id == "" {
		return "", nil, ErrAccountNotFound
	}
	acc := m.accounts[id]
	if acc == nil {
		return "", nil, ErrAccountNotFound
	}
	return id, acc, nil
}

func (m *AuthManager) ensureSession(ctx context.Context, acc *AccountSession) (*Session, error) {
	if acc.Store == nil {
		return nil, ErrSessionStoreNil
	}
	session, err := acc.Store.LoadSession()
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	needRefresh := session == nil || session.Expired(m.now())
	if acc.Refresher != nil && acc.Refresher.NeedsRefresh() {
		needRefresh = true
	}
	if needRefresh {
		if acc.Refresher == nil {
			return nil, ErrRefresherNil
		}
		if err := acc.Refresher.Refresh(ctx); err != nil {
			return nil, err
		}
		session, err = acc.Store.LoadSession()
		if err != nil {
			return nil, err
		}
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (m *AuthManager) snapshot(accountID string) (*Session, error) {
	m.mu.RLock()
	acc := m.accounts[accountID]
	m.mu.RUnlock()
	if acc == nil {
		return nil, ErrAccountNotFound
	}
	if acc.Store == nil {
		return nil, ErrSessionStoreNil
	}
	return acc.Store.LoadSession()
}

type storeProvider struct {
	manager   *AuthManager
	accountID string
}

func (p *storeProvider) session() *Session {
	if p == nil || p.manager == nil {
		return nil
	}
	session, err := p.manager.snapshot(p.accountID)
	if err != nil {
		return nil
	}
	return session
}

func (p *storeProvider) GetServerURL() string {
	return p.session().GetServerURL()
}

func (p *storeProvider) GetUserID() string {
	return p.session().GetUserID()
}

func (p *storeProvider) GetPassword() string {
	return p.session().GetPassword()
}

func (p *storeProvider) GetAccessToken() string {
	return p.session().GetAccessToken()
}
