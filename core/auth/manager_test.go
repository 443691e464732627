package auth

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dnslin/owncloud-desktop/core/store"
)

// 内存实现的 SessionStore，便于测试。
type memorySessionStore struct {
	mu      sync.Mutex
	session *Session
}

func (s *memorySessionStore) SaveSession(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session == nil {
		s.session = nil
		return nil
	}
	s.session = session.Clone()
	return nil
}

func (s *memorySessionStore) LoadSession() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, ErrSessionNotFound
	}
	return s.session.Clone(), nil
}

func (s *memorySessionStore) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

type fakeRefresher struct {
	store         store.SessionStore[*Session]
	next          *Session
	err           error
	needsRefresh  bool
	refreshCalled int
}

func (r *fakeRefresher) Refresh(ctx context.Context) error {
	r.refreshCalled++
	if r.err != nil {
		return r.err
	}
	if r.store != nil && r.next != nil {
		return r.store.SaveSession(r.next)
	}
	return nil
}

func (r *fakeRefresher) NeedsRefresh() bool {
	return r.needsRefresh
}

// TestAuthManager_RealServer 使用真实服务器验证会话获取。
func TestAuthManager_RealServer(t *testing.T) {
	serverURL := os.Getenv("OC_SERVER_URL")
	username := os.Getenv("OC_USERNAME")
	password := os.Getenv("OC_PASSWORD")
	if serverURL == "" || username == "" || password == "" {
		t.Skip("未配置 OC_SERVER_URL/OC_USERNAME/OC_PASSWORD，跳过真实服务器测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	store := &memorySessionStore{}
	_ = store.SaveSession(&Session{ServerURL: serverURL, UserID: username, Password: password})
	manager := NewAuthManager()
	id := AccountName(serverURL, username)
	if err := manager.AddAccount(id, AccountSession{
		Store:     store,
		Refresher: NewOAuthRefresher(nil, store, OAuthClient{}),
	}); err != nil {
		t.Fatalf("添加账号失败: %v", err)
	}

	session, err := manager.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("获取会话失败: %v", err)
	}
	if session.UserID != username {
		t.Fatalf("会话用户不匹配: %+v", session)
	}
}

// TestAuthManager_MultiAccountSwitch 验证多账号添加与切换。
func TestAuthManager_MultiAccountSwitch(t *testing.T) {
	manager := NewAuthManager()

	store1 := &memorySessionStore{}
	_ = store1.SaveSession(&Session{ServerURL: "https://a.example.com", UserID: "u1", Password: "p1"})
	if err := manager.AddAccount("u1@a.example.com", AccountSession{
		DisplayName: "账号1",
		Store:       store1,
		Refresher:   &fakeRefresher{store: store1},
	}); err != nil {
		t.Fatalf("添加第一个账号失败: %v", err)
	}

	store2 := &memorySessionStore{}
	_ = store2.SaveSession(&Session{ServerURL: "https://b.example.com", UserID: "u2", Password: "p2"})
	if err := manager.AddAccount("u2@b.example.com", AccountSession{
		DisplayName: "账号2",
		Store:       store2,
		Refresher:   &fakeRefresher{store: store2},
	}); err != nil {
		t.Fatalf("添加第二个账号失败: %v", err)
	}

	ids := manager.AccountIDs()
	if len(ids) != 2 || ids[0] != "u1@a.example.com" {
		t.Fatalf("账号列表应有序且包含两个账号，实际: %v", ids)
	}

	// 未指定账号时使用第一个添加的账号
	current, err := manager.GetAccount(context.Background(), "")
	if err != nil {
		t.Fatalf("获取当前账号失败: %v", err)
	}
	if current.UserID != "u1" {
		t.Fatalf("默认应返回 u1 会话，实际 %s", current.UserID)
	}
	if _, err := manager.GetAccount(context.Background(), "nobody@c.example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("未知账号应返回 ErrAccountNotFound，实际: %v", err)
	}
}

// TestAccountData_SyncsDisplayName 写入 display_name 时同步展示名，其他键只落盘。
func TestAccountData_SyncsDisplayName(t *testing.T) {
	manager := NewAuthManager()
	sessions := &memorySessionStore{}
	if err := manager.AddAccount("alice@cloud.example.com", AccountSession{DisplayName: "alice", Store: sessions}); err != nil {
		t.Fatalf("添加账号失败: %v", err)
	}
	backing := &mapAccountStore{data: map[string]string{}}
	data := manager.AccountData(backing)
	ctx := context.Background()

	if err := data.SetUserData(ctx, "alice@cloud.example.com", store.KeyUserID, "alice"); err != nil {
		t.Fatalf("写入 user_id 失败: %v", err)
	}
	if name, _ := manager.DisplayName("alice@cloud.example.com"); name != "alice" {
		t.Fatalf("写入其他键不应改变展示名，实际 %q", name)
	}
	if err := data.SetUserData(ctx, "alice@cloud.example.com", store.KeyDisplayName, "Alice Liddell"); err != nil {
		t.Fatalf("写入展示名失败: %v", err)
	}
	if name, ok := manager.DisplayName("alice@cloud.example.com"); !ok || name != "Alice Liddell" {
		t.Fatalf("展示名未同步: %q", name)
	}
	if got, _ := data.GetUserData(ctx, "alice@cloud.example.com", store.KeyDisplayName); got != "Alice Liddell" {
		t.Fatalf("底层存储未写入: %q", got)
	}

	backing.err = errors.New("disk full")
	if err := data.SetUserData(ctx, "alice@cloud.example.com", store.KeyDisplayName, "Other"); err == nil {
		t.Fatal("底层写入失败应返回错误")
	}
	if name, _ := manager.DisplayName("alice@cloud.example.com"); name != "Alice Liddell" {
		t.Fatalf("写入失败时不应更新展示名，实际 %q", name)
	}
}

type mapAccountStore struct {
	data map[string]string
	err  error
}

func (s *mapAccountStore) SetUserData(_ context.Context, account, key, value string) error {
	if s.err != nil {
		return s.err
	}
	s.data[account+"/"+key] = value
	return nil
}

func (s *mapAccountStore) GetUserData(_ context.Context, account, key string) (string, error) {
	v, ok := s.data[account+"/"+key]
	if !ok {
		return "", store.ErrUserDataNotFound
	}
	return v, nil
}

// TestAuthManager_RefreshExpiredSession 过期会话应触发刷新并写回存储。
func TestAuthManager_RefreshExpiredSession(t *testing.T) {
	store := &memorySessionStore{}
	_ = store.SaveSession(&Session{
		ServerURL:   "https://cloud.example.com",
		AccessToken: "old",
		ExpiresAt:   time.Now().Add(-time.Hour),
	})

	refresher := &fakeRefresher{
		store: store,
		next: &Session{
			ServerURL:   "https://cloud.example.com",
			AccessToken: "new",
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}

	manager := NewAuthManager()
	if err := manager.AddAccount("refresh@cloud.example.com", AccountSession{
		Store:     store,
		Refresher: refresher,
	}); err != nil {
		t.Fatalf("添加账号失败: %v", err)
	}

	session, err := manager.GetAccount(context.Background(), "refresh@cloud.example.com")
	if err != nil {
		t.Fatalf("获取会话失败: %v", err)
	}
	if refresher.refreshCalled != 1 {
		t.Fatalf("过期会话应触发一次刷新，实际 %d 次", refresher.refreshCalled)
	}
	if session.AccessToken != "new" {
		t.Fatalf("刷新后会话应更新为新值，实际: %+v", session)
	}

	provider, err := manager.SessionProvider("refresh@cloud.example.com")
	if err != nil {
		t.Fatalf("获取 SessionProvider 失败: %v", err)
	}
	if provider.GetAccessToken() != "new" || provider.GetServerURL() != "https://cloud.example.com" {
		t.Fatalf("SessionProvider 应读取最新会话")
	}
}

func TestAccountName(t *testing.T) {
	name := AccountName("https://cloud.example.com/owncloud/", "alice@corp.com")
	if name != "alice@corp.com@cloud.example.com/owncloud" {
		t.Fatalf("账号名不符合预期: %s", name)
	}
	if user := UserFromAccountName(name); user != "alice@corp.com" {
		t.Fatalf("用户名解析错误: %s", user)
	}
}
