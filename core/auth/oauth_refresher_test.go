package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOAuthRefresher_RefreshByToken(t *testing.T) {
	var gotGrant, gotClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultTokenPath {
			t.Errorf("令牌路径错误: %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotGrant = r.PostForm.Get("grant_type")
		gotClient, _, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at2","refresh_token":"rt2","expires_in":3600,"user_id":"alice"}`))
	}))
	defer srv.Close()

	fixed := time.Unix(1_700_000_000, 0)
	store := &memorySessionStore{}
	_ = store.SaveSession(&Session{ServerURL: srv.URL, AccessToken: "at1", RefreshToken: "rt1"})
	r := NewOAuthRefresher(nil, store, OAuthClient{ID: "desktop", Secret: "s"}, WithRefresherNow(func() time.Time { return fixed }))

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("刷新失败: %v", err)
	}
	if gotGrant != "refresh_token" || gotClient != "desktop" {
		t.Fatalf("请求参数不正确: grant=%s client=%s", gotGrant, gotClient)
	}
	session, _ := store.LoadSession()
	if session.AccessToken != "at2" || session.RefreshToken != "rt2" || session.UserID != "alice" {
		t.Fatalf("会话未更新: %+v", session)
	}
	if !session.ExpiresAt.Equal(fixed.Add(time.Hour)) {
		t.Fatalf("过期时间不正确: %v", session.ExpiresAt)
	}
}

func TestOAuthRefresher_FallbackToPassword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	store := &memorySessionStore{}
	_ = store.SaveSession(&Session{ServerURL: srv.URL, UserID: "bob", Password: "app-pass", AccessToken: "stale", RefreshToken: "bad"})
	r := NewOAuthRefresher(nil, store, OAuthClient{})

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("应回退应用密码: %v", err)
	}
	session, _ := store.LoadSession()
	if session.AccessToken != "" || session.Password != "app-pass" {
		t.Fatalf("回退后应清空令牌并保留密码: %+v", session)
	}
	if r.NeedsRefresh() {
		t.Fatalf("有密码的 Basic 会话不需要刷新")
	}
}

func TestOAuthRefresher_MissingCredentials(t *testing.T) {
	store := &memorySessionStore{}
	_ = store.SaveSession(&Session{ServerURL: "http://127.0.0.1:0"})
	r := NewOAuthRefresher(nil, store, OAuthClient{})
	if err := r.Refresh(context.Background()); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("应返回缺少凭证错误，实际: %v", err)
	}
}
