package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/dnslin/owncloud-desktop/core/errors"
	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/store/memstore"
	"github.com/dnslin/owncloud-desktop/core/task"
	"github.com/dnslin/owncloud-desktop/core/thumbcache"
)

var pngData = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type accounts []string

func (a accounts) AccountIDs() []string { return a }

type managerSubmitter struct {
	tasks *task.Manager
	run   task.Syncer
}

func (m managerSubmitter) Submit(ctx context.Context, account string) (string, error) {
	return m.tasks.AddSync(ctx, account, m.run)
}

type syncFunc func(ctx context.Context, account string) (*model.UserProfile, error)

func (f syncFunc) Execute(ctx context.Context, account string) (*model.UserProfile, error) {
	return f(ctx, account)
}

type env struct {
	srv      *httptest.Server
	profiles *memstore.ProfileRepository
	avatars  *thumbcache.Cache
	tasks    *task.Manager
	release  chan struct{}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		profiles: memstore.NewProfileRepository(),
		avatars:  thumbcache.New(thumbcache.NewMemoryBackend()),
		tasks:    task.NewManager(),
		release:  make(chan struct{}),
	}
	run := syncFunc(func(ctx context.Context, account string) (*model.UserProfile, error) {
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &model.UserProfile{AccountName: account}, nil
	})
	router := NewRouter(Deps{
		Accounts: accounts{"alice@cloud.example.com", "bob@host/owncloud"},
		Profiles: e.profiles,
		Avatars:  e.avatars,
		Tasks:    e.tasks,
		Sync:     managerSubmitter{tasks: e.tasks, run: run},
	})
	e.srv = httptest.NewServer(router)
	t.Cleanup(func() {
		select {
		case <-e.release:
		default:
			close(e.release)
		}
		e.srv.Close()
	})
	return e
}

func (e *env) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func accountPath(account string) string {
	return "/accounts/" + url.PathEscape(account)
}

func TestGetProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	account := "alice@cloud.example.com"

	resp := e.do(t, http.MethodGet, accountPath(account)+"/profile")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	q := model.NewUserQuota(model.QuotaUnlimited, 10)
	require.NoError(t, e.profiles.Update(ctx, &model.UserProfile{
		AccountName: account, UserID: "alice", DisplayName: "Alice", Quota: &q,
		SyncedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}))
	resp = e.do(t, http.MethodGet, accountPath(account)+"/profile")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body profileView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Alice", body.DisplayName)
	require.NotNil(t, body.Quota)
	assert.True(t, body.Quota.Unlimited)
}

func TestUnknownAccount(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, accountPath("mallory@host")+"/profile")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetAvatar(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	account := "bob@host/owncloud"

	resp := e.do(t, http.MethodGet, accountPath(account)+"/avatar")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	key, err := e.avatars.AddAvatarToCache(ctx, account, pngData, 64)
	require.NoError(t, err)
	require.NoError(t, e.profiles.Update(ctx, &model.UserProfile{
		AccountName: account, UserID: "bob",
		Avatar: &model.UserAvatar{CacheKey: key, MimeType: "image/png", ETag: "v1"},
	}))

	resp = e.do(t, http.MethodGet, accountPath(account)+"/avatar")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, `"v1"`, resp.Header.Get("ETag"))
}

func TestSyncAndTasks(t *testing.T) {
	e := newEnv(t)
	account := "alice@cloud.example.com"

	resp := e.do(t, http.MethodPost, accountPath(account)+"/sync")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var first submitView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))
	require.NotEmpty(t, first.TaskID)

	resp = e.do(t, http.MethodPost, accountPath(account)+"/sync")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var second submitView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	assert.Equal(t, first.TaskID, second.TaskID)

	resp = e.do(t, http.MethodGet, "/accounts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []accountView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, first.TaskID, list[0].TaskID)

	close(e.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.tasks.Wait(ctx, first.TaskID)
	require.NoError(t, err)

	resp = e.do(t, http.MethodGet, "/tasks/"+first.TaskID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tv taskView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tv))
	assert.Equal(t, "completed", tv.Status)
	assert.Equal(t, account, tv.Account)

	resp = e.do(t, http.MethodGet, "/tasks")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tasks []taskView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
	assert.Len(t, tasks, 1)

	resp = e.do(t, http.MethodGet, "/tasks/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/tasks/"+first.TaskID+"/cancel")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/tasks/"+first.TaskID)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/tasks/"+first.TaskID)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCancelRunningTask(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, accountPath("alice@cloud.example.com")+"/sync")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var sub submitView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sub))

	resp = e.do(t, http.MethodDelete, "/tasks/"+sub.TaskID)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/tasks/"+sub.TaskID+"/cancel")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := e.tasks.Wait(ctx, sub.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskStatusCanceled, done.Status)
}

type downProfiles struct {
	*memstore.ProfileRepository
}

func (downProfiles) Get(context.Context, string) (*model.UserProfile, error) {
	return nil, coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "", errors.New("connection refused"))
}

func TestProfileStoreUnavailable(t *testing.T) {
	router := NewRouter(Deps{
		Accounts: accounts{"alice@cloud.example.com"},
		Profiles: downProfiles{memstore.NewProfileRepository()},
		Avatars:  thumbcache.New(thumbcache.NewMemoryBackend()),
		Tasks:    task.NewManager(),
		Sync:     managerSubmitter{},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, accountPath("alice@cloud.example.com")+"/profile", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAvatarStoreUnavailable(t *testing.T) {
	router := NewRouter(Deps{
		Accounts: accounts{"alice@cloud.example.com"},
		Profiles: downProfiles{memstore.NewProfileRepository()},
		Avatars:  thumbcache.New(thumbcache.NewMemoryBackend()),
		Tasks:    task.NewManager(),
		Sync:     managerSubmitter{},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, accountPath("alice@cloud.example.com")+"/avatar", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type brokenTasks struct {
	*task.Manager
}

func (brokenTasks) GetTask(string) (*task.Task, error) {
	return nil, errors.New("task index corrupted")
}

func TestGetTaskUnexpectedError(t *testing.T) {
	router := NewRouter(Deps{
		Accounts: accounts{"alice@cloud.example.com"},
		Profiles: memstore.NewProfileRepository(),
		Avatars:  thumbcache.New(thumbcache.NewMemoryBackend()),
		Tasks:    brokenTasks{task.NewManager()},
		Sync:     managerSubmitter{},
	})
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/abc", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}
