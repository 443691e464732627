// Package server 提供本地状态查询与手动触发同步的 HTTP 接口。
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	coreerrors "github.com/dnslin/owncloud-desktop/core/errors"
	"github.com/dnslin/owncloud-desktop/core/httpclient"
	"github.com/dnslin/owncloud-desktop/core/store"
	"github.com/dnslin/owncloud-desktop/core/task"
)

// AccountLister 列出已配置的账号。
type AccountLister interface {
	AccountIDs() []string
}

// Submitter 提交同步任务，syncer.Orchestrator 实现该接口。
type Submitter interface {
	Submit(ctx context.Context, account string) (string, error)
}

// TaskStore 查询与管理同步任务，task.Manager 实现该接口。
type TaskStore interface {
	ActiveTask(account string) (*task.Task, bool)
	ListTasks() []*task.Task
	GetTask(taskID string) (*task.Task, error)
	Cancel(taskID string) error
	RemoveTask(taskID string) error
}

// Deps 是路由依赖。
type Deps struct {
	Accounts AccountLister
	Profiles store.ProfileRepository
	Avatars  store.AvatarCache
	Tasks    TaskStore
	Sync     Submitter
	Logger   httpclient.Logger
}

type handlers struct {
	Deps
}

// NewRouter 创建路由。
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = httpclient.NopLogger{}
	}
	h := &handlers{Deps: deps}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Route("/{account}", func(r chi.Router) {
			r.Get("/profile", h.getProfile)
			r.Get("/avatar", h.getAvatar)
			r.Post("/sync", h.syncAccount)
		})
	})
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.listTasks)
		r.Get("/{id}", h.getTask)
		r.Post("/{id}/cancel", h.cancelTask)
		r.Delete("/{id}", h.removeTask)
	})
	return r
}

// accountParam 解析路径中的账号名，账号名本身可能包含转义后的 "/"。
func (h *handlers) accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, err := url.PathUnescape(chi.URLParam(r, "account"))
	if err != nil || account == "" {
		writeError(w, http.StatusBadRequest, "invalid_account", "invalid account name")
		return "", false
	}
	if !slices.Contains(h.Accounts.AccountIDs(), account) {
		writeError(w, http.StatusNotFound, "account_not_found", "account not found")
		return "", false
	}
	return account, true
}

func (h *handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	ids := h.Accounts.AccountIDs()
	out := make([]accountView, 0, len(ids))
	for _, id := range ids {
		v := accountView{Account: id}
		p, err := h.Profiles.Get(r.Context(), id)
		switch {
		case err == nil:
			v.Profile = newProfileView(p)
		case !errors.Is(err, store.ErrProfileNotFound):
			h.Logger.Errorf("读取 %s 资料失败: %v", id, err)
		}
		if t, ok := h.Tasks.ActiveTask(id); ok {
			v.TaskID = t.ID
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	p, err := h.Profiles.Get(r.Context(), account)
	if errors.Is(err, store.ErrProfileNotFound) {
		writeError(w, http.StatusNotFound, "profile_not_found", "profile not synced yet")
		return
	}
	if err != nil {
		h.Logger.Errorf("读取 %s 资料失败: %v", account, err)
		writeError(w, statusOf(err), "internal_error", "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, newProfileView(p))
}

func (h *handlers) getAvatar(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	p, err := h.Profiles.Get(r.Context(), account)
	if err != nil && !errors.Is(err, store.ErrProfileNotFound) {
		h.Logger.Errorf("读取 %s 资料失败: %v", account, err)
		writeError(w, statusOf(err), "internal_error", "failed to load profile")
		return
	}
	if p == nil || p.Avatar == nil {
		writeError(w, http.StatusNotFound, "avatar_not_found", "no avatar")
		return
	}
	data, contentType, err := h.Avatars.GetAvatar(r.Context(), p.Avatar.CacheKey)
	if errors.Is(err, store.ErrAvatarNotFound) {
		writeError(w, http.StatusNotFound, "avatar_not_found", "avatar missing from cache")
		return
	}
	if err != nil {
		h.Logger.Errorf("读取 %s 头像失败: %v", account, err)
		writeError(w, statusOf(err), "internal_error", "failed to load avatar")
		return
	}
	if contentType == "" {
		contentType = p.Avatar.MimeType
	}
	w.Header().Set("Content-Type", contentType)
	if p.Avatar.ETag != "" {
		w.Header().Set("ETag", `"`+p.Avatar.ETag+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) syncAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	// 任务生命周期不跟随请求
	id, err := h.Sync.Submit(context.WithoutCancel(r.Context()), account)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, submitView{TaskID: id})
	case errors.Is(err, task.ErrTaskActive):
		writeJSON(w, http.StatusConflict, submitView{TaskID: id})
	default:
		h.Logger.Errorf("提交 %s 同步失败: %v", account, err)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *handlers) listTasks(w http.ResponseWriter, _ *http.Request) {
	tasks := h.Tasks.ListTasks()
	out := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.GetTask(chi.URLParam(r, "id"))
	if errors.Is(err, task.ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, "task_not_found", "task not found")
		return
	}
	if err != nil || t == nil {
		h.Logger.Errorf("读取任务失败: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, newTaskView(t))
}

func (h *handlers) cancelTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, chi.URLParam(r, "id"), h.Tasks.Cancel)
}

func (h *handlers) removeTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, chi.URLParam(r, "id"), h.Tasks.RemoveTask)
}

// taskAction 执行取消或删除，已结束的任务不能取消，未结束的任务不能删除。
func (h *handlers) taskAction(w http.ResponseWriter, id string, action func(string) error) {
	switch err := action(id); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, task.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "task_not_found", "task not found")
	case errors.Is(err, task.ErrInvalidStatus):
		writeError(w, http.StatusConflict, "invalid_status", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// statusOf 把存储层错误分类映射为 HTTP 状态。
func statusOf(err error) int {
	if coreerrors.CodeOf(err) == coreerrors.ErrCodeUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
