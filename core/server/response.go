package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/task"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type quotaView struct {
	Available int64   `json:"available"`
	Used      int64   `json:"used"`
	Total     int64   `json:"total"`
	Relative  float64 `json:"relative"`
	Unlimited bool    `json:"unlimited"`
}

type avatarView struct {
	CacheKey string `json:"cache_key"`
	MimeType string `json:"mime_type"`
	ETag     string `json:"etag,omitempty"`
}

type profileView struct {
	AccountName string      `json:"account_name"`
	UserID      string      `json:"user_id"`
	DisplayName string      `json:"display_name"`
	Email       string      `json:"email,omitempty"`
	Quota       *quotaView  `json:"quota,omitempty"`
	Avatar      *avatarView `json:"avatar,omitempty"`
	SyncedAt    *time.Time  `json:"synced_at,omitempty"`
}

func newProfileView(p *model.UserProfile) *profileView {
	if p == nil {
		return nil
	}
	v := &profileView{
		AccountName: p.AccountName,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
	}
	if q := p.Quota; q != nil {
		v.Quota = &quotaView{Available: q.Available, Used: q.Used, Total: q.Total, Relative: q.Relative, Unlimited: q.Unlimited()}
	}
	if a := p.Avatar; a != nil {
		v.Avatar = &avatarView{CacheKey: a.CacheKey, MimeType: a.MimeType, ETag: a.ETag}
	}
	if !p.SyncedAt.IsZero() {
		t := p.SyncedAt
		v.SyncedAt = &t
	}
	return v
}

type taskView struct {
	ID         string       `json:"id"`
	Account    string       `json:"account"`
	Status     string       `json:"status"`
	Stage      string       `json:"stage,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Profile    *profileView `json:"profile,omitempty"`
}

func newTaskView(t *task.Task) taskView {
	v := taskView{
		ID:        t.ID,
		Account:   t.Account,
		Status:    t.Status.String(),
		Stage:     t.Stage,
		CreatedAt: t.CreatedAt,
		Profile:   newProfileView(t.Profile),
	}
	if t.Error != nil {
		v.Error = t.Error.Error()
	}
	if !t.FinishedAt.IsZero() {
		f := t.FinishedAt
		v.FinishedAt = &f
	}
	return v
}

type accountView struct {
	Account string       `json:"account"`
	Profile *profileView `json:"profile,omitempty"`
	TaskID  string       `json:"active_task_id,omitempty"`
}

type submitView struct {
	TaskID string `json:"task_id"`
}
