// Package task 提供账号资料同步任务的调度与生命周期管理。
package task

import (
	"sync"
	"time"

	"github.com/dnslin/owncloud-desktop/core/model"
)

// TaskStatus 任务状态。
type TaskStatus int

const (
	// TaskStatusPending 等待中。
	TaskStatusPending TaskStatus = iota
	// TaskStatusRunning 运行中。
	TaskStatusRunning
	// TaskStatusCompleted 已完成。
	TaskStatusCompleted
	// TaskStatusFailed 失败。
	TaskStatusFailed
	// TaskStatusCanceled 已取消。
	TaskStatusCanceled
)

// String 返回任务状态的字符串表示。
func (s TaskStatus) String() string {
	switch s {
	case TaskStatusPending:
		return "pending"
	case TaskStatusRunning:
		return "running"
	case TaskStatusCompleted:
		return "completed"
	case TaskStatusFailed:
		return "failed"
	case TaskStatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Finished 判断是否为终止状态。
func (s TaskStatus) Finished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCanceled
}

// Task 表示一次账号资料同步。
type Task struct {
	mu sync.RWMutex

	// 基本信息
	ID         string     // 任务唯一标识
	Account    string     // 账号名
	Status     TaskStatus // 任务状态
	Stage      string     // 当前同步阶段
	CreatedAt  time.Time  // 创建时间
	UpdatedAt  time.Time  // 更新时间
	FinishedAt time.Time  // 结束时间

	// 结果
	Profile *model.UserProfile
	Error   error

	done chan struct{}
	once sync.Once
}

// NewTask 创建新任务。
func NewTask(id, account string) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		Account:   account,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		done:      make(chan struct{}),
	}
}

// SetStatus 设置任务状态，终止状态不再改变。
func (t *Task) SetStatus(status TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status.Finished() {
		return
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	if status.Finished() {
		t.FinishedAt = t.UpdatedAt
	}
}

// GetStatus 获取任务状态。
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// SetStage 记录同步阶段。
func (t *Task) SetStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Stage = stage
	t.UpdatedAt = time.Now()
}

// SetError 设置任务错误并标记失败，已取消的任务保持取消。
func (t *Task) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = err
	if t.Status.Finished() {
		return
	}
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now()
	t.FinishedAt = t.UpdatedAt
}

// SetProfile 记录同步结果并标记完成。
func (t *Task) SetProfile(profile *model.UserProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Profile = profile.Clone()
	if t.Status.Finished() {
		return
	}
	t.Status = TaskStatusCompleted
	t.UpdatedAt = time.Now()
	t.FinishedAt = t.UpdatedAt
}

// Done 返回任务结束时关闭的 channel。
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) markDone() {
	t.once.Do(func() { close(t.done) })
}

// Clone 返回任务的副本（用于安全传递给回调）。
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &Task{
		ID:         t.ID,
		Account:    t.Account,
		Status:     t.Status,
		Stage:      t.Stage,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
		FinishedAt: t.FinishedAt,
		Profile:    t.Profile.Clone(),
		Error:      t.Error,
		done:       t.done,
	}
}

// ProgressCallback 进度回调函数类型。
type ProgressCallback func(task *Task)
