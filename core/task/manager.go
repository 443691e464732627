package task

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dnslin/owncloud-desktop/core/profilesync"
)

// 错误定义。
var (
	ErrTaskNotFound  = errors.New("task: 任务不存在")
	ErrTaskCanceled  = errors.New("task: 任务已取消")
	ErrInvalidStatus = errors.New("task: 无效的任务状态")
	// ErrTaskActive 表示该账号已有未结束的任务。
	ErrTaskActive = errors.New("task: 账号已有进行中的同步任务")
)

// Manager 任务管理器，负责任务调度和生命周期管理。
// 同一账号同时最多一个未结束的任务。
type Manager struct {
	mu        sync.RWMutex
	tasks     map[string]*Task              // 任务映射
	active    map[string]*Task              // 账号 -> 未结束任务
	callbacks []ProgressCallback            // 进度回调列表
	cancels   map[string]context.CancelFunc // 任务取消函数

	maxConcurrent int           // 最大并发数
	semaphore     chan struct{} // 并发控制信号量
}

// ManagerOption 管理器配置选项。
type ManagerOption func(*Manager)

// WithMaxConcurrent 设置最大并发数。
func WithMaxConcurrent(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxConcurrent = n
		}
	}
}

// NewManager 创建任务管理器。
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		tasks:         make(map[string]*Task),
		active:        make(map[string]*Task),
		callbacks:     make([]ProgressCallback, 0),
		cancels:       make(map[string]context.CancelFunc),
		maxConcurrent: 3, // 默认最大并发数
	}
	for _, opt := range opts {
		opt(m)
	}
	m.semaphore = make(chan struct{}, m.maxConcurrent)
	return m
}

var _ profilesync.Observer = (*Manager)(nil)

// generateID 生成任务 ID。
func generateID() string {
	return uuid.New().String()
}

// CreateTask 为账号登记任务；账号已有未结束任务时返回该任务与 ErrTaskActive。
func (m *Manager) CreateTask(account string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.active[account]; ok {
		return cur, ErrTaskActive
	}
	task := NewTask(generateID(), account)
	m.tasks[task.ID] = task
	m.active[account] = task
	return task, nil
}

// GetTask 获取任务。
func (m *Manager) GetTask(taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.Clone(), nil
}

// ActiveTask 返回账号当前未结束的任务。
func (m *Manager) ActiveTask(account string) (*Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.active[account]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// ListTasks 按创建时间列出所有任务。
func (m *Manager) ListTasks() []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		result = append(result, task.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// ListTasksByStatus 按状态列出任务。
func (m *Manager) ListTasksByStatus(status TaskStatus) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Task, 0)
	for _, task := range m.tasks {
		if task.GetStatus() == status {
			result = append(result, task.Clone())
		}
	}
	return result
}

// RemoveTask 移除任务。
func (m *Manager) RemoveTask(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	// 已标记取消但执行协程尚未退出的任务仍占用账号，不能移除
	if !isDone(task) {
		return ErrInvalidStatus
	}
	delete(m.tasks, taskID)
	delete(m.cancels, taskID)
	return nil
}

// PruneFinished 每个账号只保留最近 keep 个已结束任务，返回删除数量。
func (m *Manager) PruneFinished(keep int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAccount := make(map[string][]*Task)
	for _, t := range m.tasks {
		if isDone(t) {
			byAccount[t.Account] = append(byAccount[t.Account], t)
		}
	}
	removed := 0
	for _, list := range byAccount {
		if len(list) <= keep {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
		for _, t := range list[max(keep, 0):] {
			delete(m.tasks, t.ID)
			delete(m.cancels, t.ID)
			removed++
		}
	}
	return removed
}

// Cancel 取消任务。
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	task, ok := m.tasks[taskID]
	cancel, hasCancel := m.cancels[taskID]
	m.mu.Unlock()

	if !ok {
		return ErrTaskNotFound
	}

	if task.GetStatus().Finished() {
		return ErrInvalidStatus
	}

	// 先标记状态，runSync 看到 ctx 取消时据此区分取消与失败
	task.SetStatus(TaskStatusCanceled)
	if hasCancel {
		cancel()
	} else {
		// 没有执行协程持有该任务，直接结束
		m.finish(task)
	}
	m.notifyProgress(task)
	return nil
}

// isDone 判断任务的执行是否已退出。
func isDone(task *Task) bool {
	select {
	case <-task.Done():
		return true
	default:
		return false
	}
}

// Wait 阻塞直到任务结束或 ctx 取消。
func (m *Manager) Wait(ctx context.Context, taskID string) (*Task, error) {
	m.mu.RLock()
	task, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	select {
	case <-task.Done():
		return task.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnStage 实现 profilesync.Observer，记录账号当前任务的阶段。
func (m *Manager) OnStage(account string, stage profilesync.Stage) {
	m.mu.RLock()
	task, ok := m.active[account]
	m.mu.RUnlock()
	if !ok {
		return
	}
	task.SetStage(stage.String())
	m.notifyProgress(task)
}

// Subscribe 订阅进度更新。
func (m *Manager) Subscribe(callback ProgressCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// notifyProgress 通知进度更新。
func (m *Manager) notifyProgress(task *Task) {
	m.mu.RLock()
	callbacks := make([]ProgressCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.RUnlock()

	clone := task.Clone()
	for _, cb := range callbacks {
		cb(clone)
	}
}

// acquireSemaphore 获取信号量。
func (m *Manager) acquireSemaphore(ctx context.Context) error {
	select {
	case m.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseSemaphore 释放信号量。
func (m *Manager) releaseSemaphore() {
	<-m.semaphore
}

// registerCancel 注册取消函数。
func (m *Manager) registerCancel(taskID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[taskID] = cancel
}

// unregisterCancel 注销取消函数。
func (m *Manager) unregisterCancel(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, taskID)
}

// finish 释放账号占用并唤醒等待者。
func (m *Manager) finish(task *Task) {
	m.mu.Lock()
	if m.active[task.Account] == task {
		delete(m.active, task.Account)
	}
	m.mu.Unlock()
	task.markDone()
}
