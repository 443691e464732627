package task

import (
	"context"
	"errors"

	"github.com/dnslin/owncloud-desktop/core/model"
)

// Syncer 执行单个账号的资料同步，由 profilesync.Step 实现。
type Syncer interface {
	Execute(ctx context.Context, account string) (*model.UserProfile, error)
}

// AddSync 添加同步任务并在后台执行。
// 账号已有未结束任务时返回该任务 ID 与 ErrTaskActive。
func (m *Manager) AddSync(ctx context.Context, account string, syncer Syncer) (string, error) {
	if syncer == nil {
		return "", errors.New("task: syncer 为空")
	}
	task, err := m.CreateTask(account)
	if err != nil {
		return task.ID, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.registerCancel(task.ID, cancel)
	m.notifyProgress(task)

	go m.runSync(runCtx, task, syncer)
	return task.ID, nil
}

// runSync 执行同步任务。
func (m *Manager) runSync(ctx context.Context, task *Task, syncer Syncer) {
	defer m.finish(task)
	defer m.unregisterCancel(task.ID)

	// 获取信号量
	if err := m.acquireSemaphore(ctx); err != nil {
		if task.GetStatus() != TaskStatusCanceled {
			task.SetError(err)
		}
		m.notifyProgress(task)
		return
	}
	defer m.releaseSemaphore()

	// 检查任务状态
	if task.GetStatus() == TaskStatusCanceled {
		return
	}

	task.SetStatus(TaskStatusRunning)
	m.notifyProgress(task)

	profile, err := syncer.Execute(ctx, task.Account)
	if err != nil {
		if ctx.Err() != nil && task.GetStatus() != TaskStatusCanceled {
			err = errors.Join(ErrTaskCanceled, err)
		}
		task.SetError(err)
		m.notifyProgress(task)
		return
	}
	task.SetProfile(profile)
	m.notifyProgress(task)
}
