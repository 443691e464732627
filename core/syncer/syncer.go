// Package syncer 按周期为所有账号调度资料同步。
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnslin/owncloud-desktop/core/httpclient"
	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/task"
)

// AccountLister 列出需要同步的账号，auth.AuthManager 实现该接口。
type AccountLister interface {
	AccountIDs() []string
}

// Result 是单个账号的同步结果。
type Result struct {
	Account string
	TaskID  string
	Profile *model.UserProfile
	Err     error
}

// Orchestrator 通过 task.Manager 调度 Step，保证同一账号不会并发同步。
type Orchestrator struct {
	tasks       *task.Manager
	step        task.Syncer
	accounts    AccountLister
	concurrency int
	history     int
	logger      httpclient.Logger
}

// Option 配置 Orchestrator。
type Option func(*Orchestrator)

// WithConcurrency 限制 SyncAll 同时处理的账号数。
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithHistory 设置 Run 每轮结束后每个账号保留的已结束任务数。
func WithHistory(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.history = n
		}
	}
}

// WithLogger 注入日志。
func WithLogger(logger httpclient.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New 创建 Orchestrator。
func New(tasks *task.Manager, step task.Syncer, accounts AccountLister, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tasks:       tasks,
		step:        step,
		accounts:    accounts,
		concurrency: 2,
		history:     5,
		logger:      httpclient.NopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Submit 提交账号同步任务并立即返回任务 ID。
// 账号已有进行中的任务时返回该任务 ID 与 task.ErrTaskActive。
func (o *Orchestrator) Submit(ctx context.Context, account string) (string, error) {
	return o.tasks.AddSync(ctx, account, o.step)
}

// SyncAccount 同步单个账号并等待结果；已有进行中的任务时等待该任务。
func (o *Orchestrator) SyncAccount(ctx context.Context, account string) Result {
	id, err := o.Submit(ctx, account)
	if err != nil && !errors.Is(err, task.ErrTaskActive) {
		return Result{Account: account, Err: err}
	}
	t, err := o.tasks.Wait(ctx, id)
	if err != nil {
		return Result{Account: account, TaskID: id, Err: err}
	}
	res := Result{Account: account, TaskID: id, Profile: t.Profile, Err: t.Error}
	if res.Err == nil && t.Status == task.TaskStatusCanceled {
		res.Err = task.ErrTaskCanceled
	}
	return res
}

// SyncAll 同步所有账号，单个账号失败不影响其他账号。
// 返回按账号顺序排列的结果，以及所有失败的合并错误。
func (o *Orchestrator) SyncAll(ctx context.Context) ([]Result, error) {
	ids := o.accounts.AccountIDs()
	results := make([]Result, len(ids))
	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = o.SyncAccount(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			o.logger.Errorf("账号 %s 同步失败: %v", r.Account, r.Err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Account, r.Err))
		}
	}
	o.logger.Infof("本轮同步完成: %d 个账号, %d 个失败", len(results), len(errs))
	return results, errors.Join(errs...)
}

// Run 立即同步一轮，此后每隔 interval 同步一次，直到 ctx 取消。
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("syncer: 同步间隔无效: %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := o.SyncAll(ctx); err != nil {
			o.logger.Debugf("本轮存在失败账号: %v", err)
		}
		if n := o.tasks.PruneFinished(o.history); n > 0 {
			o.logger.Debugf("清理 %d 个历史任务", n)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
