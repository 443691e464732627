// profilesync 周期同步 ownCloud 账号的用户资料、配额与头像，并提供本地状态接口。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dnslin/owncloud-desktop/core/auth"
	"github.com/dnslin/owncloud-desktop/core/config"
	"github.com/dnslin/owncloud-desktop/core/httpclient"
	"github.com/dnslin/owncloud-desktop/core/logging"
	"github.com/dnslin/owncloud-desktop/core/owncloud"
	"github.com/dnslin/owncloud-desktop/core/profilesync"
	"github.com/dnslin/owncloud-desktop/core/server"
	"github.com/dnslin/owncloud-desktop/core/store/memstore"
	"github.com/dnslin/owncloud-desktop/core/syncer"
	"github.com/dnslin/owncloud-desktop/core/task"
)

func main() {
	once := flag.Bool("once", false, "同步一次所有账号后退出")
	serve := flag.Bool("serve", true, "启动本地状态接口")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once, *serve); err != nil {
		fmt.Fprintf(os.Stderr, "profilesync: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once, serve bool) error {
	log := logging.NewFromEnv()
	cfg, err := config.Load(log)
	if err != nil {
		return err
	}
	log = logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	log.Info("配置已加载", cfg.Summary()...)

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	manager, err := newAuthManager(cfg, log)
	if err != nil {
		return err
	}
	clients := newAccountClients(cfg, manager, log)

	tasks := task.NewManager(task.WithMaxConcurrent(cfg.Sync.Concurrency))
	tasks.Subscribe(func(t *task.Task) {
		log.Debugf("任务 %s 账号=%s 状态=%s 阶段=%s", t.ID, t.Account, t.Status, t.Stage)
	})
	step, err := profilesync.NewStep(clients, manager.AccountData(b.Accounts), b.Profiles, b.Avatars, profilesync.Options{
		AvatarDimension: cfg.Sync.AvatarDimension,
		Logger:          log,
		Observer:        tasks,
	})
	if err != nil {
		return err
	}
	orch := syncer.New(tasks, step, manager,
		syncer.WithConcurrency(cfg.Sync.Concurrency),
		syncer.WithLogger(log),
	)

	if once {
		results, err := orch.SyncAll(ctx)
		for _, r := range results {
			if r.Err != nil {
				log.Error("同步失败", r.Err, "account", r.Account, "task", r.TaskID)
				continue
			}
			log.Info("同步完成", "account", r.Account, "display_name", r.Profile.DisplayName, "task", r.TaskID)
		}
		return err
	}

	var srv *http.Server
	if serve {
		srv = &http.Server{
			Addr: cfg.StatusAddr,
			Handler: server.NewRouter(server.Deps{
				Accounts: manager,
				Profiles: b.Profiles,
				Avatars:  b.Avatars,
				Tasks:    tasks,
				Sync:     orch,
				Logger:   log,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("状态接口已启动", "addr", cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("状态接口异常退出", err)
			}
		}()
	}

	err = orch.Run(ctx, cfg.Sync.Interval)
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newAuthManager 按配置注册账号。
func newAuthManager(cfg config.Config, log httpclient.Logger) (*auth.AuthManager, error) {
	acc := cfg.Account
	sessions := memstore.NewSessionStore[*auth.Session](auth.ErrSessionNotFound)
	session := &auth.Session{
		ServerURL:    acc.ServerURL,
		UserID:       acc.Username,
		Password:     acc.Password,
		AccessToken:  acc.AccessToken,
		RefreshToken: acc.RefreshToken,
	}
	if err := sessions.SaveSession(session); err != nil {
		return nil, err
	}
	// 刷新令牌请求不走带鉴权重试的客户端
	refresher := auth.NewOAuthRefresher(
		httpclient.NewClient(httpclient.WithLogger(log)),
		sessions,
		auth.OAuthClient{ID: acc.OAuthClientID, Secret: acc.OAuthClientSecret},
		auth.WithRefresherLogger(log),
	)
	accountID := auth.AccountName(acc.ServerURL, acc.Username)
	manager := auth.NewAuthManager()
	if err := manager.AddAccount(accountID, auth.AccountSession{
		Store:     sessions,
		Refresher: refresher,
	}); err != nil {
		return nil, err
	}
	return manager, nil
}

// accountClients 为每个账号维护独立的 httpclient，刷新钩子只刷新该账号。
// 同一服务器上的账号共享限流器。
type accountClients struct {
	mu      sync.Mutex
	cfg     config.Config
	manager *auth.AuthManager
	limiter httpclient.RateLimiter
	log     *logging.Logger
	byID    map[string]*httpclient.Client
}

func newAccountClients(cfg config.Config, manager *auth.AuthManager, log *logging.Logger) *accountClients {
	return &accountClients{
		cfg:     cfg,
		manager: manager,
		limiter: httpclient.NewHostLimiter(cfg.HTTP.RateLimit, int(cfg.HTTP.RateLimit)),
		log:     log,
		byID:    make(map[string]*httpclient.Client),
	}
}

// Client 实现 profilesync.ClientProvider。
func (a *accountClients) Client(account string) (profilesync.RemoteClient, error) {
	session, err := a.manager.SessionProvider(account)
	if err != nil {
		return nil, err
	}
	return owncloud.NewClient(session, owncloud.WithHTTPClient(a.httpClient(account)), owncloud.WithLogger(a.log)), nil
}

func (a *accountClients) httpClient(account string) *httpclient.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cli, ok := a.byID[account]; ok {
		return cli
	}
	cli := newHTTPClient(a.cfg, a.log, a.limiter, func() error {
		rctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.Timeout)
		defer cancel()
		return a.manager.RefreshAccount(rctx, account)
	})
	a.byID[account] = cli
	return cli
}

func newHTTPClient(cfg config.Config, log httpclient.Logger, limiter httpclient.RateLimiter, refresh func() error) *httpclient.Client {
	retry := httpclient.DefaultRetryConfig()
	retry.MaxRetries = cfg.HTTP.MaxRetries
	retry.Refresh = refresh
	retry.Logger = log
	return httpclient.NewClient(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		httpclient.WithRetryPolicy(httpclient.NewExponentialBackoffRetry(retry)),
		httpclient.WithRateLimiter(limiter),
		httpclient.WithLogger(log),
	)
}
