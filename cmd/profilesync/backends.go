package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dnslin/owncloud-desktop/core/config"
	"github.com/dnslin/owncloud-desktop/core/logging"
	"github.com/dnslin/owncloud-desktop/core/store"
	"github.com/dnslin/owncloud-desktop/core/store/gormstore"
	"github.com/dnslin/owncloud-desktop/core/store/memstore"
	"github.com/dnslin/owncloud-desktop/core/store/mongostore"
	"github.com/dnslin/owncloud-desktop/core/store/pgxstore"
	"github.com/dnslin/owncloud-desktop/core/thumbcache"
)

// backends 汇总按配置选出的存储实现。
type backends struct {
	Accounts store.AccountStore
	Profiles store.ProfileRepository
	Avatars  store.AvatarCache

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, log *logging.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	switch cfg.AccountBackend {
	case config.BackendPostgres:
		db, err := gormstore.Open(cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			b.closers = append(b.closers, func() { _ = sqlDB.Close() })
		}
		accounts := gormstore.NewAccountStore(db)
		if err := accounts.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("迁移账号数据表失败: %w", err)
		}
		b.Accounts = accounts
	default:
		b.Accounts = memstore.NewAccountStore()
	}

	switch cfg.Profile.Backend {
	case config.BackendMongo:
		client, err := mongostore.Connect(ctx, cfg.Profile.MongoURI)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		profiles := mongostore.NewProfileRepository(client.Database(cfg.Profile.MongoDatabase))
		if err := profiles.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("创建资料索引失败: %w", err)
		}
		b.Profiles = profiles
	case config.BackendPostgres:
		pool, err := pgxstore.Connect(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		profiles := pgxstore.NewProfileRepository(pool)
		if err := profiles.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("迁移资料表失败: %w", err)
		}
		b.Profiles = profiles
	default:
		b.Profiles = memstore.NewProfileRepository()
	}

	backend, err := openAvatarBackend(ctx, cfg.Avatar)
	if err != nil {
		return nil, err
	}
	b.Avatars = thumbcache.New(backend,
		thumbcache.WithLogger(log),
		thumbcache.WithMemoryEntries(cfg.Avatar.MemoryEntries),
	)
	return b, nil
}

func openAvatarBackend(ctx context.Context, cfg config.AvatarConfig) (thumbcache.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return thumbcache.NewMemoryBackend(), nil
	case config.BackendDisk:
		return thumbcache.NewDiskBackend(cfg.Dir), nil
	case config.BackendMinio:
		return thumbcache.NewMinioBackend(ctx, thumbcache.MinioConfig{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		})
	case config.BackendB2:
		return thumbcache.NewB2Backend(ctx, cfg.B2.KeyID, cfg.B2.ApplicationKey, cfg.B2.Bucket)
	default:
		return nil, errors.New("未知的头像缓存后端: " + cfg.Backend)
	}
}
