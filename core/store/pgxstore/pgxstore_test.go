package pgxstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/store"
)

func sampleProfile() *model.UserProfile {
	q := model.NewUserQuota(model.QuotaUnlimited, 4096)
	return &model.UserProfile{
		AccountName: "alice@cloud.example.com",
		UserID:      "alice",
		DisplayName: "Alice Doe",
		Quota:       &q,
		Avatar:      &model.UserAvatar{CacheKey: "avatars/alice@cloud.example.com/128", MimeType: "image/png"},
		SyncedAt:    time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestRowMapping(t *testing.T) {
	p := sampleProfile()
	w := toRow(p)
	assert.Equal(t, p, w.toModel())

	p.Quota, p.Avatar = nil, nil
	w = toRow(p)
	assert.Nil(t, w.QuotaAvailable)
	assert.Nil(t, w.AvatarKey)
	assert.Equal(t, p, w.toModel())
}

func TestRowMapping_AvatarWithoutETag(t *testing.T) {
	key := "avatars/bob@host/64"
	w := row{AccountName: "bob@host", AvatarKey: &key}
	got := w.toModel()
	require.NotNil(t, got.Avatar)
	assert.Equal(t, model.UserAvatar{CacheKey: key}, *got.Avatar)
	assert.Nil(t, got.Quota)
}

// TestProfileRepository_Integration 需要 DB_DSN 指向可写的 PostgreSQL。
func TestProfileRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("未设置 DB_DSN，跳过 PostgreSQL 集成测试")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewProfileRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	p := sampleProfile()
	t.Cleanup(func() { _ = repo.Delete(context.Background(), p.AccountName) })

	require.NoError(t, repo.Update(ctx, p))
	p.DisplayName = "Alice D."
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.Get(ctx, p.AccountName)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	require.NoError(t, repo.DeleteAvatar(ctx, p.AccountName))
	got, err = repo.Get(ctx, p.AccountName)
	require.NoError(t, err)
	assert.Nil(t, got.Avatar)
	require.NotNil(t, got.Quota)
	assert.True(t, got.Quota.Unlimited())

	require.NoError(t, repo.Delete(ctx, p.AccountName))
	_, err = repo.Get(ctx, p.AccountName)
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}
