package gormstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dnslin/owncloud-desktop/core/store"
)

func TestUpsertSQL(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return upsert(tx, &UserData{Account: "alice@host", Key: store.KeyDisplayName, Value: "Alice"})
	})
	assert.Contains(t, sql, `INSERT INTO "account_user_data"`)
	assert.Contains(t, sql, `ON CONFLICT ("account_name","data_key") DO UPDATE SET`)
	assert.Contains(t, sql, `"data_value"="excluded"."data_value"`)
}

// TestAccountStore_Integration 需要 DB_DSN 指向可写的 PostgreSQL。
func TestAccountStore_Integration(t *testing.T) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("未设置 DB_DSN，跳过 PostgreSQL 集成测试")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(dsn)
	require.NoError(t, err)
	s := NewAccountStore(db)
	require.NoError(t, s.Migrate(ctx))
	account := "gormstore-test@host"
	t.Cleanup(func() { _ = s.DeleteAccount(context.Background(), account) })

	_, err = s.GetUserData(ctx, account, store.KeyUserID)
	assert.ErrorIs(t, err, store.ErrUserDataNotFound)

	require.NoError(t, s.SetUserData(ctx, account, store.KeyDisplayName, "Alice"))
	require.NoError(t, s.SetUserData(ctx, account, store.KeyDisplayName, "Alice Doe"))
	v, err := s.GetUserData(ctx, account, store.KeyDisplayName)
	require.NoError(t, err)
	assert.Equal(t, "Alice Doe", v)
}
