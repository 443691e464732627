// Package pgxstore 在 PostgreSQL 中保存用户资料。
package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	coreerrors "github.com/dnslin/owncloud-desktop/core/errors"
	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_profiles (
	account_name    TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	display_name    TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	quota_available BIGINT,
	quota_relative  DOUBLE PRECISION,
	quota_total     BIGINT,
	quota_used      BIGINT,
	avatar_key      TEXT,
	avatar_mime     TEXT,
	avatar_etag     TEXT,
	synced_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const selectColumns = `account_name, user_id, display_name, email,
	quota_available, quota_relative, quota_total, quota_used,
	avatar_key, avatar_mime, avatar_etag, synced_at`

// Connect 创建连接池并校验连通性。
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("创建连接池失败: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("数据库 ping 失败: %w", err)
	}
	return pool, nil
}

// ProfileRepository 基于 pgx 连接池的资料表。
type ProfileRepository struct {
	pool *pgxpool.Pool
}

var _ store.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository 创建 ProfileRepository。
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Migrate 创建资料表。
func (r *ProfileRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

// row 对应表中的一行，可空列用指针。
type row struct {
	AccountName    string
	UserID         string
	DisplayName    string
	Email          string
	QuotaAvailable *int64
	QuotaRelative  *float64
	QuotaTotal     *int64
	QuotaUsed      *int64
	AvatarKey      *string
	AvatarMime     *string
	AvatarETag     *string
	SyncedAt       time.Time
}

func (w *row) dest() []any {
	return []any{
		&w.AccountName, &w.UserID, &w.DisplayName, &w.Email,
		&w.QuotaAvailable, &w.QuotaRelative, &w.QuotaTotal, &w.QuotaUsed,
		&w.AvatarKey, &w.AvatarMime, &w.AvatarETag, &w.SyncedAt,
	}
}

func toRow(p *model.UserProfile) row {
	w := row{
		AccountName: p.AccountName,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		SyncedAt:    p.SyncedAt.UTC(),
	}
	if q := p.Quota; q != nil {
		w.QuotaAvailable, w.QuotaRelative, w.QuotaTotal, w.QuotaUsed = &q.Available, &q.Relative, &q.Total, &q.Used
	}
	if a := p.Avatar; a != nil {
		w.AvatarKey, w.AvatarMime, w.AvatarETag = &a.CacheKey, &a.MimeType, &a.ETag
	}
	return w
}

func (w row) toModel() *model.UserProfile {
	p := &model.UserProfile{
		AccountName: w.AccountName,
		UserID:      w.UserID,
		DisplayName: w.DisplayName,
		Email:       w.Email,
		SyncedAt:    w.SyncedAt.UTC(),
	}
	if w.QuotaAvailable != nil && w.QuotaTotal != nil && w.QuotaUsed != nil {
		q := model.UserQuota{Available: *w.QuotaAvailable, Total: *w.QuotaTotal, Used: *w.QuotaUsed}
		if w.QuotaRelative != nil {
			q.Relative = *w.QuotaRelative
		}
		p.Quota = &q
	}
	if w.AvatarKey != nil {
		a := model.UserAvatar{CacheKey: *w.AvatarKey}
		if w.AvatarMime != nil {
			a.MimeType = *w.AvatarMime
		}
		if w.AvatarETag != nil {
			a.ETag = *w.AvatarETag
		}
		p.Avatar = &a
	}
	return p
}

func (r *ProfileRepository) Get(ctx context.Context, account string) (*model.UserProfile, error) {
	query := `SELECT ` + selectColumns + ` FROM user_profiles WHERE account_name = $1`
	var w row
	err := r.pool.QueryRow(ctx, query, account).Scan(w.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrProfileNotFound
	}
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "pgxstore: 读取资料失败", err)
	}
	return w.toModel(), nil
}

func (r *ProfileRepository) List(ctx context.Context) ([]*model.UserProfile, error) {
	query := `SELECT ` + selectColumns + ` FROM user_profiles ORDER BY account_name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "pgxstore: 查询资料失败", err)
	}
	defer rows.Close()

	var out []*model.UserProfile
	for rows.Next() {
		var w row
		if err := rows.Scan(w.dest()...); err != nil {
			return nil, err
		}
		out = append(out, w.toModel())
	}
	return out, rows.Err()
}

// Update 插入或整体覆盖一行。
func (r *ProfileRepository) Update(ctx context.Context, profile *model.UserProfile) error {
	if profile == nil || profile.AccountName == "" {
		return store.ErrInvalidProfile
	}
	w := toRow(profile)
	query := `
		INSERT INTO user_profiles (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_name) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			quota_available = EXCLUDED.quota_available,
			quota_relative = EXCLUDED.quota_relative,
			quota_total = EXCLUDED.quota_total,
			quota_used = EXCLUDED.quota_used,
			avatar_key = EXCLUDED.avatar_key,
			avatar_mime = EXCLUDED.avatar_mime,
			avatar_etag = EXCLUDED.avatar_etag,
			synced_at = EXCLUDED.synced_at`
	_, err := r.pool.Exec(ctx, query,
		w.AccountName, w.UserID, w.DisplayName, w.Email,
		w.QuotaAvailable, w.QuotaRelative, w.QuotaTotal, w.QuotaUsed,
		w.AvatarKey, w.AvatarMime, w.AvatarETag, w.SyncedAt,
	)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "pgxstore: 写入资料失败", err)
	}
	return nil
}

func (r *ProfileRepository) DeleteAvatar(ctx context.Context, account string) error {
	query := `UPDATE user_profiles SET avatar_key = NULL, avatar_mime = NULL, avatar_etag = NULL WHERE account_name = $1`
	if _, err := r.pool.Exec(ctx, query, account); err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "pgxstore: 删除头像失败", err)
	}
	return nil
}

func (r *ProfileRepository) Delete(ctx context.Context, account string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM user_profiles WHERE account_name = $1`, account); err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "pgxstore: 删除资料失败", err)
	}
	return nil
}
