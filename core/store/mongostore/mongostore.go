// Package mongostore 在 MongoDB 中保存用户资料。
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	coreerrors "github.com/dnslin/owncloud-desktop/core/errors"
	"github.com/dnslin/owncloud-desktop/core/model"
	"github.com/dnslin/owncloud-desktop/core/store"
)

// CollectionName 是资料集合名。
const CollectionName = "user_profiles"

type quotaDoc struct {
	Available int64   `bson:"available"`
	Relative  float64 `bson:"relative"`
	Total     int64   `bson:"total"`
	Used      int64   `bson:"used"`
}

type avatarDoc struct {
	CacheKey string `bson:"cache_key"`
	MimeType string `bson:"mime_type"`
	ETag     string `bson:"etag"`
}

type profileDoc struct {
	AccountName string     `bson:"_id"`
	UserID      string     `bson:"user_id"`
	DisplayName string     `bson:"display_name"`
	Email       string     `bson:"email,omitempty"`
	Quota       *quotaDoc  `bson:"quota,omitempty"`
	Avatar      *avatarDoc `bson:"avatar,omitempty"`
	SyncedAt    time.Time  `bson:"synced_at"`
}

func toDoc(p *model.UserProfile) profileDoc {
	doc := profileDoc{
		AccountName: p.AccountName,
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		SyncedAt:    p.SyncedAt.UTC(),
	}
	if q := p.Quota; q != nil {
		doc.Quota = &quotaDoc{Available: q.Available, Relative: q.Relative, Total: q.Total, Used: q.Used}
	}
	if a := p.Avatar; a != nil {
		doc.Avatar = &avatarDoc{CacheKey: a.CacheKey, MimeType: a.MimeType, ETag: a.ETag}
	}
	return doc
}

func (d profileDoc) toModel() *model.UserProfile {
	p := &model.UserProfile{
		AccountName: d.AccountName,
		UserID:      d.UserID,
		DisplayName: d.DisplayName,
		Email:       d.Email,
		SyncedAt:    d.SyncedAt,
	}
	if q := d.Quota; q != nil {
		p.Quota = &model.UserQuota{Available: q.Available, Relative: q.Relative, Total: q.Total, Used: q.Used}
	}
	if a := d.Avatar; a != nil {
		p.Avatar = &model.UserAvatar{CacheKey: a.CacheKey, MimeType: a.MimeType, ETag: a.ETag}
	}
	return p
}

// ProfileRepository 以账号名作为 _id 的资料集合。
type ProfileRepository struct {
	coll *mongo.Collection
}

var _ store.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository 绑定数据库中的资料集合。
func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{coll: db.Collection(CollectionName)}
}

// Connect 连接 MongoDB 并校验连通性。
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("连接 MongoDB 失败: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("MongoDB ping 失败: %w", err)
	}
	return client, nil
}

// EnsureIndexes 创建按用户 ID 查询的索引。
func (r *ProfileRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	return err
}

func (r *ProfileRepository) Get(ctx context.Context, account string) (*model.UserProfile, error) {
	var doc profileDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": account}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrProfileNotFound
	}
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "mongostore: 读取资料失败", err)
	}
	return doc.toModel(), nil
}

func (r *ProfileRepository) List(ctx context.Context) ([]*model.UserProfile, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "mongostore: 查询资料失败", err)
	}
	defer cur.Close(ctx)

	var docs []profileDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "mongostore: 读取资料失败", err)
	}
	out := make([]*model.UserProfile, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// Update 整体替换文档，不存在时插入。
func (r *ProfileRepository) Update(ctx context.Context, profile *model.UserProfile) error {
	if profile == nil || profile.AccountName == "" {
		return store.ErrInvalidProfile
	}
	doc := toDoc(profile)
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": doc.AccountName}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "mongostore: 写入资料失败", err)
	}
	return nil
}

func (r *ProfileRepository) DeleteAvatar(ctx context.Context, account string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": account}, bson.M{"$unset": bson.M{"avatar": ""}})
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "mongostore: 删除头像失败", err)
	}
	return nil
}

func (r *ProfileRepository) Delete(ctx context.Context, account string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": account}); err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeUnavailable, "mongostore: 删除资料失败", err)
	}
	return nil
}
