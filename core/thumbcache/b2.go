package thumbcache

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/kurin/blazer/b2"
)

// B2Backend 把头像存放在 Backblaze B2。
type B2Backend struct {
	bucket *b2.Bucket
}

// NewB2Backend 使用应用密钥连接指定 bucket。
func NewB2Backend(ctx context.Context, keyID, applicationKey, bucketName string) (*B2Backend, error) {
	client, err := b2.NewClient(ctx, keyID, applicationKey)
	if err != nil {
		return nil, fmt.Errorf("创建 B2 客户端失败: %w", err)
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("获取 bucket %s 失败: %w", bucketName, err)
	}
	return &B2Backend{bucket: bucket}, nil
}

// Put 上传对象，Content-Type 写入对象属性。
func (b *B2Backend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := b.bucket.Object(key).NewWriter(ctx, b2.WithAttrsOption(&b2.Attrs{ContentType: contentType}))
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return fmt.Errorf("上传到 B2 失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("关闭 B2 写入失败: %w", err)
	}
	return nil
}

// Get 下载对象。
func (b *B2Backend) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj := b.bucket.Object(key)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if b2.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	r := obj.NewReader(ctx)
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		if b2.IsNotExist(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return data, attrs.ContentType, nil
}

// DeletePrefix 删除前缀下的所有对象。
func (b *B2Backend) DeletePrefix(ctx context.Context, prefix string) error {
	iter := b.bucket.List(ctx, b2.ListPrefix(prefix))
	for iter.Next() {
		if err := iter.Object().Delete(ctx); err != nil && !b2.IsNotExist(err) {
			return fmt.Errorf("从 B2 删除失败: %w", err)
		}
	}
	return iter.Err()
}
