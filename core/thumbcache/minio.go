package thumbcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig 描述 S3 兼容存储。
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioBackend 把头像存放在 S3 兼容的对象存储中。
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend 连接对象存储，bucket 不存在时创建。
func NewMinioBackend(ctx context.Context, cfg MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 minio 客户端失败: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("检查 bucket %s 失败: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 bucket %s 失败: %w", cfg.Bucket, err)
		}
	}
	return &MinioBackend{client: client, bucket: cfg.Bucket}, nil
}

// Put 上传对象。
func (m *MinioBackend) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Get 下载对象。
func (m *MinioBackend) Get(ctx context.Context, key string) ([]byte, string, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", translateMinioError(err)
	}
	defer func() {
		_ = obj.Close()
	}()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", translateMinioError(err)
	}
	stat, err := obj.Stat()
	if err != nil {
		return nil, "", translateMinioError(err)
	}
	return data, stat.ContentType, nil
}

// DeletePrefix 列出前缀下的对象并逐个删除。
func (m *MinioBackend) DeletePrefix(ctx context.Context, prefix string) error {
	for info := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return translateMinioError(info.Err)
		}
		if err := m.client.RemoveObject(ctx, m.bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return translateMinioError(err)
		}
	}
	return nil
}

func translateMinioError(err error) error {
	rsp := minio.ToErrorResponse(err)
	if rsp.StatusCode == http.StatusNotFound || rsp.Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}
