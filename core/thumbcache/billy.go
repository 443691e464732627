package thumbcache

import (
	"context"
	"errors"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/dnslin/owncloud-desktop/core/crypto"
)

const mimeSuffix = ".mime"

// BillyBackend 把头像存放在 billy 文件系统中。
// 键的目录部分取 MD5 作为目录名，最后一段（尺寸）作为文件名。
type BillyBackend struct {
	fs billy.Filesystem
}

// NewBillyBackend 基于任意 billy 文件系统创建后端。
func NewBillyBackend(fs billy.Filesystem) *BillyBackend {
	return &BillyBackend{fs: fs}
}

// NewDiskBackend 在本地目录下创建后端。
func NewDiskBackend(dir string) *BillyBackend {
	return NewBillyBackend(osfs.New(dir))
}

// NewMemoryBackend 创建纯内存后端。
func NewMemoryBackend() *BillyBackend {
	return NewBillyBackend(memfs.New())
}

func (b *BillyBackend) filePath(key string) string {
	dir, name := path.Split(key)
	return path.Join(crypto.DigestString(path.Clean(dir)), name)
}

// Put 写入数据与 MIME 类型，内容未变化时不重写数据文件。
func (b *BillyBackend) Put(_ context.Context, key string, data []byte, contentType string) error {
	p := b.filePath(key)
	if err := b.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return err
	}
	if old, err := b.readFile(p); err != nil || !crypto.SameContent(old, data) {
		if err := util.WriteFile(b.fs, p, data, 0o644); err != nil {
			return err
		}
	}
	return util.WriteFile(b.fs, p+mimeSuffix, []byte(contentType), 0o644)
}

// Get 读取数据，MIME 文件缺失时返回空类型。
func (b *BillyBackend) Get(_ context.Context, key string) ([]byte, string, error) {
	p := b.filePath(key)
	data, err := b.readFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	ct, err := b.readFile(p + mimeSuffix)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", err
	}
	return data, string(ct), nil
}

// DeletePrefix 删除前缀对应的目录。
func (b *BillyBackend) DeletePrefix(_ context.Context, prefix string) error {
	dir := crypto.DigestString(path.Clean(prefix))
	if err := util.RemoveAll(b.fs, dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *BillyBackend) readFile(p string) ([]byte, error) {
	f, err := b.fs.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
