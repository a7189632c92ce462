package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	rootPath string // 比如: /srv/dagaudit/objects
	readOnly bool
}

// NewAdapter 创建一个读写模式的磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	// 确保根目录存在
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{rootPath: root}, nil
}

// NewReadOnly 以只读模式打开已有的对象目录
// 验证器要求存储引擎级别只读，所以这里连 MkdirAll 都不做：目录必须已存在
func NewReadOnly(root string) (*Adapter, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage dir read-only: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage path is not a directory: %s", root)
	}
	return &Adapter{rootPath: root, readOnly: true}, nil
}

func (s *Adapter) ReadOnly() bool { return s.readOnly }

// layout 返回 Key 对应的物理路径
// Key 形如 "<prefix>.<hash>"：prefix 做一级目录，哈希前 2 个字符做二级分片
// Example: "contentmf.aabbcc..." -> root/contentmf/aa/bbcc...
func (s *Adapter) layout(key types.BlobKey) string {
	k := string(key)
	if i := strings.IndexByte(k, '.'); i > 0 && len(k) > i+3 {
		prefix, hash := k[:i], k[i+1:]
		return filepath.Join(s.rootPath, prefix, hash[:2], hash[2:])
	}
	if len(k) < 3 {
		return filepath.Join(s.rootPath, k)
	}
	return filepath.Join(s.rootPath, k[:2], k[2:])
}

func (s *Adapter) Put(ctx context.Context, key types.BlobKey, data []byte) error {
	targetPath := s.layout(key)

	// 1. 检查是否存在 (幂等性)
	// 内容寻址保证同 Key 同内容，已存在就直接跳过
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	// 只读模式下，写入新内容是协议违规
	if s.readOnly {
		return fmt.Errorf("put %s: %w", key, storage.ErrReadOnly)
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 3. 原子写入 (Atomic Write)
	// 先写临时文件再 Rename，保证文件要么不存在，要么是完整的
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	tempFile.Close() // 必须先关闭才能 Rename

	// 4. 移动到最终位置
	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return err
	}

	return nil
}

func (s *Adapter) Get(ctx context.Context, key types.BlobKey) (io.ReadCloser, error) {
	targetPath := s.layout(key)

	f, err := os.Open(targetPath)
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, key types.BlobKey) (bool, error) {
	targetPath := s.layout(key)
	_, err := os.Stat(targetPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
