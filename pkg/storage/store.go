package storage

import (
	"context"
	"errors"
	"io"

	"dagaudit/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")

	// ErrReadOnly: 在只读模式下尝试写入“新”内容时返回。
	// 注意：内容寻址存储里，重复写入已存在的 Key 是无害的 no-op，
	// 不算违反只读约定 (派生框架的幂等写路径依赖这一点)。
	ErrReadOnly = errors.New("store is read-only")
)

// Store defines the interface for a storage backend.
// Implementations can be local disk, cloud storage, or in-memory storage.
type Store interface {
	// Put 按 Key 持久化一段内容
	// Key 已经包含派生数据种类前缀 (见 types.BlobKey)，同一 Key 永远对应同一内容
	Put(ctx context.Context, key types.BlobKey, data []byte) error

	// Get 根据 Key 读取原始数据
	// 注意：这里返回的是 io.ReadCloser 而不是 []byte
	// 原因：为了支持大对象的流式读取，避免一次性全部读进内存
	Get(ctx context.Context, key types.BlobKey) (io.ReadCloser, error)

	// Has 检查对象是否存在 (验证器的 blob 存在性断言走这里)
	Has(ctx context.Context, key types.BlobKey) (bool, error)
}

// ReadOnlyReporter 由支持只读打开模式的后端实现
// 验证器的边界前置条件要求底层存储必须以只读模式打开
type ReadOnlyReporter interface {
	ReadOnly() bool
}

// IsReadOnly 判断一个 Store (或其装饰器链) 是否处于只读模式
func IsReadOnly(s Store) bool {
	r, ok := s.(ReadOnlyReporter)
	return ok && r.ReadOnly()
}

// ReadAll 读取并关闭一个 Get 返回的流 (小对象的便捷入口)
func ReadAll(ctx context.Context, s Store, key types.BlobKey) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
