package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"
)

// Store 是最简单的内存实现，主要服务测试和本地实验
// 支持 SetReadOnly，用来模拟“存储引擎级只读打开”的生产前置条件
type Store struct {
	mu       sync.RWMutex
	objects  map[types.BlobKey][]byte
	readOnly bool
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{objects: make(map[types.BlobKey][]byte)}
}

func (s *Store) ReadOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readOnly
}

// SetReadOnly 切换只读模式 (测试 fixture: 先灌数据，再锁定)
func (s *Store) SetReadOnly(readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = readOnly
}

func (s *Store) Put(ctx context.Context, key types.BlobKey, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 幂等性：已存在的 Key 跳过，和磁盘/S3 适配器保持同一语义
	if _, ok := s.objects[key]; ok {
		return nil
	}
	if s.readOnly {
		return fmt.Errorf("put %s: %w", key, storage.ErrReadOnly)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return nil
}

// Overwrite 无视只读和幂等检查，直接覆盖内容
// 只给测试用：构造“存储里的数据被改错了”的场景
func (s *Store) Overwrite(key types.BlobKey, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
}

func (s *Store) Get(ctx context.Context, key types.BlobKey) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Store) Has(ctx context.Context, key types.BlobKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
