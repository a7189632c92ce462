package memwrites

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"
)

// Store 是 copy-on-write 存储层：写入只进内存日志，永远不碰底层后端；
// 读取先查日志，未命中时 (可选地) 回落到后端。
//
// 验证器用它隔离重新派生的全部副作用：派生过程照常读写，
// 但产生的 blob 全部被截留在内存里，验证结束整体丢弃。
// DisableFallback 之后，Get/Has 命中就只可能来自本次运行的写入:
// 这就是“重新派生写全了所有 blob”的证明手段。
type Store struct {
	backend storage.Store

	mu         sync.RWMutex
	log        map[types.BlobKey][]byte
	noFallback bool
	readOnly   bool
}

var _ storage.Store = (*Store)(nil)

func New(backend storage.Store) *Store {
	return &Store{
		backend: backend,
		log:     make(map[types.BlobKey][]byte),
	}
}

// Put 只写内存日志，重复写同一 Key 是幂等的 (内容寻址保证同 Key 同内容)
func (s *Store) Put(ctx context.Context, key types.BlobKey, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readOnly {
		return fmt.Errorf("put %s: %w", key, storage.ErrReadOnly)
	}
	// 复制一份再落日志，调用方之后复用自己的 buffer 不会污染日志内容
	cp := make([]byte, len(data))
	copy(cp, data)
	s.log[key] = cp
	return nil
}

// Get 优先返回日志中的内容；未命中且允许回落时查后端 (不缓存结果)
// 回落被禁用后，即使后端确实有这个 Key 也返回 ErrNotFound
func (s *Store) Get(ctx context.Context, key types.BlobKey) (io.ReadCloser, error) {
	s.mu.RLock()
	data, hit := s.log[key]
	noFallback := s.noFallback
	s.mu.RUnlock()

	if hit {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if noFallback {
		return nil, storage.ErrNotFound
	}
	return s.backend.Get(ctx, key)
}

func (s *Store) Has(ctx context.Context, key types.BlobKey) (bool, error) {
	s.mu.RLock()
	_, hit := s.log[key]
	noFallback := s.noFallback
	s.mu.RUnlock()

	if hit {
		return true, nil
	}
	if noFallback {
		return false, nil
	}
	return s.backend.Has(ctx, key)
}

// DisableFallback 永久 (对本实例) 关闭到后端的回落读
// 每个验证周期只翻转一次，翻转后命中只能来自本次运行的写入
func (s *Store) DisableFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noFallback = true
}

// SetReadOnly 关闭后续写入
func (s *Store) SetReadOnly(readOnly bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = readOnly
}

// Len 返回写日志中的 Key 数量 (诊断用)
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// Keys 返回写日志的 Key 快照 (诊断用，无序)
func (s *Store) Keys() []types.BlobKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]types.BlobKey, 0, len(s.log))
	for k := range s.log {
		keys = append(keys, k)
	}
	return keys
}
