package readonly

import (
	"context"
	"fmt"
	"io"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"
)

// Store 是拒绝一切写入的装饰器
// 验证周期进入 Verifying 阶段前，overlay 会被包进这一层：
// 之后的任何 Put 都说明有组件在比较阶段之外还想产生副作用，直接报错。
type Store struct {
	backend storage.Store
}

var _ storage.Store = (*Store)(nil)

func New(backend storage.Store) *Store {
	return &Store{backend: backend}
}

func (s *Store) ReadOnly() bool { return true }

func (s *Store) Put(ctx context.Context, key types.BlobKey, data []byte) error {
	return fmt.Errorf("put %s: %w", key, storage.ErrReadOnly)
}

func (s *Store) Get(ctx context.Context, key types.BlobKey) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

func (s *Store) Has(ctx context.Context, key types.BlobKey) (bool, error) {
	return s.backend.Has(ctx, key)
}
