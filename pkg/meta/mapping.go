package meta

import (
	"context"
	"errors"

	"dagaudit/pkg/types"
)

var (
	ErrMappingNotFound = errors.New("legacy mapping not found")

	// ErrMappingReadOnly: overlay mapping 被锁定后仍有写入时返回
	ErrMappingReadOnly = errors.New("mapping is read-only")
)

// MappingEntry 是一条 LegacyID <-> ChangesetID 映射
type MappingEntry struct {
	Legacy    types.LegacyID
	Changeset types.ChangesetID
}

// ReadOnlyReporter 由支持只读打开模式的 mapping 后端实现
// 验证器的边界前置条件对 blob 存储和 mapping 后端一视同仁：
// 两者都必须以只读模式打开，否则 overlay 不是唯一写路径
type ReadOnlyReporter interface {
	ReadOnly() bool
}

// IsReadOnly 判断一个 MappingStore 是否处于只读模式
func IsReadOnly(m MappingStore) bool {
	r, ok := m.(ReadOnlyReporter)
	return ok && r.ReadOnly()
}

// MappingStore 抽象 legacy mapping 的读写
// 生产实现是 Repository (PostgreSQL)，验证时会被 MemWritesMapping 包裹
type MappingStore interface {
	// LookupByChangeset 按规范 ID 查映射，未找到返回 ErrMappingNotFound
	LookupByChangeset(ctx context.Context, cs types.ChangesetID) (*MappingEntry, error)

	// LookupByLegacy 按遗留 ID 查映射
	LookupByLegacy(ctx context.Context, legacy types.LegacyID) (*MappingEntry, error)

	// Insert 写入一条映射，重复写入相同内容是幂等的
	Insert(ctx context.Context, entry MappingEntry) error
}
