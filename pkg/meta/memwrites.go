package meta

import (
	"context"
	"errors"
	"sync"

	"dagaudit/pkg/types"
)

// MemWritesMapping 是 legacy mapping 的 copy-on-write 层，
// 形状和 blob 侧的 memwrites.Store 一致：写只进内存，读可回落。
//
// 额外的开关 saveNoopWrites：底层映射库默认会跳过“后端已有相同值”
// 的写入 (no-op write 优化)。验证器必须强制记录这种写入，否则一次
// 合法的重派生映射写会在 overlay 日志里不可见，产生假阴性。
type MemWritesMapping struct {
	backend MappingStore

	mu             sync.RWMutex
	byLegacy       map[types.LegacyID]MappingEntry
	byChangeset    map[types.ChangesetID]MappingEntry
	saveNoopWrites bool
	readOnly       bool
	noFallback     bool
}

var _ MappingStore = (*MemWritesMapping)(nil)

func NewMemWritesMapping(backend MappingStore) *MemWritesMapping {
	return &MemWritesMapping{
		backend:     backend,
		byLegacy:    make(map[types.LegacyID]MappingEntry),
		byChangeset: make(map[types.ChangesetID]MappingEntry),
	}
}

// SetSaveNoopWrites 控制是否记录与后端重复的写入
// 验证器在 Priming 阶段强制打开
func (m *MemWritesMapping) SetSaveNoopWrites(save bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveNoopWrites = save
}

// SetReadOnly 关闭后续写入 (Verifying 阶段前翻转一次)
func (m *MemWritesMapping) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
}

// SetNoFallback 关闭到后端的回落读 (Verifying 阶段前翻转一次)
func (m *MemWritesMapping) SetNoFallback(noFallback bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noFallback = noFallback
}

func (m *MemWritesMapping) ReadOnly() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readOnly
}

func (m *MemWritesMapping) Insert(ctx context.Context, entry MappingEntry) error {
	m.mu.RLock()
	readOnly, saveNoop := m.readOnly, m.saveNoopWrites
	m.mu.RUnlock()

	if readOnly {
		return ErrMappingReadOnly
	}

	if !saveNoop {
		// no-op write 优化：后端已有完全相同的映射时不记录
		existing, err := m.backend.LookupByLegacy(ctx, entry.Legacy)
		if err != nil && !errors.Is(err, ErrMappingNotFound) {
			return err
		}
		if existing != nil && *existing == entry {
			return nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byLegacy[entry.Legacy] = entry
	m.byChangeset[entry.Changeset] = entry
	return nil
}

func (m *MemWritesMapping) LookupByChangeset(ctx context.Context, cs types.ChangesetID) (*MappingEntry, error) {
	m.mu.RLock()
	entry, hit := m.byChangeset[cs]
	noFallback := m.noFallback
	m.mu.RUnlock()

	if hit {
		e := entry
		return &e, nil
	}
	if noFallback {
		return nil, ErrMappingNotFound
	}
	return m.backend.LookupByChangeset(ctx, cs)
}

func (m *MemWritesMapping) LookupByLegacy(ctx context.Context, legacy types.LegacyID) (*MappingEntry, error) {
	m.mu.RLock()
	entry, hit := m.byLegacy[legacy]
	noFallback := m.noFallback
	m.mu.RUnlock()

	if hit {
		e := entry
		return &e, nil
	}
	if noFallback {
		return nil, ErrMappingNotFound
	}
	return m.backend.LookupByLegacy(ctx, legacy)
}

// Len 返回内存日志中的映射条数 (诊断用)
func (m *MemWritesMapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byLegacy)
}
