package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dagaudit/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrChangesetNotFound = errors.New("changeset not found in metadata")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db       *DB
	readOnly bool
}

var _ MappingStore = (*Repository)(nil)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// NewReadOnlyRepository 以只读模式打开元数据层
// 验证场景的标准打开方式：任何对提交图或 mapping 的新写入都被拒绝
func NewReadOnlyRepository(db *DB) *Repository {
	return &Repository{db: db, readOnly: true}
}

func (r *Repository) ReadOnly() bool { return r.readOnly }

// -----------------------------------------------------------------------------
// 1. 提交图 (Changeset Graph)
// -----------------------------------------------------------------------------

// GetParents 返回一个提交的有序父节点列表
// Root Commit 没有父节点，返回空切片 (不是错误)
func (r *Repository) GetParents(ctx context.Context, cs types.ChangesetID) ([]types.ChangesetID, error) {
	var model ChangesetModel
	err := r.db.GetConn().WithContext(ctx).
		Where("hash = ?", string(cs)).
		First(&model).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", cs, ErrChangesetNotFound)
	}
	if err != nil {
		return nil, err
	}

	if len(model.Parents) == 0 {
		return nil, nil
	}

	var raw []string
	if err := json.Unmarshal(model.Parents, &raw); err != nil {
		return nil, fmt.Errorf("corrupted parents column for %s: %w", cs, err)
	}

	parents := make([]types.ChangesetID, len(raw))
	for i, p := range raw {
		parents[i] = types.ChangesetID(p)
	}
	return parents, nil
}

// PutChangeset 记录一个提交及其父节点 (幂等)
func (r *Repository) PutChangeset(ctx context.Context, cs types.ChangesetID, parents []types.ChangesetID, generation int64) error {
	if r.readOnly {
		return fmt.Errorf("put changeset %s: %w", cs, ErrMappingReadOnly)
	}

	raw := make([]string, len(parents))
	for i, p := range parents {
		raw[i] = string(p)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	model := ChangesetModel{
		Hash:       string(cs),
		Parents:    datatypes.JSON(data),
		Generation: generation,
	}
	err = r.db.GetConn().WithContext(ctx).Create(&model).Error
	if err != nil && isDuplicateKey(err) {
		// 内容寻址：同一 Hash 必然是同一提交，重复写入直接忽略
		return nil
	}
	return err
}

// ListChangesetIDs 按拓扑序 (generation 升序) 返回一段提交
// 验证 CLI 用它做简单的范围选取；真正的 commit discovery 是外部职责
func (r *Repository) ListChangesetIDs(ctx context.Context, offset, limit int) ([]types.ChangesetID, error) {
	var models []ChangesetModel
	q := r.db.GetConn().WithContext(ctx).
		Order("generation asc, hash asc")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}

	ids := make([]types.ChangesetID, len(models))
	for i, m := range models {
		ids[i] = types.ChangesetID(m.Hash)
	}
	return ids, nil
}

// -----------------------------------------------------------------------------
// 2. Legacy Mapping
// -----------------------------------------------------------------------------

func (r *Repository) LookupByChangeset(ctx context.Context, cs types.ChangesetID) (*MappingEntry, error) {
	var model LegacyMappingModel
	err := r.db.GetConn().WithContext(ctx).
		Where("changeset_hash = ?", string(cs)).
		First(&model).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", cs, ErrMappingNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &MappingEntry{
		Legacy:    types.LegacyID(model.LegacyHash),
		Changeset: types.ChangesetID(model.ChangesetHash),
	}, nil
}

func (r *Repository) LookupByLegacy(ctx context.Context, legacy types.LegacyID) (*MappingEntry, error) {
	var model LegacyMappingModel
	err := r.db.GetConn().WithContext(ctx).
		Where("legacy_hash = ?", string(legacy)).
		First(&model).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", legacy, ErrMappingNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &MappingEntry{
		Legacy:    types.LegacyID(model.LegacyHash),
		Changeset: types.ChangesetID(model.ChangesetHash),
	}, nil
}

func (r *Repository) Insert(ctx context.Context, entry MappingEntry) error {
	if r.readOnly {
		// 重复写入相同的映射依然是幂等 no-op；只有新写入被拒绝
		existing, err := r.LookupByLegacy(ctx, entry.Legacy)
		if err != nil && !errors.Is(err, ErrMappingNotFound) {
			return err
		}
		if existing != nil && *existing == entry {
			return nil
		}
		return fmt.Errorf("insert mapping %s: %w", entry.Legacy, ErrMappingReadOnly)
	}

	model := LegacyMappingModel{
		LegacyHash:    string(entry.Legacy),
		ChangesetHash: string(entry.Changeset),
	}
	err := r.db.GetConn().WithContext(ctx).Create(&model).Error
	if err != nil && isDuplicateKey(err) {
		// 同一 LegacyID 重复插入：映射是内容派生的，视为幂等写
		return nil
	}
	return err
}

// isDuplicateKey 兼容不同数据库 (PG 与 SQLite) 的唯一约束错误
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key")
}
