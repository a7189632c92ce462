package meta

import (
	"time"

	"gorm.io/datatypes"
)

// ChangesetModel 是提交图在关系型数据库中的投影 (索引)
// 验证器只关心两件事：某个范围内有哪些提交，以及每个提交的父节点。
type ChangesetModel struct {
	// Hash 是主键 (规范 ChangesetID)
	Hash string `gorm:"primaryKey;type:char(64)"`

	// Parents: 使用 JSON 存储有序父节点列表 (支持 Merge Commit 多父节点)
	// 形如 ["hash1", "hash2"]
	//为了跨数据库测试(PG与SQLite)，这里不用 jsonb
	Parents datatypes.JSON

	// Generation: 距离根提交的最长路径，按拓扑序选取提交范围时用
	Generation int64 `gorm:"index"`

	CreatedAt time.Time
}

// TableName 强制指定表名
func (ChangesetModel) TableName() string {
	return "changesets"
}

// LegacyMappingModel 维护 LegacyID <-> ChangesetID 的双向映射
// 对应验证器的 Overlay Mapping 所包装的底层存储
type LegacyMappingModel struct {
	// LegacyHash 是主键 (SHA1 Hex)
	LegacyHash string `gorm:"primaryKey;type:char(40)"`

	// ChangesetHash 反向查询也要快，加唯一索引
	ChangesetHash string `gorm:"uniqueIndex;type:char(64);not null"`

	CreatedAt time.Time
}

func (LegacyMappingModel) TableName() string {
	return "legacy_mapping"
}
