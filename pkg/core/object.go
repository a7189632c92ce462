package core

import "dagaudit/pkg/types"

// ObjectType 定义了 dagaudit 涉及的派生对象类型
type ObjectType string

const (
	TypeManifest        ObjectType = "manifest"  // 路径树节点 (Tree)
	TypeChangeset       ObjectType = "changeset" // 规范提交对象
	TypeLegacyChangeset ObjectType = "legacycs"  // 遗留格式提交对象
)

// Object 是所有 Merkle DAG 节点的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的哈希值
	// 注意：在对象被密封 (Seal/Serialize) 之前，这可能为空
	ID() types.Hash

	// Bytes 返回对象的规范序列化数据 (用于存储)
	Bytes() []byte
}
