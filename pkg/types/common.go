// pkg/types/common.go
package types

// Hash 代表内容寻址对象的唯一标识符 (SHA256 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == 64 } // 简单的长度检查

// BlobKey 将 Hash 转换为存储层使用的 Key
// 规则: "<prefix>.<hash>"，例如 "contentmf.aabb..."
// prefix 区分不同派生数据种类的对象，防止 Key 空间冲突
func (h Hash) BlobKey(prefix string) BlobKey {
	return BlobKey(prefix + "." + string(h))
}

// ChangesetID 是 Commit 的全局唯一标识 (内容派生，不可变)
// 底层同样是 SHA256 Hex，但与普通对象 Hash 是不同的语义空间
type ChangesetID string

func (id ChangesetID) String() string { return string(id) }
func (id ChangesetID) IsValid() bool  { return len(id) == 64 }

// 辅助转换 (显式转换，提醒开发者注意)
func (id ChangesetID) ToHash() Hash { return Hash(id) }

// LegacyID 是历史遗留格式的 Changeset 标识 (SHA1 Hex, 40 字符)
// legacy mapping 维护 LegacyID <-> ChangesetID 的双向映射
type LegacyID string

func (id LegacyID) String() string { return string(id) }
func (id LegacyID) IsValid() bool  { return len(id) == 40 }

func (id LegacyID) BlobKey(prefix string) BlobKey {
	return BlobKey(prefix + "." + string(id))
}

// BlobKey 是存储层的最终 Key (已包含类型前缀)
type BlobKey string

func (k BlobKey) String() string { return string(k) }

type RepoPath string
