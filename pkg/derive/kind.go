package derive

import (
	"fmt"

	"dagaudit/pkg/types"
)

// Kind 是封闭的派生数据种类集合
// 用枚举而不是运行时字符串比较：种类集合在编译期可穷举检查
type Kind uint8

const (
	KindUnknown Kind = iota

	// KindContentManifest: 扁平化内容 manifest (每个 Tree 节点一个 blob)
	KindContentManifest

	// KindPathManifest: 只记录路径存在性的 manifest
	KindPathManifest

	// KindContentHashManifest: 内容哈希 manifest，Leaf 也各自占一个 blob
	KindContentHashManifest

	// KindLegacyChangeset: 遗留格式提交 + manifest + 文件节点，外加 legacy mapping
	KindLegacyChangeset
)

// blob key 前缀，per kind
const (
	prefixContentManifest  = "contentmf"
	prefixPathManifest     = "pathmf"
	prefixHashManifest     = "hashmf"
	prefixHashManifestLeaf = "hashfile"
	prefixLegacyManifest   = "legacymf"
	prefixLegacyFile       = "legacyfile"
	prefixLegacyChangeset  = "legacycs"
)

func (k Kind) String() string {
	switch k {
	case KindContentManifest:
		return "content_manifest"
	case KindPathManifest:
		return "path_manifest"
	case KindContentHashManifest:
		return "content_hash_manifest"
	case KindLegacyChangeset:
		return "legacy_changeset"
	default:
		return "unknown"
	}
}

// ParseKind 解析 CLI/配置里的种类名
func ParseKind(name string) (Kind, error) {
	switch name {
	case "content_manifest":
		return KindContentManifest, nil
	case "path_manifest":
		return KindPathManifest, nil
	case "content_hash_manifest":
		return KindContentHashManifest, nil
	case "legacy_changeset":
		return KindLegacyChangeset, nil
	default:
		return KindUnknown, fmt.Errorf("unknown derived data kind: %q", name)
	}
}

// TreePrefix 返回该种类 manifest 树节点的 blob key 前缀
// 四个已知种类的 Tree 节点都各自占一个 blob
func (k Kind) TreePrefix() string {
	switch k {
	case KindContentManifest:
		return prefixContentManifest
	case KindPathManifest:
		return prefixPathManifest
	case KindContentHashManifest:
		return prefixHashManifest
	case KindLegacyChangeset:
		return prefixLegacyManifest
	default:
		return ""
	}
}

// TreeBlobKey 把 Tree 节点投影为 blob key
func (k Kind) TreeBlobKey(id types.Hash) (types.BlobKey, bool) {
	prefix := k.TreePrefix()
	if prefix == "" {
		return "", false
	}
	return id.BlobKey(prefix), true
}

// LeafBlobKey 把 Leaf 节点投影为 blob key
// 投影策略 per kind：content/path manifest 的 Leaf 指向共享的文件内容，
// 不单独占 blob；content-hash manifest 和 legacy 种类的 Leaf 各自是 blob。
func (k Kind) LeafBlobKey(id types.Hash) (types.BlobKey, bool) {
	switch k {
	case KindContentHashManifest:
		return id.BlobKey(prefixHashManifestLeaf), true
	case KindLegacyChangeset:
		return id.BlobKey(prefixLegacyFile), true
	default:
		return "", false
	}
}

// LegacyChangesetBlobKey 是遗留提交对象本身的 key
func LegacyChangesetBlobKey(id types.LegacyID) types.BlobKey {
	return id.BlobKey(prefixLegacyChangeset)
}
