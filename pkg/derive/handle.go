package derive

import (
	"fmt"

	"dagaudit/pkg/types"
)

// Handle 是一次派生的结果
// 每个变体携带自己的根标识；值相等 (Equal) 是验证器的核心判据：
// 内容寻址保证根 ID 相等 <=> 整棵派生结构逐字节相等。
type Handle interface {
	Kind() Kind
	Equal(other Handle) bool
	String() string
}

// ContentManifestHandle: 扁平化内容 manifest 的根
type ContentManifestHandle struct {
	Root types.Hash
}

func (h ContentManifestHandle) Kind() Kind { return KindContentManifest }
func (h ContentManifestHandle) Equal(other Handle) bool {
	o, ok := other.(ContentManifestHandle)
	return ok && o.Root == h.Root
}
func (h ContentManifestHandle) String() string {
	return fmt.Sprintf("%s(%s)", h.Kind(), h.Root)
}

// PathManifestHandle: 路径存在性 manifest 的根
type PathManifestHandle struct {
	Root types.Hash
}

func (h PathManifestHandle) Kind() Kind { return KindPathManifest }
func (h PathManifestHandle) Equal(other Handle) bool {
	o, ok := other.(PathManifestHandle)
	return ok && o.Root == h.Root
}
func (h PathManifestHandle) String() string {
	return fmt.Sprintf("%s(%s)", h.Kind(), h.Root)
}

// ContentHashManifestHandle: 内容哈希 manifest 的根
type ContentHashManifestHandle struct {
	Root types.Hash
}

func (h ContentHashManifestHandle) Kind() Kind { return KindContentHashManifest }
func (h ContentHashManifestHandle) Equal(other Handle) bool {
	o, ok := other.(ContentHashManifestHandle)
	return ok && o.Root == h.Root
}
func (h ContentHashManifestHandle) String() string {
	return fmt.Sprintf("%s(%s)", h.Kind(), h.Root)
}

// LegacyChangesetHandle: 映射出的遗留提交 ID
// manifest 根不在 Handle 里，要从遗留提交对象本身加载
type LegacyChangesetHandle struct {
	ID types.LegacyID
}

func (h LegacyChangesetHandle) Kind() Kind { return KindLegacyChangeset }
func (h LegacyChangesetHandle) Equal(other Handle) bool {
	o, ok := other.(LegacyChangesetHandle)
	return ok && o.ID == h.ID
}
func (h LegacyChangesetHandle) String() string {
	return fmt.Sprintf("%s(%s)", h.Kind(), h.ID)
}
