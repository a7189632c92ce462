package core

import (
	"fmt"
	"sort"

	"dagaudit/pkg/types"
)

type EntryType string

const (
	EntryTree EntryType = "tree"
	EntryLeaf EntryType = "leaf"
)

// ManifestEntry 是 Manifest 中的一条记录：path segment -> 子节点
// Tree 指向下一层 Manifest，Leaf 指向文件内容级对象
type ManifestEntry struct {
	Name string    `cbor:"n"`
	Type EntryType `cbor:"t"`
	Hash Link      `cbor:"h"`
}

// Manifest 是内容寻址的路径树节点
// 关键不变式：内容相同 => ID 相同。两棵独立派生的树只要任何可达
// 子项不同，根 ID 就不同，所以比较根 ID 等价于比较整棵树。
type Manifest struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType      `cbor:"t"`
	Entries []ManifestEntry `cbor:"e"`
}

// NewManifest 创建一个新的路径树节点
// Entries 会按 Name 排序后再序列化，保证哈希与插入顺序无关
func NewManifest(entries []ManifestEntry) (*Manifest, error) {
	sorted := make([]ManifestEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return nil, fmt.Errorf("duplicate manifest entry: %s", sorted[i].Name)
		}
	}

	m := &Manifest{
		TypeVal: TypeManifest,
		Entries: sorted,
	}
	h, b, err := CalculateHash(m)
	if err != nil {
		return nil, err
	}
	m.hash = h
	m.rawBytes = b
	return m, nil
}

// Lookup 按名字查找条目 (Entries 有序，可二分)
func (m *Manifest) Lookup(name string) (ManifestEntry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Name >= name })
	if i < len(m.Entries) && m.Entries[i].Name == name {
		return m.Entries[i], true
	}
	return ManifestEntry{}, false
}

func (m *Manifest) Type() ObjectType { return TypeManifest }
func (m *Manifest) ID() types.Hash   { return m.hash }
func (m *Manifest) Bytes() []byte    { return m.rawBytes }
