package repo

import (
	"context"

	"dagaudit/pkg/meta"
	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"
)

// ChangesetFetcher 提供提交图查询 (父节点是有序的)
type ChangesetFetcher interface {
	GetParents(ctx context.Context, cs types.ChangesetID) ([]types.ChangesetID, error)
}

// View 是仓库的一组具名依赖：blob 存储、legacy mapping、提交图。
// 它是不可变的；要替换其中一个依赖时用 With* 从同一个底座构造出
// 新的 View，而不是在运行中修改现有 View 的内部状态。
// 验证器靠这一点同时持有 real / overlay / locked 三个视图。
type View struct {
	blobstore  storage.Store
	mapping    meta.MappingStore
	changesets ChangesetFetcher
}

func NewView(blobstore storage.Store, mapping meta.MappingStore, changesets ChangesetFetcher) *View {
	return &View{
		blobstore:  blobstore,
		mapping:    mapping,
		changesets: changesets,
	}
}

func (v *View) Blobstore() storage.Store     { return v.blobstore }
func (v *View) Mapping() meta.MappingStore   { return v.mapping }
func (v *View) Changesets() ChangesetFetcher { return v.changesets }

// WithBlobstore 返回替换了 blob 存储的新 View，其余依赖共享
func (v *View) WithBlobstore(s storage.Store) *View {
	nv := *v
	nv.blobstore = s
	return &nv
}

// WithMapping 返回替换了 legacy mapping 的新 View
func (v *View) WithMapping(m meta.MappingStore) *View {
	nv := *v
	nv.mapping = m
	return &nv
}
