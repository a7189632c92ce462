package core

import (
	"time"

	"dagaudit/pkg/types"
)

// Changeset 是规范提交对象
// 父提交列表是有序的 (Merge Commit 有多个父节点)；
// 提交图的快速查询走 meta 层，这里是内容寻址的事实来源。
type Changeset struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType `cbor:"t"`

	RootManifest Link   `cbor:"rm"`
	Parents      []Link `cbor:"p"`

	Author  string `cbor:"a"`
	Message string `cbor:"m"`

	Timestamp int64 `cbor:"ts"`
}

func NewChangeset(rootManifest types.Hash, parents []types.ChangesetID, author, msg string) (*Changeset, error) {
	parentLinks := make([]Link, len(parents))
	for i, p := range parents {
		parentLinks[i] = NewLink(string(p))
	}

	c := &Changeset{
		TypeVal:      TypeChangeset,
		RootManifest: NewLink(string(rootManifest)),
		Parents:      parentLinks,
		Author:       author,
		Message:      msg,
		Timestamp:    time.Now().Unix(),
	}

	h, b, err := CalculateHash(c)
	if err != nil {
		return nil, err
	}
	c.hash = h
	c.rawBytes = b
	return c, nil
}

// ParentIDs 还原有序的父提交列表
func (c *Changeset) ParentIDs() []types.ChangesetID {
	ids := make([]types.ChangesetID, len(c.Parents))
	for i, p := range c.Parents {
		ids[i] = types.ChangesetID(p.Hash)
	}
	return ids
}

func (c *Changeset) Type() ObjectType { return TypeChangeset }
func (c *Changeset) ID() types.Hash   { return c.hash }
func (c *Changeset) Bytes() []byte    { return c.rawBytes }
