package core

import (
	"crypto/sha1"
	"encoding/hex"

	"dagaudit/pkg/types"
)

// LegacyChangeset 是遗留格式的提交对象
// 它有自己的 manifest 树 (legacy manifest) 和 SHA1 标识空间，
// 与规范 Changeset 的对应关系由 meta 层的 legacy mapping 维护。
type LegacyChangeset struct {
	legacyID types.LegacyID `cbor:"-"`
	rawBytes []byte         `cbor:"-"`

	TypeVal ObjectType `cbor:"t"`

	ManifestRoot Link   `cbor:"mr"`
	Parents      []Link `cbor:"p"` // 指向父提交的 LegacyID

	Author  string `cbor:"a"`
	Message string `cbor:"m"`

	// 时间戳由规范提交决定，保证重新派生是确定性的
	Timestamp int64 `cbor:"ts"`
}

func NewLegacyChangeset(manifestRoot types.Hash, parents []types.LegacyID, author, msg string, timestamp int64) (*LegacyChangeset, error) {
	parentLinks := make([]Link, len(parents))
	for i, p := range parents {
		parentLinks[i] = NewLink(string(p))
	}

	c := &LegacyChangeset{
		TypeVal:      TypeLegacyChangeset,
		ManifestRoot: NewLink(string(manifestRoot)),
		Parents:      parentLinks,
		Author:       author,
		Message:      msg,
		Timestamp:    timestamp,
	}

	// 遗留格式用 SHA1 做标识 (兼容历史系统)
	data, err := em.Marshal(c)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(data)
	c.legacyID = types.LegacyID(hex.EncodeToString(sum[:]))
	c.rawBytes = data
	return c, nil
}

// LegacyID 返回遗留标识 (SHA1 Hex)
func (c *LegacyChangeset) LegacyID() types.LegacyID { return c.legacyID }

// ManifestRootHash 返回 legacy manifest 树根
func (c *LegacyChangeset) ManifestRootHash() types.Hash {
	return types.Hash(c.ManifestRoot.Hash)
}

func (c *LegacyChangeset) Type() ObjectType { return TypeLegacyChangeset }
func (c *LegacyChangeset) ID() types.Hash   { return types.Hash(c.legacyID) }
func (c *LegacyChangeset) Bytes() []byte    { return c.rawBytes }
