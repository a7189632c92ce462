package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"dagaudit/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 定义符合 DAG-CBOR 规范的编码选项
// 验证器的前提是“内容相同 => Hash 相同”，所以编码必须是完全确定性的：
// Map Key 强制排序、时间用 Unix 整数、禁止不定长编码。
var encOptions = cbor.EncOptions{
	// 强制 Map Key 排序 (Canonical)，保证相同对象生成唯一 Hash
	Sort: cbor.SortCanonical,

	ShortestFloat: cbor.ShortestFloatNone,

	// 时间格式化为 Unix 整数，禁止 Tag 0/1 (RFC 3339 字符串)
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 禁止不定长编码，数组和 Map 必须在头部声明长度
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// 解码选项：除了规范性检查，还要防御恶意构造的超深嵌套 (防 DoS)
var decOptions = cbor.DecOptions{
	MaxArrayElements: 100000,
	MaxMapPairs:      100000,
	MaxNestedLevels:  100,

	IndefLength: cbor.IndefLengthForbidden,

	// DAG-CBOR 不允许重复 Key
	DupMapKey: cbor.DupMapKeyEnforcedAPF,

	BignumTag: cbor.BignumTagForbidden,
	TimeTag:   cbor.DecTagIgnored,
}

// dm 供包内部使用 (如 link.go)
var dm, _ = decOptions.DecMode()

// CalculateHash 计算对象的 Hash 和规范序列化数据
func CalculateHash(v any) (types.Hash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}

	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:])), data, nil
}

// CalculateBlobHash 计算原始数据块的 Hash
func CalculateBlobHash(data []byte) types.Hash {
	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// DecodeObject 通用的解码函数 (供外部使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
