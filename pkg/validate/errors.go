package validate

import (
	"errors"
	"fmt"

	"dagaudit/pkg/derive"
	"dagaudit/pkg/types"
)

var (
	// ErrWritableStorage: 边界前置条件不满足: blob 后端和 mapping
	// 后端都必须以存储引擎级别的只读模式打开，否则 overlay 不是
	// 唯一写路径，整个证明不成立。任何 chunk 开始前直接拒绝。
	ErrWritableStorage = errors.New("validation requires storage opened in read-only mode")
)

// MismatchError: 同一提交的 real / overlay 两次派生结果不相等
type MismatchError struct {
	Changeset types.ChangesetID
	Real      derive.Handle
	Rederived derive.Handle
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("mismatch in %s: %s vs %s", e.Changeset, e.Real, e.Rederived)
}

// NotDerivedError: overlay 锁定后，派生框架不认为该提交已派生
// 说明框架自身的完成状态和刚刚发生的重派生对不上
type NotDerivedError struct {
	Changeset types.ChangesetID
}

func (e *NotDerivedError) Error() string {
	return fmt.Sprintf("%s unexpectedly not derived", e.Changeset)
}

// MissingBlobError: manifest diff 要求的 blob 不在 overlay 写日志里
// 即重派生过程漏写了本提交应当引入的内容
type MissingBlobError struct {
	Changeset types.ChangesetID
	Key       types.BlobKey
}

func (e *MissingBlobError) Error() string {
	return fmt.Sprintf("%s not found (validating %s)", e.Key, e.Changeset)
}
