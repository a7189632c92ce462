package derive

import (
	"context"
	"fmt"
	"sync"

	"dagaudit/pkg/repo"
	"dagaudit/pkg/types"
)

// Options 控制一次派生调用
type Options struct {
	// Force: 即使框架记录该提交已派生，也重新计算并重新写入全部 blob。
	// 验证器对 overlay 视图的派生必须带 Force，否则 overlay 的回落读
	// 会看到后端已有的“已派生”标记，直接短路，什么都不会写进日志。
	Force bool
}

// Deriver 是派生框架的接口，具体派生算法由外部实现注册进来。
//
// 契约：
//   - Derive 对 (view, cs) 幂等；非 Force 调用可以直接返回已持久化的结果
//   - 派生一个提交前要保证其父提交已派生 (框架内部递归处理)，
//     递归产生的写入同样走 view 的存储
//   - IsDerived 通过 view 的存储判断“已派生”状态：对锁定后的 overlay
//     视图调用时，只有本次运行写入的状态才可见
type Deriver interface {
	Kind() Kind
	Derive(ctx context.Context, view *repo.View, cs types.ChangesetID, opts Options) (Handle, error)
	IsDerived(ctx context.Context, view *repo.View, cs types.ChangesetID) (bool, error)
}

// -----------------------------------------------------------------------------
// 注册表
// -----------------------------------------------------------------------------

var (
	registryMu sync.RWMutex
	registry   = make(map[Kind]Deriver)
)

// Register 注册某个种类的派生实现，重复注册后者覆盖前者
func Register(d Deriver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Kind()] = d
}

// Lookup 按种类取派生实现
func Lookup(k Kind) (Deriver, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := registry[k]
	if !ok {
		return nil, fmt.Errorf("no deriver registered for kind %s", k)
	}
	return d, nil
}
