// Package manifest 实现内容寻址路径树的多父 diff 算法。
//
// 算法对树/叶标识的具体类型不做任何假设，只要求可比较、可从存储
// 按需加载；派生数据种类通过 LoadFunc 决定一个节点如何展开成子项。
package manifest

import (
	"context"
	"iter"
	"sort"
)

// Entry 是树节点展开出的一个子项：要么指向下一层 Tree，要么指向 Leaf
type Entry[T, L comparable] struct {
	isTree bool
	tree   T
	leaf   L
}

func TreeEntry[T, L comparable](id T) Entry[T, L] {
	return Entry[T, L]{isTree: true, tree: id}
}

func LeafEntry[T, L comparable](id L) Entry[T, L] {
	return Entry[T, L]{leaf: id}
}

func (e Entry[T, L]) IsTree() bool { return e.isTree }
func (e Entry[T, L]) Tree() T      { return e.tree }
func (e Entry[T, L]) Leaf() L      { return e.leaf }

// PathEntry 给 Entry 附上它在树中的路径 (根节点路径为 "")
type PathEntry[T, L comparable] struct {
	Path  string
	Entry Entry[T, L]
}

// LoadFunc 从存储加载一个 Tree 节点，返回 name -> 子项 的映射
type LoadFunc[T, L comparable] func(ctx context.Context, id T) (map[string]Entry[T, L], error)

// FindIntersectionOfDiffs 返回“相对每一个父节点都是新的”的条目集合。
//
// 对每个父树做路径对齐的结构 diff：同路径上 ID 相同的子树整棵跳过
// (内容寻址保证其下不可能再有差异)，ID 不同才继续下钻。最终产出的
// 是各父 diff 的交集，不是并集。对 Merge Commit 来说，只要某条目
// 与任意一个父相同，它的 blob 就可能来自那个父已验证过的历史，
// 不能算在本提交头上。
//
// 零父 (Root Commit) 视为与空树 diff：产出根可达的全部条目。
//
// 返回的是惰性、单趟、不可重放的序列，产出顺序为每层按名字升序。
func FindIntersectionOfDiffs[T, L comparable](
	ctx context.Context,
	load LoadFunc[T, L],
	root T,
	parents []T,
) iter.Seq2[PathEntry[T, L], error] {
	return func(yield func(PathEntry[T, L], error) bool) {
		walk(ctx, load, "", root, parents, yield)
	}
}

// walk 返回 false 表示调用方要求提前终止
func walk[T, L comparable](
	ctx context.Context,
	load LoadFunc[T, L],
	path string,
	id T,
	parents []T,
	yield func(PathEntry[T, L], error) bool,
) bool {
	// 与任一父的同路径子树 ID 相同 => 整棵子树视为未变，剪枝
	for _, p := range parents {
		if p == id {
			return true
		}
	}

	if err := ctx.Err(); err != nil {
		return yieldErr(yield, err)
	}

	if !yield(PathEntry[T, L]{Path: path, Entry: TreeEntry[T, L](id)}, nil) {
		return false
	}

	children, err := load(ctx, id)
	if err != nil {
		return yieldErr(yield, err)
	}

	parentChildren := make([]map[string]Entry[T, L], 0, len(parents))
	for _, p := range parents {
		pc, err := load(ctx, p)
		if err != nil {
			return yieldErr(yield, err)
		}
		parentChildren = append(parentChildren, pc)
	}

	// 排序保证失败可复现 (集合语义本身不要求顺序)
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		entry := children[name]
		childPath := joinPath(path, name)

		if entry.IsTree() {
			// 收集各父在同名位置的子树，叶子或缺失的父不参与下一层比较
			var parentTrees []T
			for _, pc := range parentChildren {
				if pe, ok := pc[name]; ok && pe.IsTree() {
					parentTrees = append(parentTrees, pe.Tree())
				}
			}
			if !walk(ctx, load, childPath, entry.Tree(), parentTrees, yield) {
				return false
			}
			continue
		}

		// Leaf：与任一父的同路径叶子相同就跳过
		matchesParent := false
		for _, pc := range parentChildren {
			if pe, ok := pc[name]; ok && !pe.IsTree() && pe.Leaf() == entry.Leaf() {
				matchesParent = true
				break
			}
		}
		if matchesParent {
			continue
		}
		if !yield(PathEntry[T, L]{Path: childPath, Entry: entry}, nil) {
			return false
		}
	}

	return true
}

func yieldErr[T, L comparable](yield func(PathEntry[T, L], error) bool, err error) bool {
	yield(PathEntry[T, L]{}, err)
	return false
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
