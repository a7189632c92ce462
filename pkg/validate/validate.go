// Package validate 实现派生数据的重生成校验：
// 对一段已提交的历史，把声明种类的派生数据在隔离的 overlay 里从头
// 重新派生一遍，证明 (1) 结果与线上已存储的逐字节一致，(2) 本次
// 派生需要的每一个 blob 都真的被写出来了。
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"dagaudit/pkg/derive"
	"dagaudit/pkg/ignore"
	"dagaudit/pkg/meta"
	"dagaudit/pkg/repo"
	"dagaudit/pkg/storage"
	"dagaudit/pkg/storage/memwrites"
	"dagaudit/pkg/storage/readonly"
	"dagaudit/pkg/types"

	"golang.org/x/sync/errgroup"
)

// Run 是验证器对上层 (CLI) 的唯一入口。
// 按 chunk 顺序处理提交列表；第一个致命错误终止整个运行，
// 之前 chunk 的成功不回滚 (它们本来就没有任何持久副作用)。
func Run(ctx context.Context, view *repo.View, csids []types.ChangesetID, opts Options) error {
	opts = opts.withDefaults()

	deriver, err := derive.Lookup(opts.Kind)
	if err != nil {
		return err
	}

	// 边界前置条件：两个持久后端都必须以引擎级只读模式打开。
	// mapping 后端尤其危险：legacy 派生在 real 视图下发现缺失映射时
	// 会补写一条，可写的后端会让这次补写直接落库
	if !storage.IsReadOnly(view.Blobstore()) {
		return fmt.Errorf("blob backend: %w", ErrWritableStorage)
	}
	if !meta.IsReadOnly(view.Mapping()) {
		return fmt.Errorf("mapping backend: %w", ErrWritableStorage)
	}

	matcher := ignore.NewMatcher(opts.IgnorePatterns)

	slog.Info("started validation",
		"kind", opts.Kind.String(),
		"changesets", len(csids),
		"chunk_size", opts.ChunkSize)

	for chunk := range slices.Chunk(csids, opts.ChunkSize) {
		if err := runChunk(ctx, view, deriver, chunk, opts, matcher); err != nil {
			return err
		}
	}
	return nil
}

// runChunk 执行一个 chunk 的完整生命周期:
// Priming -> Deriving -> Verifying -> Closed
func runChunk(
	ctx context.Context,
	view *repo.View,
	deriver derive.Deriver,
	chunk []types.ChangesetID,
	opts Options,
	matcher *ignore.Matcher,
) error {
	slog.Info("processing chunk", "first", chunk[0], "size", len(chunk))

	// --- Priming ---
	// 每个 chunk 一对全新的 overlay：写进内存日志，读回落到后端。
	// mapping 侧强制记录 no-op 写，否则合法的重派生映射写会因为
	// “后端已有相同值”被优化掉，在日志里不可见，产生假阴性。
	memStore := memwrites.New(view.Blobstore())
	memMapping := meta.NewMemWritesMapping(view.Mapping())
	memMapping.SetSaveNoopWrites(true)

	overlayView := view.WithBlobstore(memStore).WithMapping(memMapping)

	// --- Deriving ---
	// 每个提交派生两次：real 视图下是 ground truth (框架已缓存)，
	// overlay 视图下带 Force 从头重算。两个派生并发发起、共同等待，
	// 结果不相等即该提交验证失败，chunk 立即终止。
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, cs := range chunk {
		g.Go(func() error {
			var real, rederived derive.Handle

			dg, dctx := errgroup.WithContext(gctx)
			dg.Go(func() error {
				h, err := deriver.Derive(dctx, view, cs, derive.Options{})
				if err != nil {
					return fmt.Errorf("derive %s against real store: %w", cs, err)
				}
				real = h
				return nil
			})
			dg.Go(func() error {
				h, err := deriver.Derive(dctx, overlayView, cs, derive.Options{Force: true})
				if err != nil {
					return fmt.Errorf("rederive %s against overlay: %w", cs, err)
				}
				rederived = h
				return nil
			})
			if err := dg.Wait(); err != nil {
				return err
			}

			if !real.Equal(rederived) {
				return &MismatchError{Changeset: cs, Real: real, Rederived: rederived}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("rederivation captured blobs", "count", memStore.Len())

	// --- 锁定 overlay ---
	// 回落读关闭后，overlay 的命中只可能来自本次运行的写入；
	// 再套一层拒写装饰器，Verifying 阶段不允许产生任何新副作用。
	memStore.DisableFallback()
	memMapping.SetNoFallback(true)
	memMapping.SetReadOnly(true)
	lockedStore := readonly.New(memStore)
	verifyView := overlayView.WithBlobstore(lockedStore).WithMapping(memMapping)

	// --- Verifying ---
	vg, vctx := errgroup.WithContext(ctx)
	vg.SetLimit(opts.Concurrency)
	for _, cs := range chunk {
		vg.Go(func() error {
			return verifyChangeset(vctx, view, verifyView, deriver, cs, matcher)
		})
	}
	if err := vg.Wait(); err != nil {
		return err
	}

	// --- Closed ---
	// overlay 对随 chunk 丢弃，无需显式清理
	slog.Info("chunk validated", "first", chunk[0], "size", len(chunk))
	return nil
}

// verifyChangeset 对单个提交做锁定后的三项检查:
// (i) 派生框架在 overlay-only 视图下也认为它已派生
// (ii) real 视图下取出它和所有父提交的派生结果
// (iii) manifest diff 出的新条目的 blob 必须都在 overlay 日志里
func verifyChangeset(
	ctx context.Context,
	realView *repo.View,
	verifyView *repo.View,
	deriver derive.Deriver,
	cs types.ChangesetID,
	matcher *ignore.Matcher,
) error {
	derived, err := deriver.IsDerived(ctx, verifyView, cs)
	if err != nil {
		return fmt.Errorf("is_derived check for %s: %w", cs, err)
	}
	if !derived {
		return &NotDerivedError{Changeset: cs}
	}

	handle, parentHandles, err := deriveWithParents(ctx, realView, deriver, cs)
	if err != nil {
		return err
	}

	return verifyNewBlobs(ctx, realView.Blobstore(), verifyView.Blobstore(), cs, handle, parentHandles, matcher)
}

// deriveWithParents 在 real 视图下取提交及其所有父提交的派生结果
// (此时全部已派生，这些调用是幂等的查找)
func deriveWithParents(
	ctx context.Context,
	view *repo.View,
	deriver derive.Deriver,
	cs types.ChangesetID,
) (derive.Handle, []derive.Handle, error) {
	handle, err := deriver.Derive(ctx, view, cs, derive.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("derive %s: %w", cs, err)
	}

	parents, err := view.Changesets().GetParents(ctx, cs)
	if err != nil {
		return nil, nil, fmt.Errorf("get parents of %s: %w", cs, err)
	}

	parentHandles := make([]derive.Handle, len(parents))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parents {
		g.Go(func() error {
			h, err := deriver.Derive(gctx, view, p, derive.Options{})
			if err != nil {
				return fmt.Errorf("derive parent %s of %s: %w", p, cs, err)
			}
			parentHandles[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return handle, parentHandles, nil
}
