package validate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"dagaudit/pkg/core"
	"dagaudit/pkg/derive"
	"dagaudit/pkg/meta"
	"dagaudit/pkg/repo"
	"dagaudit/pkg/storage"
	"dagaudit/pkg/storage/memory"
	"dagaudit/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// 注意：文件名必须以 _test.go 结尾，否则会被编译进生产代码！
// -----------------------------------------------------------------------------

// mockCS 生成合法的测试用 ChangesetID
func mockCS(input string) types.ChangesetID {
	sum := sha256.Sum256([]byte(input))
	return types.ChangesetID(hex.EncodeToString(sum[:]))
}

// markerKey 是参考派生器的“已派生”标记 Key
// 标记内容就是派生根 Hash，IsDerived / 结果查找都靠它
func markerKey(kind derive.Kind, cs types.ChangesetID) types.BlobKey {
	return types.BlobKey("derivedmark." + kind.String() + "." + string(cs))
}

// -----------------------------------------------------------------------------
// 1. 提交图 / Mapping 的内存实现
// -----------------------------------------------------------------------------

// graphFetcher 用 map 模拟提交图
type graphFetcher map[types.ChangesetID][]types.ChangesetID

func (g graphFetcher) GetParents(ctx context.Context, cs types.ChangesetID) ([]types.ChangesetID, error) {
	parents, ok := g[cs]
	if !ok {
		return nil, fmt.Errorf("unknown changeset: %s", cs)
	}
	return parents, nil
}

// memMapping 是 meta.MappingStore 的内存实现 (测试后端)
// 和生产的 meta.Repository 一样支持只读打开模式
type memMapping struct {
	mu          sync.RWMutex
	byLegacy    map[types.LegacyID]meta.MappingEntry
	byChangeset map[types.ChangesetID]meta.MappingEntry
	readOnly    bool
}

func newMemMapping() *memMapping {
	return &memMapping{
		byLegacy:    make(map[types.LegacyID]meta.MappingEntry),
		byChangeset: make(map[types.ChangesetID]meta.MappingEntry),
	}
}

func (m *memMapping) SetReadOnly(readOnly bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
}

func (m *memMapping) ReadOnly() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readOnly
}

func (m *memMapping) Insert(ctx context.Context, entry meta.MappingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		if e, ok := m.byLegacy[entry.Legacy]; ok && e == entry {
			return nil
		}
		return meta.ErrMappingReadOnly
	}
	m.byLegacy[entry.Legacy] = entry
	m.byChangeset[entry.Changeset] = entry
	return nil
}

// Len 返回后端里的映射条数 (测试断言持久状态没被动过)
func (m *memMapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byLegacy)
}

func (m *memMapping) LookupByLegacy(ctx context.Context, legacy types.LegacyID) (*meta.MappingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.byLegacy[legacy]; ok {
		return &e, nil
	}
	return nil, meta.ErrMappingNotFound
}

func (m *memMapping) LookupByChangeset(ctx context.Context, cs types.ChangesetID) (*meta.MappingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.byChangeset[cs]; ok {
		return &e, nil
	}
	return nil, meta.ErrMappingNotFound
}

// -----------------------------------------------------------------------------
// 2. 派生数据 fixture: 从 path -> content 构造 manifest 树
// -----------------------------------------------------------------------------

// sourceTree 持有一个提交的完整派生树：根、全部 Tree 节点、全部 Leaf 内容
type sourceTree struct {
	root      *core.Manifest
	trees     []*core.Manifest
	leafBlobs map[types.Hash][]byte // leaf content hash -> content
}

type dirNode struct {
	files map[string]string
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: make(map[string]string), dirs: make(map[string]*dirNode)}
}

// buildTree 把扁平的 path -> content 映射展开成嵌套 manifest 树
func buildTree(t *testing.T, files map[string]string) *sourceTree {
	t.Helper()

	rootDir := newDirNode()
	for path, content := range files {
		parts := strings.Split(path, "/")
		cur := rootDir
		for _, d := range parts[:len(parts)-1] {
			if cur.dirs[d] == nil {
				cur.dirs[d] = newDirNode()
			}
			cur = cur.dirs[d]
		}
		cur.files[parts[len(parts)-1]] = content
	}

	st := &sourceTree{leafBlobs: make(map[types.Hash][]byte)}

	var build func(n *dirNode) types.Hash
	build = func(n *dirNode) types.Hash {
		var entries []core.ManifestEntry
		for name, sub := range n.dirs {
			h := build(sub)
			entries = append(entries, core.ManifestEntry{
				Name: name, Type: core.EntryTree, Hash: core.NewLink(string(h)),
			})
		}
		for name, content := range n.files {
			h := core.CalculateBlobHash([]byte(content))
			st.leafBlobs[h] = []byte(content)
			entries = append(entries, core.ManifestEntry{
				Name: name, Type: core.EntryLeaf, Hash: core.NewLink(string(h)),
			})
		}
		m, err := core.NewManifest(entries)
		require.NoError(t, err)
		st.trees = append(st.trees, m)
		return m.ID()
	}

	rootHash := build(rootDir)
	for _, m := range st.trees {
		if m.ID() == rootHash {
			st.root = m
		}
	}
	require.NotNil(t, st.root)
	return st
}

// -----------------------------------------------------------------------------
// 3. 参考派生器 (manifest 形状的种类)
// -----------------------------------------------------------------------------

// manifestDeriver 以 fixture 数据为“派生算法”：对每个提交，派生结果
// 就是预先构造好的 manifest 树。skipKeys / skipMarker 是测试注入点，
// 用来模拟有缺陷的派生实现 (漏写 blob、漏写完成标记)。
type manifestDeriver struct {
	kind       derive.Kind
	data       map[types.ChangesetID]*sourceTree
	skipKeys   map[types.BlobKey]bool
	skipMarker bool
}

var _ derive.Deriver = (*manifestDeriver)(nil)

func (d *manifestDeriver) Kind() derive.Kind { return d.kind }

func (d *manifestDeriver) IsDerived(ctx context.Context, view *repo.View, cs types.ChangesetID) (bool, error) {
	return view.Blobstore().Has(ctx, markerKey(d.kind, cs))
}

func (d *manifestDeriver) Derive(ctx context.Context, view *repo.View, cs types.ChangesetID, opts derive.Options) (derive.Handle, error) {
	if !opts.Force {
		ok, err := d.IsDerived(ctx, view, cs)
		if err != nil {
			return nil, err
		}
		if ok {
			// 标记内容就是根 Hash，直接还原 Handle
			raw, err := storage.ReadAll(ctx, view.Blobstore(), markerKey(d.kind, cs))
			if err != nil {
				return nil, err
			}
			return d.handle(types.Hash(raw)), nil
		}
		// 派生前保证父提交已派生
		parents, err := view.Changesets().GetParents(ctx, cs)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if _, err := d.Derive(ctx, view, p, opts); err != nil {
				return nil, err
			}
		}
	}
	return d.compute(ctx, view, cs)
}

// compute 执行真正的派生写路径：全部 Tree blob + (如有) Leaf blob + 标记
func (d *manifestDeriver) compute(ctx context.Context, view *repo.View, cs types.ChangesetID) (derive.Handle, error) {
	st, ok := d.data[cs]
	if !ok {
		return nil, fmt.Errorf("no source data for changeset %s", cs)
	}

	bs := view.Blobstore()
	for _, m := range st.trees {
		key, keyed := d.kind.TreeBlobKey(m.ID())
		if !keyed || d.skipKeys[key] {
			continue
		}
		if err := bs.Put(ctx, key, m.Bytes()); err != nil {
			return nil, err
		}
	}
	for leafHash, content := range st.leafBlobs {
		key, keyed := d.kind.LeafBlobKey(leafHash)
		if !keyed || d.skipKeys[key] {
			continue
		}
		if err := bs.Put(ctx, key, content); err != nil {
			return nil, err
		}
	}

	if !d.skipMarker {
		if err := bs.Put(ctx, markerKey(d.kind, cs), []byte(st.root.ID())); err != nil {
			return nil, err
		}
	}
	return d.handle(st.root.ID()), nil
}

func (d *manifestDeriver) handle(root types.Hash) derive.Handle {
	switch d.kind {
	case derive.KindContentManifest:
		return derive.ContentManifestHandle{Root: root}
	case derive.KindPathManifest:
		return derive.PathManifestHandle{Root: root}
	default:
		return derive.ContentHashManifestHandle{Root: root}
	}
}

// -----------------------------------------------------------------------------
// 4. 参考派生器 (遗留种类)
// -----------------------------------------------------------------------------

type legacyFixture struct {
	cs   *core.LegacyChangeset
	tree *sourceTree
}

// legacyDeriver: 完成状态存在 legacy mapping 里而不是 blob 标记里，
// 覆盖 overlay mapping (含 saveNoopWrites) 的验证路径
type legacyDeriver struct {
	data map[types.ChangesetID]*legacyFixture
}

var _ derive.Deriver = (*legacyDeriver)(nil)

func (d *legacyDeriver) Kind() derive.Kind { return derive.KindLegacyChangeset }

func (d *legacyDeriver) IsDerived(ctx context.Context, view *repo.View, cs types.ChangesetID) (bool, error) {
	_, err := view.Mapping().LookupByChangeset(ctx, cs)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, meta.ErrMappingNotFound) {
		return false, nil
	}
	return false, err
}

func (d *legacyDeriver) Derive(ctx context.Context, view *repo.View, cs types.ChangesetID, opts derive.Options) (derive.Handle, error) {
	if !opts.Force {
		entry, err := view.Mapping().LookupByChangeset(ctx, cs)
		if err == nil {
			return derive.LegacyChangesetHandle{ID: entry.Legacy}, nil
		}
		if !errors.Is(err, meta.ErrMappingNotFound) {
			return nil, err
		}
		parents, err := view.Changesets().GetParents(ctx, cs)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if _, err := d.Derive(ctx, view, p, opts); err != nil {
				return nil, err
			}
		}
	}
	return d.compute(ctx, view, cs)
}

func (d *legacyDeriver) compute(ctx context.Context, view *repo.View, cs types.ChangesetID) (derive.Handle, error) {
	fx, ok := d.data[cs]
	if !ok {
		return nil, fmt.Errorf("no source data for changeset %s", cs)
	}

	bs := view.Blobstore()
	kind := derive.KindLegacyChangeset

	// 遗留提交对象本身
	if err := bs.Put(ctx, derive.LegacyChangesetBlobKey(fx.cs.LegacyID()), fx.cs.Bytes()); err != nil {
		return nil, err
	}
	for _, m := range fx.tree.trees {
		key, _ := kind.TreeBlobKey(m.ID())
		if err := bs.Put(ctx, key, m.Bytes()); err != nil {
			return nil, err
		}
	}
	for leafHash, content := range fx.tree.leafBlobs {
		key, _ := kind.LeafBlobKey(leafHash)
		if err := bs.Put(ctx, key, content); err != nil {
			return nil, err
		}
	}

	// mapping 写入：后端已有相同条目时是否被记录由 overlay 的
	// saveNoopWrites 决定，这正是验证器要证明的行为
	entry := meta.MappingEntry{Legacy: fx.cs.LegacyID(), Changeset: cs}
	if err := view.Mapping().Insert(ctx, entry); err != nil {
		return nil, err
	}
	return derive.LegacyChangesetHandle{ID: fx.cs.LegacyID()}, nil
}

// -----------------------------------------------------------------------------
// 5. 测试环境组装
// -----------------------------------------------------------------------------

type testEnv struct {
	backend *memory.Store
	mapping *memMapping
	view    *repo.View
}

func newTestEnv(graph graphFetcher) *testEnv {
	backend := memory.New()
	mapping := newMemMapping()
	return &testEnv{
		backend: backend,
		mapping: mapping,
		view:    repo.NewView(backend, mapping, graph),
	}
}

// lockBackends 满足运行前置条件：blob 和 mapping 后端都以只读打开
func (e *testEnv) lockBackends() {
	e.backend.SetReadOnly(true)
	e.mapping.SetReadOnly(true)
}

// seedDerived 把 fixture 灌进后端，模拟“线上已派生”的状态
func seedDerived(t *testing.T, store *memory.Store, kind derive.Kind, data map[types.ChangesetID]*sourceTree) {
	t.Helper()
	ctx := context.Background()

	for cs, st := range data {
		for _, m := range st.trees {
			if key, ok := kind.TreeBlobKey(m.ID()); ok {
				require.NoError(t, store.Put(ctx, key, m.Bytes()))
			}
		}
		for leafHash, content := range st.leafBlobs {
			if key, ok := kind.LeafBlobKey(leafHash); ok {
				require.NoError(t, store.Put(ctx, key, content))
			}
		}
		require.NoError(t, store.Put(ctx, markerKey(kind, cs), []byte(st.root.ID())))
	}
}

// seedLegacyBlobs 灌入遗留种类的 blob，不触碰 mapping 后端
func seedLegacyBlobs(t *testing.T, env *testEnv, data map[types.ChangesetID]*legacyFixture) {
	t.Helper()
	ctx := context.Background()
	kind := derive.KindLegacyChangeset

	for _, fx := range data {
		require.NoError(t, env.backend.Put(ctx, derive.LegacyChangesetBlobKey(fx.cs.LegacyID()), fx.cs.Bytes()))
		for _, m := range fx.tree.trees {
			key, _ := kind.TreeBlobKey(m.ID())
			require.NoError(t, env.backend.Put(ctx, key, m.Bytes()))
		}
		for leafHash, content := range fx.tree.leafBlobs {
			key, _ := kind.LeafBlobKey(leafHash)
			require.NoError(t, env.backend.Put(ctx, key, content))
		}
	}
}

// seedLegacy 灌入遗留种类的 fixture (blob + mapping 后端)
func seedLegacy(t *testing.T, env *testEnv, data map[types.ChangesetID]*legacyFixture) {
	t.Helper()
	ctx := context.Background()

	seedLegacyBlobs(t, env, data)
	for cs, fx := range data {
		require.NoError(t, env.mapping.Insert(ctx, meta.MappingEntry{
			Legacy: fx.cs.LegacyID(), Changeset: cs,
		}))
	}
}
