package memwrites

import (
	"context"
	"testing"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/storage/memory"
	"dagaudit/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemWrites_Isolation(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	overlay := New(backend)

	key := types.BlobKey("contentmf.aaaa000000000000000000000000000000000000000000000000000000000000")

	// 写入只进 overlay 日志
	require.NoError(t, overlay.Put(ctx, key, []byte("captured")))

	// 核心断言：后端必须一尘不染
	exists, err := backend.Has(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists, "overlay 的写入绝不能泄漏到后端")
	assert.Equal(t, 0, backend.Len())

	// overlay 自己能读回
	data, err := storage.ReadAll(ctx, overlay, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("captured"), data)
	assert.Equal(t, 1, overlay.Len())
}

func TestMemWrites_Fallback(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	backendKey := types.BlobKey("contentmf.bbbb000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, backend.Put(ctx, backendKey, []byte("from backend")))

	overlay := New(backend)

	// 日志未命中时回落到后端
	exists, err := overlay.Has(ctx, backendKey)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := storage.ReadAll(ctx, overlay, backendKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("from backend"), data)

	// 日志命中优先于后端 (overlay 写入遮蔽后端同 Key 内容)
	require.NoError(t, overlay.Put(ctx, backendKey, []byte("shadowed")))
	data, err = storage.ReadAll(ctx, overlay, backendKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("shadowed"), data)
}

func TestMemWrites_DisableFallback(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	backendKey := types.BlobKey("pathmf.cccc000000000000000000000000000000000000000000000000000000000000")
	logKey := types.BlobKey("pathmf.dddd000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, backend.Put(ctx, backendKey, []byte("backend only")))

	overlay := New(backend)
	require.NoError(t, overlay.Put(ctx, logKey, []byte("log only")))

	overlay.DisableFallback()

	// 后端独有的 Key：回落关闭后对 overlay 不可见
	exists, err := overlay.Has(ctx, backendKey)
	require.NoError(t, err)
	assert.False(t, exists, "回落关闭后命中只能来自写日志")

	_, err = overlay.Get(ctx, backendKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// 日志里的 Key 依然可见
	exists, err = overlay.Has(ctx, logKey)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMemWrites_SetReadOnly(t *testing.T) {
	ctx := context.Background()
	overlay := New(memory.New())

	key := types.BlobKey("hashmf.eeee000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, overlay.Put(ctx, key, []byte("before lock")))

	overlay.SetReadOnly(true)

	err := overlay.Put(ctx, key, []byte("after lock"))
	assert.ErrorIs(t, err, storage.ErrReadOnly)

	// 锁定前的内容不受影响
	data, err := storage.ReadAll(ctx, overlay, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("before lock"), data)
	assert.Equal(t, 1, overlay.Len())
}

func TestMemWrites_DuplicatePut_Idempotent(t *testing.T) {
	ctx := context.Background()
	overlay := New(memory.New())

	key := types.BlobKey("contentmf.ffff000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, overlay.Put(ctx, key, []byte("same")))
	require.NoError(t, overlay.Put(ctx, key, []byte("same")))

	// 内容寻址：同 Key 重复写入不增长日志，内容不变
	assert.Equal(t, 1, overlay.Len())
	data, err := storage.ReadAll(ctx, overlay, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("same"), data)
}

func TestMemWrites_PutCopiesData(t *testing.T) {
	ctx := context.Background()
	overlay := New(memory.New())

	key := types.BlobKey("contentmf.abab000000000000000000000000000000000000000000000000000000000000")
	buf := []byte("original")
	require.NoError(t, overlay.Put(ctx, key, buf))

	// 调用方写完后复用自己的 buffer，日志内容必须不受影响
	copy(buf, "XXXXXXXX")

	data, err := storage.ReadAll(ctx, overlay, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestMemWrites_Keys(t *testing.T) {
	ctx := context.Background()
	overlay := New(memory.New())

	k1 := types.BlobKey("contentmf.1111000000000000000000000000000000000000000000000000000000000000")
	k2 := types.BlobKey("contentmf.2222000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, overlay.Put(ctx, k1, []byte("1")))
	require.NoError(t, overlay.Put(ctx, k2, []byte("2")))

	keys := overlay.Keys()
	assert.ElementsMatch(t, []types.BlobKey{k1, k2}, keys)
}
