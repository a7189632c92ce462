package disk

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskAdapter(t *testing.T) {
	// 1. 创建临时测试目录
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()

	key := types.BlobKey("contentmf.2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	data := []byte("hello world")

	// 2. 测试 Put
	err = store.Put(ctx, key, data)
	assert.NoError(t, err)

	// 验证物理布局: root/<prefix>/<2字符分片>/<剩余哈希>
	expectedPath := filepath.Join(tmpDir, "contentmf", "2c", "f24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	_, err = os.Stat(expectedPath)
	assert.NoError(t, err, "文件应该存在于 prefix/Sharding 目录中")

	// 3. 测试 Has
	exists, err := store.Has(ctx, key)
	assert.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Has(ctx, "contentmf.ffffffff00000000000000000000000000000000000000000000000000000000")
	assert.NoError(t, err)
	assert.False(t, exists)

	// 4. 测试 Get
	reader, err := store.Get(ctx, key)
	assert.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Equal(t, data, content)

	// 5. Get 不存在的 Key 必须返回哨兵错误
	_, err = store.Get(ctx, "contentmf.eeeeeeee00000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDiskAdapter_PutIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	ctx := context.Background()

	key := types.BlobKey("pathmf.1111aaaa00000000000000000000000000000000000000000000000000000000")
	require.NoError(t, store.Put(ctx, key, []byte("v1")))

	// 内容寻址语义：重复写同一 Key 是 no-op，已有内容不被覆盖
	require.NoError(t, store.Put(ctx, key, []byte("v2-should-be-ignored")))

	data, err := storage.ReadAll(ctx, store, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), data, "First write wins")
}

func TestDiskAdapter_ReadOnly(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	// 先用读写模式灌入数据
	rw, err := NewAdapter(tmpDir)
	require.NoError(t, err)
	existing := types.BlobKey("hashmf.aaaabbbb00000000000000000000000000000000000000000000000000000000")
	require.NoError(t, rw.Put(ctx, existing, []byte("already here")))

	// 再以只读模式打开同一目录
	ro, err := NewReadOnly(tmpDir)
	require.NoError(t, err)
	assert.True(t, ro.ReadOnly())
	assert.True(t, storage.IsReadOnly(ro))

	// 读取照常工作
	data, err := storage.ReadAll(ctx, ro, existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("already here"), data)

	// 重复写已存在的 Key: 内容寻址下是无害的 no-op
	assert.NoError(t, ro.Put(ctx, existing, []byte("already here")))

	// 写入新 Key: 协议违规
	newKey := types.BlobKey("hashmf.ccccdddd00000000000000000000000000000000000000000000000000000000")
	err = ro.Put(ctx, newKey, []byte("new content"))
	assert.ErrorIs(t, err, storage.ErrReadOnly)

	exists, err := ro.Has(ctx, newKey)
	require.NoError(t, err)
	assert.False(t, exists, "被拒绝的写入不应留下任何痕迹")
}

func TestDiskAdapter_ReadOnly_RequiresExistingDir(t *testing.T) {
	// 只读模式不创建目录：目录不存在直接报错
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := NewReadOnly(missing)
	assert.Error(t, err)
}
