package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"dagaudit/pkg/storage"
	"dagaudit/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 缓存层
// 验证场景的价值：diff 遍历会对同一批 manifest 节点产生大量重复的
// 存在性查询 (read amplification)，Exists 级缓存能替后端挡掉大部分。
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client // Redis 客户端
	ttl     time.Duration // 缓存过期时间 (例如 24h)
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
	}, nil
}

// ReadOnly 透传底层的只读状态 (装饰器不改变写权限语义)
func (s *CachedStore) ReadOnly() bool {
	return storage.IsReadOnly(s.backend)
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(key types.BlobKey) string {
	return "da:obj:" + string(key)
}

// Has 优先查 Redis，实现毫秒级存在性判断
func (s *CachedStore) Has(ctx context.Context, key types.BlobKey) (bool, error) {
	ck := s.cacheKey(key)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, ck).Result()
	if err != nil {
		// 架构决策：缓存故障降级 (Cache Failure Fallback)
		// Redis 挂了就退化为无缓存模式，直接查底层存储
		slog.Warn("redis error, falling back to backend", "error", err)
	} else if val > 0 {
		// Cache Hit! 无需发起后端网络请求
		return true, nil
	}

	// 2. 缓存未命中 (Cache Miss)，查底层存储
	found, err := s.backend.Has(ctx, key)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填 (Cache Fill)
	if found {
		// 异步写入 Redis，不阻塞主流程
		// 用 context.Background() 确保即使上层 ctx 取消，回填也能完成
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, ck, "1", s.ttl)
		}()
	}

	return found, nil
}

// Put 写入对象。利用 Has 的缓存能力进行预检。
func (s *CachedStore) Put(ctx context.Context, key types.BlobKey, data []byte) error {
	// 1. 如果 Redis 里有，这一步耗时 < 1ms，直接跳过写入
	exists, err := s.Has(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return nil // 幂等性：已存在
	}

	// 2. 穿透到底层存储
	if err := s.backend.Put(ctx, key, data); err != nil {
		return err
	}

	// 3. 只有底层写成功了才写 Redis；Set 错误可以忽略，不影响主流程
	s.client.Set(ctx, s.cacheKey(key), "1", s.ttl)

	return nil
}

// Get 透传 - 我们不缓存 Blob 数据
// 原因：manifest blob 数量巨大，Redis 内存宝贵，只存 Existence 性价比最高。
func (s *CachedStore) Get(ctx context.Context, key types.BlobKey) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}
