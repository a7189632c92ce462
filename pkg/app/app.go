// pkg/app/app.go
package app

import (
	"context"
	"fmt"

	"dagaudit/pkg/meta"
	"dagaudit/pkg/repo"
	"dagaudit/pkg/storage"
	"dagaudit/pkg/storage/cache"
	"dagaudit/pkg/storage/disk"
	"dagaudit/pkg/storage/s3"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Store storage.Store
	Meta  *meta.Repository
	View  *repo.View
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	// 1. 初始化存储层 (Dependency Injection)
	store, err := newStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 2. 可选的 Redis 缓存层 (diff 遍历的读放大主要打在 Has 上)
	if redisURL := viper.GetString("redis.url"); redisURL != "" {
		store, err = cache.NewCachedStore(store, cache.Config{
			RedisURL: redisURL,
			TTL:      viper.GetDuration("redis.ttl"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cache: %w", err)
		}
	}

	// 3. 元数据层 (提交图 + legacy mapping)
	db, err := meta.NewDB(ctx, meta.Config{
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init metadata db: %w", err)
	}
	// 存储只读开关同时约束元数据层：验证运行期间 mapping 表
	// 和提交图一样不允许出现新写入
	var repository *meta.Repository
	if viper.GetBool("storage.readonly") {
		repository = meta.NewReadOnlyRepository(db)
	} else {
		repository = meta.NewRepository(db)
	}

	return &App{
		Store: store,
		Meta:  repository,
		View:  repo.NewView(store, repository, repository),
	}, nil
}

// newStore 根据配置选择存储后端
// 验证场景默认只读打开；readonly=false 只用于搭建测试数据
func newStore(ctx context.Context) (storage.Store, error) {
	readOnly := viper.GetBool("storage.readonly")

	switch viper.GetString("storage.type") {
	case "disk", "":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		if readOnly {
			return disk.NewReadOnly(path)
		}
		return disk.NewAdapter(path)

	case "s3":
		return s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
			SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
			ReadOnly:        readOnly,
		})

	default:
		return nil, fmt.Errorf("unknown storage type: %s", viper.GetString("storage.type"))
	}
}
