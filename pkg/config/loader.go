package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.dagaudit -> ~/.dagaudit
		viper.AddConfigPath(".")
		viper.AddConfigPath(".dagaudit")
		viper.AddConfigPath(filepath.Join(home, ".dagaudit"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (DAGAUDIT_DATABASE_HOST 等)
	viper.SetEnvPrefix("DAGAUDIT")
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件不算错 (可能全靠环境变量)，格式错才是错
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	// 数据库默认值
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// 存储默认值
	wd, _ := os.Getwd()
	viper.SetDefault("storage.path", filepath.Join(wd, ".dagaudit", "objects"))
	viper.SetDefault("storage.type", "disk")
	// 验证器的硬前提：存储必须只读打开。这里给的是默认值，
	// 即使被配置覆盖成 false，validate.Run 也会在边界上拒绝。
	viper.SetDefault("storage.readonly", true)

	// Redis 缓存 (可选，url 为空则不启用)
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.ttl", "24h")

	// 验证参数默认值
	viper.SetDefault("validate.chunk_size", 10000)
	viper.SetDefault("validate.concurrency", 100)
}
