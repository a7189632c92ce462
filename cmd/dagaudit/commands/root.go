package commands

import (
	"fmt"
	"os"

	"dagaudit/pkg/app"
	"dagaudit/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	DA *app.App
)

var rootCmd = &cobra.Command{
	Use:   "dagaudit",
	Short: "dagaudit: derived data consistency validator",
	Long: `dagaudit rederives a declared kind of derived data for a range of
committed changesets inside an isolating in-memory overlay, and proves the
result is byte-identical to what production storage already holds.`,
	// PersistentPreRunE 会在所有子命令执行前运行，统一初始化 App
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		DA, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize dagaudit: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dagaudit/config.yaml)")

	// 2. 定义 storage.path 参数，并绑定到 Viper
	// 用户既可以在 yaml 里写，也可以用 --storage-path 覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "Directory holding the object store")
	if err := viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("storage-path")); err != nil {
		fmt.Println("Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}
