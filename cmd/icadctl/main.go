// Package main icadctl：知识库入库、媒体映射导入、管理员初始化与 MCP 服务
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/imrysn/kmti-icad-hub/internal/config"
	einoobs "github.com/imrysn/kmti-icad-hub/internal/observability/eino"
	"github.com/imrysn/kmti-icad-hub/internal/wire"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// Version 版本信息，构建时注入
var Version = "dev"

var configDir string

var rootCmd = &cobra.Command{
	Use:           "icadctl",
	Short:         "Manage the iCAD knowledge hub",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default $APP_CONFIG_DIR or ./configs)")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志；日志写到 stderr，stdout 留给命令输出
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configDir != "" {
		cfg, err = config.LoadFrom(configDir)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.InitWriter(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	einoobs.Init()
	return cfg, nil
}

// withCore 构造应用服务后执行 fn，结束时释放资源
func withCore(cmd *cobra.Command, opts wire.CoreOptions, fn func(ctx context.Context, core *wire.Core) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	core, cleanup, err := wire.InitializeCore(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, core)
}
