package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"orders-ai/internal/app"
	"orders-ai/internal/config"
	"orders-ai/internal/log"
	"orders-ai/internal/store"
)

func main() {
	var (
		configPath string
		mode       string
		query      string
		planPath   string
		outPath    string
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&mode, "mode", "check", "运行模式: export/propose/dry/check/submit/run")
	flag.StringVar(&query, "query", "", "传给提案端的用户要求，空时使用配置默认值")
	flag.StringVar(&planPath, "plan", "", "计划文件路径（dry/check/submit 模式必填）")
	flag.StringVar(&outPath, "out", "", "输出文件路径，默认输出到标准输出")
	flag.Parse()

	// .env 缺失是正常情况，密钥也可以直接来自环境变量。
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ordersApp, err := app.New(cfg, logger, sqliteStore)
	if err != nil {
		logger.Error("初始化应用失败", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ordersApp.Run(ctx, app.Options{
		Mode:     mode,
		Query:    query,
		PlanPath: planPath,
		OutPath:  outPath,
	}); err != nil {
		logger.Error("运行失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("运行完成")
}
