package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orders-ai/internal/audit"
	"orders-ai/internal/broker"
	"orders-ai/internal/broker/alpaca"
	"orders-ai/internal/config"
	"orders-ai/internal/engine"
	"orders-ai/internal/notify"
	"orders-ai/internal/store"
)

// Options 为一次运行的命令行参数。
type Options struct {
	// Mode 取 export/propose/dry/check/submit/run 之一。
	Mode string
	// Query 为传给提案端的用户要求，空时使用配置默认值。
	Query string
	// PlanPath 为 dry/check/submit 模式读取的计划文件。
	PlanPath string
	// OutPath 为 export/propose 模式的输出文件，空串输出到标准输出。
	OutPath string
}

// App 聚合核心依赖并按模式驱动一次运行。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	gw     broker.Gateway
	audit  *audit.Service
	mailer *notify.Mailer
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, sqliteStore *store.Store) (*App, error) {
	var auditSvc *audit.Service
	if cfg.Audit.Enabled {
		svc, err := audit.NewService(sqliteStore, logger)
		if err != nil {
			return nil, err
		}
		auditSvc = svc
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		store:  sqliteStore,
		gw:     alpaca.New(cfg.Broker, logger),
		audit:  auditSvc,
		mailer: notify.NewMailer(cfg.Notify, logger),
	}, nil
}

// Run 按模式执行一次完整流程。
func (a *App) Run(ctx context.Context, opts Options) error {
	a.logger.Info("开始运行",
		zap.String("mode", opts.Mode),
		zap.String("environment", a.cfg.App.Environment),
		zap.String("broker", a.cfg.Broker.Name),
	)

	switch opts.Mode {
	case "export":
		return a.runExport(ctx, opts)
	case "propose":
		_, err := a.runPropose(ctx, opts)
		return err
	case "dry":
		return a.runOffline(ctx, opts)
	case "check":
		return a.runPlanFile(ctx, opts, engine.ModeCheck)
	case "submit":
		return a.runPlanFile(ctx, opts, engine.ModeSubmit)
	case "run":
		return a.runFull(ctx, opts)
	default:
		return fmt.Errorf("未知模式 %q，支持 export/propose/dry/check/submit/run", opts.Mode)
	}
}
