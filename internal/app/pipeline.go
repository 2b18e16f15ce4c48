package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orders-ai/internal/account"
	"orders-ai/internal/ai"
	"orders-ai/internal/audit"
	"orders-ai/internal/calendar"
	"orders-ai/internal/engine"
	"orders-ai/internal/plan"
)

// runExport 构建账户快照并输出为 JSON。
func (a *App) runExport(ctx context.Context, opts Options) error {
	snap, _, err := a.gatherContext(ctx)
	if err != nil {
		return err
	}
	return writeJSON(opts.OutPath, snap)
}

// runPropose 构建快照、拉取运行记忆并请求模型生成计划。
func (a *App) runPropose(ctx context.Context, opts Options) (plan.TradePlan, error) {
	snap, memory, err := a.gatherContext(ctx)
	if err != nil {
		return plan.TradePlan{}, err
	}

	client, err := ai.NewClient(a.cfg.Proposer, a.logger)
	if err != nil {
		return plan.TradePlan{}, err
	}

	tradePlan, err := client.GeneratePlan(ctx, opts.Query, snap, ai.PromptInput{
		BudgetCap:      snap.BudgetEUR * a.cfg.Engine.BudgetCapFraction,
		BudgetCurrency: a.cfg.Engine.BudgetCurrency,
		OpenMarkets:    calendar.OpenMarkets(time.Now().UTC()),
		Memory:         memory,
		SecurityTypes:  a.cfg.Engine.AllowedSecurityTypes,
	})
	if err != nil {
		return plan.TradePlan{}, err
	}
	if writeErr := writeJSON(opts.OutPath, tradePlan); writeErr != nil {
		return plan.TradePlan{}, writeErr
	}
	return tradePlan, nil
}

// runOffline 在完全不接触券商的前提下回显计划文件。
func (a *App) runOffline(ctx context.Context, opts Options) error {
	tradePlan, err := loadPlan(opts.PlanPath)
	if err != nil {
		return err
	}
	submitter := engine.NewSubmitter(a.gw, a.cfg.Engine,
		engine.NewFXConverter(a.gw, a.cfg.Engine, a.logger), a.logger)
	report, err := submitter.Run(ctx, engine.ModeDry, tradePlan, account.Snapshot{})
	if writeErr := writeJSON(opts.OutPath, report); writeErr != nil && err == nil {
		err = writeErr
	}
	return err
}

// runPlanFile 读取计划文件并按给定模式走完校验与执行流程。
func (a *App) runPlanFile(ctx context.Context, opts Options, mode engine.Mode) error {
	tradePlan, err := loadPlan(opts.PlanPath)
	if err != nil {
		return err
	}
	return a.execute(ctx, mode, opts.Query, tradePlan, opts.OutPath)
}

// runFull 先提案再提交，一条命令完成整个流程。
func (a *App) runFull(ctx context.Context, opts Options) error {
	tradePlan, err := a.runPropose(ctx, Options{Query: opts.Query, OutPath: opts.OutPath})
	if err != nil {
		a.mailer.NotifyError("propose", err)
		return err
	}
	if len(tradePlan.Orders) == 0 {
		a.logger.Info("模型未提出任何订单，本次运行结束",
			zap.String("summary", tradePlan.Summary))
		return nil
	}
	return a.execute(ctx, engine.ModeSubmit, opts.Query, tradePlan, "")
}

// execute 构建快照、驱动提交器并记录审计与告警。
func (a *App) execute(ctx context.Context, mode engine.Mode, query string, tradePlan plan.TradePlan, outPath string) error {
	snap, _, err := a.gatherContext(ctx)
	if err != nil {
		a.mailer.NotifyError("snapshot", err)
		return err
	}

	fx := engine.NewFXConverter(a.gw, a.cfg.Engine, a.logger)
	submitter := engine.NewSubmitter(a.gw, a.cfg.Engine, fx, a.logger)
	report, runErr := submitter.Run(ctx, mode, tradePlan, snap)

	if a.audit != nil {
		run := audit.Run{
			Mode:   string(mode),
			Query:  query,
			Plan:   tradePlan,
			Report: report,
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
		if _, auditErr := a.audit.RecordRun(ctx, run); auditErr != nil {
			a.logger.Warn("写入审计记录失败", zap.Error(auditErr))
		}
	}

	if report.Submitted {
		a.mailer.NotifyReport(report)
	} else if runErr != nil {
		a.mailer.NotifyError(string(mode), runErr)
	}

	if outPath != "" {
		if writeErr := writeJSON(outPath, report); writeErr != nil && runErr == nil {
			runErr = writeErr
		}
	}

	a.logger.Info("运行结束",
		zap.String("mode", string(mode)),
		zap.Int("orders", len(report.Results)),
		zap.Int("rejected", report.Rejected()),
		zap.Bool("submitted", report.Submitted),
	)
	return runErr
}

// gatherContext 并发构建账户快照与提示词记忆段。
func (a *App) gatherContext(ctx context.Context) (account.Snapshot, string, error) {
	fx := engine.NewFXConverter(a.gw, a.cfg.Engine, a.logger)
	builder := account.NewBuilder(a.gw, a.cfg.Engine, fx, a.logger)

	var (
		snap   account.Snapshot
		memory string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		built, err := builder.Build(gctx)
		if err != nil {
			return fmt.Errorf("构建账户快照失败: %w", err)
		}
		snap = built
		return nil
	})
	if a.audit != nil {
		g.Go(func() error {
			section, err := a.audit.MemorySection(gctx, time.Duration(a.cfg.Audit.LookbackHours)*time.Hour)
			if err != nil {
				// 记忆缺失不阻塞主流程。
				a.logger.Warn("读取运行记忆失败", zap.Error(err))
				return nil
			}
			memory = section
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return account.Snapshot{}, "", err
	}
	return snap, memory, nil
}

func loadPlan(path string) (plan.TradePlan, error) {
	if path == "" {
		return plan.TradePlan{}, fmt.Errorf("该模式需要 -plan 指定计划文件")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return plan.TradePlan{}, fmt.Errorf("读取计划文件失败: %w", err)
	}
	var tradePlan plan.TradePlan
	if err := json.Unmarshal(data, &tradePlan); err != nil {
		return plan.TradePlan{}, fmt.Errorf("解析计划文件失败: %w", err)
	}
	return tradePlan, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化输出失败: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return nil
}
