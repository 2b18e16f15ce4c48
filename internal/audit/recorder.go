package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orders-ai/internal/engine"
	"orders-ai/internal/plan"
	"orders-ai/internal/store"
)

// Run 为一次完整运行的审计记录。
// Plan 与 Report 原样落库，方便事后重放与排查。
type Run struct {
	ID        string         `json:"id"`
	Mode      string         `json:"mode"`
	Query     string         `json:"query"`
	Plan      plan.TradePlan `json:"plan"`
	Report    engine.Report  `json:"report"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Service 负责持久化运行审计。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化审计服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("audit: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := store.Migrate(runsSchema); err != nil {
		return nil, fmt.Errorf("audit: 初始化表失败: %w", err)
	}
	return &Service{
		db:     store.DB(),
		logger: logger,
	}, nil
}

const runsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	query TEXT NOT NULL,
	plan_json TEXT NOT NULL,
	report_json TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// RecordRun 写入一次运行记录并返回生成的 run_id。
func (s *Service) RecordRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		return "", fmt.Errorf("audit: 序列化计划失败: %w", err)
	}
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return "", fmt.Errorf("audit: 序列化报告失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, query, plan_json, report_json, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Query, string(planJSON), string(reportJSON), run.Error,
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("audit: 写入运行记录失败: %w", err)
	}
	return run.ID, nil
}

// RecentRuns 返回 lookback 窗口内的运行记录，按时间从旧到新排列。
func (s *Service) RecentRuns(ctx context.Context, lookback time.Duration) ([]Run, error) {
	cutoff := time.Now().UTC().Add(-lookback).Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, mode, query, plan_json, report_json, error, created_at
		 FROM runs WHERE created_at >= ? ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("audit: 查询运行记录失败: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run        Run
			planJSON   string
			reportJSON string
			created    string
		)
		if scanErr := rows.Scan(&run.ID, &run.Mode, &run.Query, &planJSON, &reportJSON, &run.Error, &created); scanErr != nil {
			return nil, fmt.Errorf("audit: 解析运行记录失败: %w", scanErr)
		}
		if err := json.Unmarshal([]byte(planJSON), &run.Plan); err != nil {
			s.logger.Warn("审计计划字段损坏", zap.String("run_id", run.ID), zap.Error(err))
		}
		if err := json.Unmarshal([]byte(reportJSON), &run.Report); err != nil {
			s.logger.Warn("审计报告字段损坏", zap.String("run_id", run.ID), zap.Error(err))
		}
		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}
		run.CreatedAt = ts
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: 读取运行记录失败: %w", err)
	}
	return runs, nil
}

// maxMemoryRuns 限制提示词记忆段引用的运行条数。
const maxMemoryRuns = 6

// MemorySection 把最近的运行记录压缩成一段提示词文本，
// 让提案端能看到此前已提交的订单与失败原因，避免重复操作。
// 窗口内没有记录时返回空串。
func (s *Service) MemorySection(ctx context.Context, lookback time.Duration) (string, error) {
	runs, err := s.RecentRuns(ctx, lookback)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", nil
	}
	if len(runs) > maxMemoryRuns {
		runs = runs[len(runs)-maxMemoryRuns:]
	}

	var b strings.Builder
	for _, run := range runs {
		stamp := run.CreatedAt.Format("01/02 15:04")
		if run.Error != "" {
			fmt.Fprintf(&b, "[%s] 运行失败: %s\n", stamp, truncate(run.Error, 120))
			for _, o := range run.Plan.Orders {
				fmt.Fprintf(&b, "- 当时提议: %s %v %s (%s)\n",
					o.Action, o.Quantity, o.Symbol, truncate(o.Rationale, 60))
			}
			continue
		}

		fmt.Fprintf(&b, "[%s] 运行成功 - 买入总额 %.0f / 上限 %.0f %s\n",
			stamp, run.Report.TotalBuy, run.Report.BudgetCap, run.Report.Currency)
		for _, res := range run.Report.Results {
			fmt.Fprintf(&b, "- %s %v %s → %s\n",
				res.Order.Action, res.Order.Quantity, res.Order.Symbol, res.State)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
