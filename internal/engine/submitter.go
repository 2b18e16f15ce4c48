package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orders-ai/internal/account"
	"orders-ai/internal/broker"
	"orders-ai/internal/config"
	"orders-ai/internal/plan"
)

// budgetTolerance 吸收换算与舍入带来的分位误差。
const budgetTolerance = 0.01

// Submitter 驱动订单状态机：
// drafted → qualified → priced → budget_checked → submitted | rejected。
// 预算检查发生在合约确认与定价之后，基于券商实时数据重新计算，
// 模型在计划里自称的预估金额不参与任何判断。
type Submitter struct {
	gw        broker.Gateway
	cfg       config.EngineConfig
	fx        *FXConverter
	pricer    *PriceResolver
	validator *Validator
	logger    *zap.Logger
}

// NewSubmitter 创建提交器。
func NewSubmitter(gw broker.Gateway, cfg config.EngineConfig, fx *FXConverter, logger *zap.Logger) *Submitter {
	return &Submitter{
		gw:        gw,
		cfg:       cfg,
		fx:        fx,
		pricer:    NewPriceResolver(gw, cfg, logger),
		validator: NewValidator(cfg, logger),
		logger:    logger,
	}
}

// Run 按给定模式处理一份计划并返回完整报告。
//   - dry: 不接触券商，仅做校验并回显订单；
//   - check: 确认合约、定价并做预算检查，但不下单；
//   - submit: 预算检查通过且无任何拒绝时真正下单。
//
// 任何一笔订单被拒绝即视为整个计划被拒绝，不会提交其余订单。
func (s *Submitter) Run(ctx context.Context, mode Mode, p plan.TradePlan, snap account.Snapshot) (Report, error) {
	report := Report{
		Mode:        mode,
		GeneratedAt: time.Now().UTC(),
		Currency:    plan.Normalize(s.cfg.BudgetCurrency),
		BudgetSafe:  snap.BudgetEUR,
		BudgetCap:   roundTo(snap.BudgetEUR*s.cfg.BudgetCapFraction, 2),
		Warnings:    append([]string(nil), snap.Warnings...),
	}

	// dry 模式不构建账户快照，结构校验照常执行，仅跳过持仓层面的校验。
	if mode == ModeDry {
		violations, err := s.validator.ValidateOrders(p)
		if err != nil && len(violations) == 0 {
			return report, err
		}
		if len(violations) > 0 {
			report.Results = rejectAll(p.Orders, violations)
			return report, err
		}
		return s.runDry(report, p)
	}

	violations, err := s.validator.ValidatePlan(p, snap)
	if err != nil && len(violations) == 0 {
		return report, err
	}
	if len(violations) > 0 {
		report.Results = rejectAll(p.Orders, violations)
		return report, err
	}

	planRejected := false
	totalBuy := 0.0
	for i, o := range p.Orders {
		res := OrderResult{Index: i, Order: o, State: StateDrafted}

		contract, err := s.gw.Qualify(ctx, contractSpecFor(o))
		if err != nil {
			res.State = StateRejected
			res.Reason = fmt.Sprintf("合约确认失败: %v", err)
			planRejected = true
			report.Results = append(report.Results, res)
			s.logger.Warn("合约确认失败",
				zap.String("symbol", o.Symbol),
				zap.Error(err))
			continue
		}
		res.Contract = contract
		res.State = StateQualified

		limitPrice, err := s.limitPriceFor(ctx, o, contract)
		if err != nil {
			report.Results = append(report.Results, res)
			return report, err
		}
		res.LimitPrice = limitPrice
		res.Order.LimitPrice = &limitPrice
		res.State = StatePriced

		if o.NormalizedAction() == broker.ActionBuy {
			notional, err := s.fx.ToBudget(ctx, o.Quantity*limitPrice, o.Currency)
			if err != nil {
				report.Results = append(report.Results, res)
				return report, err
			}
			res.BudgetNotional = roundTo(notional, 2)
			totalBuy += notional
		}
		report.Results = append(report.Results, res)
	}
	report.TotalBuy = roundTo(totalBuy, 2)

	if totalBuy > snap.BudgetEUR*s.cfg.BudgetCapFraction+budgetTolerance {
		budgetErr := &BudgetExceededError{
			TotalBuy: report.TotalBuy,
			Cap:      report.BudgetCap,
			Budget:   snap.BudgetEUR,
			Currency: report.Currency,
		}
		for i := range report.Results {
			if report.Results[i].State != StateRejected {
				report.Results[i].State = StateRejected
				report.Results[i].Reason = budgetErr.Error()
			}
		}
		s.logger.Warn("买入总额超过预算上限，整个计划被拒绝",
			zap.Float64("total_buy", report.TotalBuy),
			zap.Float64("cap", report.BudgetCap))
		return report, budgetErr
	}
	for i := range report.Results {
		if report.Results[i].State == StatePriced {
			report.Results[i].State = StateBudgetChecked
		}
	}

	if planRejected {
		return report, s.rejectionError(report)
	}
	if mode != ModeSubmit {
		return report, nil
	}
	return s.submit(ctx, report, snap)
}

// runDry 在完全不接触券商的前提下回显计划。
// 限价单缺少价格时无法给出可执行形态，提示换用 check/submit。
func (s *Submitter) runDry(report Report, p plan.TradePlan) (Report, error) {
	for i, o := range p.Orders {
		res := OrderResult{Index: i, Order: o, State: StateDrafted}
		if o.LimitPrice != nil {
			res.LimitPrice = *o.LimitPrice
		} else if o.IsLimit() {
			report.Results = append(report.Results, res)
			return report, ErrMissingLimitPrice
		}
		report.Results = append(report.Results, res)
	}
	return report, nil
}

// limitPriceFor 返回订单最终限价：显式给出的直接采用，
// 否则取参考价并按方向加缓冲（买向上、卖向下），保留 6 位小数。
func (s *Submitter) limitPriceFor(ctx context.Context, o plan.OrderSpec, contract broker.Contract) (float64, error) {
	if o.LimitPrice != nil {
		return *o.LimitPrice, nil
	}
	ref, err := s.pricer.Reference(ctx, contract)
	if err != nil {
		return 0, err
	}
	buffer := s.cfg.LimitBufferBps / 10000
	if o.NormalizedAction() == broker.ActionSell {
		buffer = -buffer
	}
	return roundTo(ref*(1+buffer), 6), nil
}

// submit 提交全部已通过预算检查的订单，等待结算窗口后回查状态。
func (s *Submitter) submit(ctx context.Context, report Report, snap account.Snapshot) (Report, error) {
	var submitErr error
	submitted := 0
	for i := range report.Results {
		res := &report.Results[i]
		if res.State != StateBudgetChecked {
			continue
		}
		ticket := broker.OrderTicket{
			Action:      res.Order.NormalizedAction(),
			Quantity:    res.Order.Quantity,
			OrderType:   "LMT",
			LimitPrice:  res.LimitPrice,
			TimeInForce: timeInForce(res.Order),
			Account:     snap.Account,
		}
		status, err := s.gw.PlaceOrder(ctx, res.Contract, ticket)
		if err != nil {
			res.State = StateRejected
			res.Reason = fmt.Sprintf("券商拒单: %v", err)
			submitErr = multierr.Append(submitErr,
				fmt.Errorf("%s 下单失败: %w", res.Order.Symbol, err))
			s.logger.Error("券商拒单",
				zap.String("symbol", res.Order.Symbol),
				zap.Error(err))
			continue
		}
		res.State = StateSubmitted
		res.BrokerOrderID = status.ID
		res.BrokerStatus = status.Status
		submitted++
		s.logger.Info("订单已提交",
			zap.String("symbol", res.Order.Symbol),
			zap.String("order_id", status.ID),
			zap.Float64("limit_price", res.LimitPrice))
	}
	report.Submitted = submitted > 0

	if submitted > 0 {
		s.settle(ctx, &report)
	}
	return report, submitErr
}

// settle 等待一个结算窗口后逐单回查券商状态，查询失败仅记告警。
func (s *Submitter) settle(ctx context.Context, report *Report) {
	timer := time.NewTimer(s.cfg.SettleWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	for i := range report.Results {
		res := &report.Results[i]
		if res.State != StateSubmitted || res.BrokerOrderID == "" {
			continue
		}
		status, err := s.gw.OrderStatus(ctx, res.BrokerOrderID)
		if err != nil {
			s.logger.Warn("回查订单状态失败",
				zap.String("order_id", res.BrokerOrderID),
				zap.Error(err))
			continue
		}
		res.BrokerStatus = status.Status
	}
}

func (s *Submitter) rejectionError(report Report) error {
	var err error
	for _, res := range report.Results {
		if res.State == StateRejected {
			err = multierr.Append(err,
				fmt.Errorf("订单 %d (%s): %s", res.Index, res.Order.Symbol, res.Reason))
		}
	}
	return fmt.Errorf("计划中存在被拒订单，未提交任何订单: %w", err)
}

// rejectAll 在计划级违规时把违规订单标记为拒绝。
// 自身无违规的订单保持 drafted 状态：它们通过了校验，
// 只是因为计划整体被拒而没有继续处理。
func rejectAll(orders []plan.OrderSpec, violations []Violation) []OrderResult {
	reasons := make(map[int][]string, len(violations))
	for _, v := range violations {
		reasons[v.Index] = append(reasons[v.Index], v.Reason)
	}
	results := make([]OrderResult, 0, len(orders))
	for i, o := range orders {
		res := OrderResult{Index: i, Order: o, State: StateDrafted}
		if rs, ok := reasons[i]; ok {
			res.State = StateRejected
			res.Reason = joinReasons(rs)
		}
		results = append(results, res)
	}
	return results
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}

func timeInForce(o plan.OrderSpec) string {
	if tif := plan.Normalize(o.TimeInForce); tif != "" {
		return tif
	}
	return "GTC"
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
