package account

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"orders-ai/internal/broker"
	"orders-ai/internal/config"
	"orders-ai/internal/plan"
)

// 账户汇总中关心的 tag 名称。AvailableFunds 缺失是致命配置问题，
// TotalCashValue 与 NetLiquidation 允许缺失并按"未知"处理。
const (
	TagNetLiquidation = "NetLiquidation"
	TagTotalCash      = "TotalCashValue"
	TagAvailableFunds = "AvailableFunds"
)

var (
	// ErrBudgetTagMissing 表示账户汇总缺少必需的资金 tag，运行必须立即终止，
	// 绝不能退化为一个无上限或猜测出来的预算。
	ErrBudgetTagMissing = errors.New("account: required budget tag missing")
	// ErrCurrencyUnset 表示预算币种未配置。
	ErrCurrencyUnset = errors.New("account: budget currency unset")
)

// Position 为归一化后的持仓视图。
type Position struct {
	Account       string  `json:"account,omitempty"`
	Symbol        string  `json:"symbol"`
	LocalSymbol   string  `json:"local_symbol,omitempty"`
	SecurityType  string  `json:"security_type"`
	Exchange      string  `json:"exchange,omitempty"`
	Currency      string  `json:"currency"`
	Quantity      float64 `json:"position"`
	AvgCost       float64 `json:"avg_cost"`
	MarketPrice   float64 `json:"market_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	PnLPercent    float64 `json:"pnl_percent"`
}

// Snapshot 为一次运行中账户的唯一真实视图。
// 在构建完成后不再修改，所有校验与预算判断都基于同一份快照。
type Snapshot struct {
	Account        string                `json:"account"`
	AsOf           time.Time             `json:"as_of"`
	NetLiquidation *float64              `json:"net_liquidation"`
	TotalCash      *float64              `json:"total_cash"`
	AvailableFunds float64               `json:"available_funds"`
	BudgetSafe     float64               `json:"budget_safe"`
	BudgetEUR      float64               `json:"budget_eur"`
	UsingMargin    bool                  `json:"using_margin"`
	Currency       string                `json:"currency"`
	Positions      []Position            `json:"positions"`
	PendingOrders  []broker.PendingOrder `json:"pending_orders,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
}

// HasShortPositions 判断是否存在空头持仓。
func (s Snapshot) HasShortPositions() bool {
	for _, p := range s.Positions {
		if p.Quantity < 0 {
			return true
		}
	}
	return false
}

// PendingSellQuantities 按 (symbol, currency, security_type, exchange) 聚合挂单中的卖出数量。
func (s Snapshot) PendingSellQuantities() map[[4]string]float64 {
	out := make(map[[4]string]float64)
	for _, o := range s.PendingOrders {
		if plan.Normalize(o.Action) != broker.ActionSell {
			continue
		}
		if !plan.ValidNumber(o.Quantity) || o.Quantity <= 0 {
			continue
		}
		out[pendingKey(o)] += o.Quantity
	}
	return out
}

func pendingKey(o broker.PendingOrder) [4]string {
	st := plan.Normalize(o.SecurityType)
	if st == "" {
		st = broker.SecTypeStock
	}
	ex := plan.Normalize(o.Exchange)
	if ex == "" {
		ex = broker.ExchangeSmart
	}
	return [4]string{plan.Normalize(o.Symbol), plan.Normalize(o.Currency), st, ex}
}

// Converter 将任意币种的金额换算为预算币种。
// approx 为 true 表示使用了配置中的近似汇率而非实时报价。
type Converter interface {
	ToBudgetApprox(ctx context.Context, amount float64, currency string) (converted float64, approx bool, err error)
}

// Builder 从券商网关构建账户快照。
type Builder struct {
	gw     broker.Gateway
	cfg    config.EngineConfig
	fx     Converter
	logger *zap.Logger
}

// NewBuilder 创建快照构建器。
func NewBuilder(gw broker.Gateway, cfg config.EngineConfig, fx Converter, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{gw: gw, cfg: cfg, fx: fx, logger: logger}
}

// Build 读取账户汇总、持仓与挂单并派生安全预算。
func (b *Builder) Build(ctx context.Context) (Snapshot, error) {
	budgetCurrency := plan.Normalize(b.cfg.BudgetCurrency)
	if budgetCurrency == "" {
		return Snapshot{}, ErrCurrencyUnset
	}

	summary, err := b.gw.AccountSummary(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("account: 获取账户汇总失败: %w", err)
	}

	// 汇总金额以账户基准币种计价，币种取自 tag 本身而非配置。
	currency := summaryCurrency(summary, TagAvailableFunds)
	if currency == "" {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrBudgetTagMissing, TagAvailableFunds)
	}

	available, ok := summaryValue(summary, TagAvailableFunds, currency)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s/%s", ErrBudgetTagMissing, TagAvailableFunds, currency)
	}

	snapshot := Snapshot{
		AsOf:           time.Now().UTC().Truncate(time.Second),
		AvailableFunds: available,
		Currency:       currency,
	}

	if v, ok := summaryValue(summary, TagNetLiquidation, currency); ok {
		snapshot.NetLiquidation = &v
	}
	totalCash, totalCashKnown := summaryValue(summary, TagTotalCash, currency)
	if totalCashKnown {
		v := totalCash
		snapshot.TotalCash = &v
	}
	for _, item := range summary {
		if item.Account != "" {
			snapshot.Account = item.Account
			break
		}
	}

	rawPositions, err := b.gw.Positions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("account: 获取持仓失败: %w", err)
	}
	snapshot.Positions = make([]Position, 0, len(rawPositions))
	for _, p := range rawPositions {
		snapshot.Positions = append(snapshot.Positions, normalizePosition(p))
	}

	pending, err := b.gw.PendingOrders(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("account: 获取挂单失败: %w", err)
	}
	snapshot.PendingOrders = pending

	snapshot.UsingMargin = (totalCashKnown && totalCash < 0) || snapshot.HasShortPositions()
	if totalCashKnown && totalCash < 0 {
		b.logger.Warn("账户现金为负，已进入保证金状态",
			zap.Float64("total_cash", totalCash),
			zap.String("currency", currency),
		)
	}
	if snapshot.HasShortPositions() {
		b.logger.Warn("检测到空头持仓，系统为只做多配置")
	}

	raw := rawBudget(totalCash, totalCashKnown, available)

	crossCurrency := currency != budgetCurrency
	if crossCurrency && b.fx == nil {
		return Snapshot{}, fmt.Errorf("account: 账户币种 %s 与预算币种 %s 不同且无汇率转换器", currency, budgetCurrency)
	}

	pendingBuy, warnings, err := b.pendingBuyNotional(ctx, pending, budgetCurrency)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Warnings = warnings

	// raw 以账户币种计价，挂单合计在预算币种；
	// 先折回账户币种再相减，避免混合单位。
	pendingAccount := pendingBuy
	if crossCurrency && pendingBuy > 0 {
		unit, _, err := b.fx.ToBudgetApprox(ctx, 1, currency)
		if err != nil {
			return Snapshot{}, fmt.Errorf("account: 预算换算失败 (%s→%s): %w", currency, budgetCurrency, err)
		}
		if unit <= 0 {
			return Snapshot{}, fmt.Errorf("account: 无效汇率 %v (%s→%s)", unit, currency, budgetCurrency)
		}
		pendingAccount = pendingBuy / unit
	}

	snapshot.BudgetSafe = math.Max(0, raw-pendingAccount)
	snapshot.BudgetEUR = snapshot.BudgetSafe
	if crossCurrency {
		converted, approx, err := b.fx.ToBudgetApprox(ctx, snapshot.BudgetSafe, currency)
		if err != nil {
			return Snapshot{}, fmt.Errorf("account: 预算换算失败 (%s→%s): %w", currency, budgetCurrency, err)
		}
		snapshot.BudgetEUR = converted
		if approx {
			warning := fmt.Sprintf("预算使用了近似汇率 (%s→%s)，金额仅为估算", currency, budgetCurrency)
			snapshot.Warnings = append(snapshot.Warnings, warning)
			b.logger.Warn("预算换算使用了近似汇率",
				zap.String("from", currency),
				zap.String("to", budgetCurrency),
			)
		}
	}

	b.logger.Info("账户快照构建完成",
		zap.Float64("available_funds", available),
		zap.Float64("budget_safe", snapshot.BudgetSafe),
		zap.Float64("pending_buy_notional", pendingBuy),
		zap.Bool("using_margin", snapshot.UsingMargin),
		zap.Int("positions", len(snapshot.Positions)),
		zap.Int("pending_orders", len(pending)),
	)

	return snapshot, nil
}

// rawBudget 取现金与可用资金中更保守的一方：
// 现金为正时取 min(现金, 可用资金)；现金为负直接归零；现金未知时退回可用资金。
func rawBudget(totalCash float64, totalCashKnown bool, available float64) float64 {
	if totalCashKnown && totalCash > 0 {
		if available > 0 {
			return math.Min(totalCash, available)
		}
		return totalCash
	}
	if available > 0 {
		if !totalCashKnown || totalCash >= 0 {
			return available
		}
	}
	return 0
}

// pendingBuyNotional 合计挂单中买入委托占用的名义金额，统一换算到预算币种。
// 换算失败时退回配置的近似汇率，并把该近似明确记录为告警。
func (b *Builder) pendingBuyNotional(ctx context.Context, pending []broker.PendingOrder, budgetCurrency string) (float64, []string, error) {
	var total float64
	var warnings []string

	for _, o := range pending {
		if plan.Normalize(o.Action) != broker.ActionBuy {
			continue
		}
		if !plan.ValidNumber(o.Quantity) || o.Quantity <= 0 || !plan.ValidNumber(o.LimitPrice) || o.LimitPrice <= 0 {
			continue
		}
		notional := o.Quantity * o.LimitPrice
		converted := notional
		if ccy := plan.Normalize(o.Currency); ccy != "" && ccy != budgetCurrency {
			if b.fx == nil {
				return 0, nil, fmt.Errorf("account: 挂单 %s 币种 %s 与预算币种 %s 不同且无汇率转换器", o.Symbol, ccy, budgetCurrency)
			}
			value, approx, err := b.fx.ToBudgetApprox(ctx, notional, o.Currency)
			if err != nil {
				return 0, nil, fmt.Errorf("account: 挂单 %s 金额换算失败: %w", o.Symbol, err)
			}
			if approx {
				warning := fmt.Sprintf("挂单 %s 使用了近似汇率 (%s→%s)，预算仅为估算",
					o.Symbol, ccy, budgetCurrency)
				warnings = append(warnings, warning)
				b.logger.Warn("预算计算使用了近似汇率",
					zap.String("symbol", o.Symbol),
					zap.String("currency", o.Currency),
				)
			}
			converted = value
		}
		total += converted
	}

	return total, warnings, nil
}

func normalizePosition(p broker.Position) Position {
	return Position{
		Account:       p.Account,
		Symbol:        plan.Normalize(p.Symbol),
		LocalSymbol:   p.LocalSymbol,
		SecurityType:  plan.Normalize(p.SecurityType),
		Exchange:      plan.Normalize(p.Exchange),
		Currency:      plan.Normalize(p.Currency),
		Quantity:      p.Quantity,
		AvgCost:       p.AvgCost,
		MarketPrice:   p.MarketPrice,
		MarketValue:   p.MarketValue,
		UnrealizedPnL: p.UnrealizedPnL,
		RealizedPnL:   p.RealizedPnL,
		PnLPercent:    PnLPercent(p.MarketPrice, p.AvgCost),
	}
}

// PnLPercent 计算相对成本的盈亏百分比，保留两位小数；成本为 0 时返回 0。
func PnLPercent(marketPrice, avgCost float64) float64 {
	if !plan.ValidNumber(marketPrice) || !plan.ValidNumber(avgCost) || avgCost == 0 {
		return 0
	}
	return math.Round((marketPrice-avgCost)/avgCost*10000) / 100
}

func summaryCurrency(items []broker.SummaryItem, tag string) string {
	for _, item := range items {
		if item.Tag == tag {
			return plan.Normalize(item.Currency)
		}
	}
	return ""
}

func summaryValue(items []broker.SummaryItem, tag, currency string) (float64, bool) {
	for _, item := range items {
		if item.Tag == tag && plan.Normalize(item.Currency) == currency {
			if plan.ValidNumber(item.Value) {
				return item.Value, true
			}
		}
	}
	return 0, false
}
