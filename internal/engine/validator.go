package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orders-ai/internal/account"
	"orders-ai/internal/broker"
	"orders-ai/internal/config"
	"orders-ai/internal/plan"
)

// Validator 对模型提出的交易计划做纯结构与持仓层面的校验。
// 校验不接触券商，全部依据同一份账户快照；任何违规都会导致整个计划被拒绝。
type Validator struct {
	cfg    config.EngineConfig
	logger *zap.Logger
}

// NewValidator 创建计划校验器。
func NewValidator(cfg config.EngineConfig, logger *zap.Logger) *Validator {
	return &Validator{cfg: cfg, logger: logger}
}

// ValidatePlan 收集计划中的全部违规后一次性返回：
// 先做不依赖快照的结构校验，再叠加保证金与持仓层面的校验。
// 空计划返回 ErrEmptyPlan；error 为全部违规的聚合，便于上层直接透传。
func (v *Validator) ValidatePlan(p plan.TradePlan, snap account.Snapshot) ([]Violation, error) {
	if len(p.Orders) == 0 {
		return nil, ErrEmptyPlan
	}

	violations := v.structural(p)
	pendingSells := snap.PendingSellQuantities()
	marginMode := snap.UsingMargin || snap.HasShortPositions()

	for i, o := range p.Orders {
		symbol := plan.Normalize(o.Symbol)
		if symbol == "" {
			continue
		}
		action := o.NormalizedAction()
		if marginMode && action == broker.ActionBuy {
			violations = append(violations, Violation{Index: i, Symbol: symbol, Reason: "账户处于保证金状态，仅允许卖出"})
		}
		if action == broker.ActionSell {
			if reason := v.checkSell(o, snap, pendingSells); reason != "" {
				violations = append(violations, Violation{Index: i, Symbol: symbol, Reason: reason})
			}
		}
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Index < violations[j].Index
	})
	return v.finish(p, violations)
}

// ValidateOrders 只做不依赖账户快照的结构校验，供离线回显使用。
func (v *Validator) ValidateOrders(p plan.TradePlan) ([]Violation, error) {
	if len(p.Orders) == 0 {
		return nil, ErrEmptyPlan
	}
	return v.finish(p, v.structural(p))
}

// structural 执行逐单结构校验：字段形态、允许清单与 ETF 黑名单。
func (v *Validator) structural(p plan.TradePlan) []Violation {
	secTypes := v.cfg.NormalizedSecurityTypes()
	exchanges := v.cfg.NormalizedExchanges()
	denylist := v.cfg.NormalizedETFDenylist()
	allowlist := v.cfg.NormalizedETFAllowlist()

	var violations []Violation
	add := func(i int, symbol, reason string) {
		violations = append(violations, Violation{Index: i, Symbol: symbol, Reason: reason})
	}

	for i, o := range p.Orders {
		symbol := plan.Normalize(o.Symbol)
		action := o.NormalizedAction()
		secType := o.NormalizedSecurityType()

		if symbol == "" {
			add(i, symbol, "缺少合约代码")
			continue
		}
		if action != broker.ActionBuy && action != broker.ActionSell {
			add(i, symbol, fmt.Sprintf("不支持的方向 %q，仅允许 BUY/SELL", o.Action))
		}
		if !plan.ValidNumber(o.Quantity) || o.Quantity <= 0 {
			add(i, symbol, fmt.Sprintf("数量 %v 必须为正数", o.Quantity))
		} else if o.Quantity != math.Trunc(o.Quantity) {
			add(i, symbol, fmt.Sprintf("数量 %v 必须为整数股", o.Quantity))
		}
		if !o.IsLimit() {
			add(i, symbol, fmt.Sprintf("不支持的订单类型 %q，仅允许限价单", o.OrderType))
		}
		if o.LimitPrice != nil && (!plan.ValidNumber(*o.LimitPrice) || *o.LimitPrice <= 0) {
			add(i, symbol, fmt.Sprintf("限价 %v 必须为正数", *o.LimitPrice))
		}
		if plan.Normalize(o.Currency) == "" {
			add(i, symbol, "缺少币种")
		}
		if _, ok := secTypes[secType]; !ok {
			add(i, symbol, fmt.Sprintf("不支持的证券类型 %q", secType))
		}
		if _, ok := exchanges[plan.Normalize(o.Exchange)]; !ok {
			add(i, symbol, fmt.Sprintf("不支持的交易所 %q，留空走智能路由", o.Exchange))
		}
		if _, denied := denylist[symbol]; denied {
			if _, allowed := allowlist[symbol]; !allowed {
				add(i, symbol, fmt.Sprintf("%s 位于 ETF 黑名单，禁止交易", symbol))
			}
		}
	}
	return violations
}

func (v *Validator) finish(p plan.TradePlan, violations []Violation) ([]Violation, error) {
	if len(violations) == 0 {
		return nil, nil
	}
	var err error
	for _, violation := range violations {
		err = multierr.Append(err, violation)
	}
	v.logger.Warn("计划校验未通过",
		zap.Int("orders", len(p.Orders)),
		zap.Int("violations", len(violations)))
	return violations, err
}

// checkSell 确认卖出订单对应唯一持仓且数量不超过可卖余量。
// 可卖余量 = 持仓数量 − 已挂在券商侧的同标的卖出数量。
func (v *Validator) checkSell(o plan.OrderSpec, snap account.Snapshot, pendingSells map[[4]string]float64) string {
	symbol := plan.Normalize(o.Symbol)
	matches := findPositions(snap.Positions, o)
	if len(matches) == 0 {
		return fmt.Sprintf("账户中没有 %s 的持仓，无法卖出", symbol)
	}
	if len(matches) > 1 {
		exchanges := make([]string, 0, len(matches))
		for _, p := range matches {
			ex := plan.Normalize(p.Exchange)
			if ex == "" {
				ex = broker.ExchangeSmart
			}
			exchanges = append(exchanges, ex)
		}
		sort.Strings(exchanges)
		return fmt.Sprintf("%s 匹配到多个持仓（交易所: %s），请补充币种/类型/交易所以消歧",
			symbol, strings.Join(exchanges, ", "))
	}

	held := matches[0].Quantity
	if held <= 0 {
		return fmt.Sprintf("%s 持仓为 %v，非多头持仓不可卖出", symbol, held)
	}
	pending := pendingSells[sellKey(o, matches[0])]
	sellable := held - pending
	if o.Quantity > sellable+quantityTolerance {
		return fmt.Sprintf("卖出数量 %v 超过可卖 %v（持仓 %v，已挂卖出 %v）",
			o.Quantity, sellable, held, pending)
	}
	return ""
}

// findPositions 按 symbol 过滤持仓，再用订单显式给出的字段逐层收窄。
// 交易所过滤仅在持仓本身记录了交易所时生效。
func findPositions(positions []account.Position, o plan.OrderSpec) []account.Position {
	symbol := plan.Normalize(o.Symbol)
	var matches []account.Position
	for _, p := range positions {
		if plan.Normalize(p.Symbol) != symbol && plan.Normalize(p.LocalSymbol) != symbol {
			continue
		}
		matches = append(matches, p)
	}

	if ccy := plan.Normalize(o.Currency); ccy != "" {
		matches = filterPositions(matches, func(p account.Position) bool {
			return plan.Normalize(p.Currency) == ccy
		})
	}
	if st := plan.Normalize(o.SecurityType); st != "" {
		want := stockAlias(st)
		matches = filterPositions(matches, func(p account.Position) bool {
			return stockAlias(plan.Normalize(p.SecurityType)) == want
		})
	}
	// 按字面交易所过滤（含 SMART），持仓未记录交易所的不淘汰。
	if ex := plan.Normalize(o.Exchange); ex != "" {
		matches = filterPositions(matches, func(p account.Position) bool {
			pex := plan.Normalize(p.Exchange)
			return pex == "" || pex == ex
		})
	}
	return matches
}

func filterPositions(positions []account.Position, keep func(account.Position) bool) []account.Position {
	out := positions[:0]
	for _, p := range positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// sellKey 生成与快照挂单聚合一致的键，ETF 与股票在持仓层面同键。
func sellKey(o plan.OrderSpec, pos account.Position) [4]string {
	ccy := plan.Normalize(o.Currency)
	if ccy == "" {
		ccy = plan.Normalize(pos.Currency)
	}
	st := stockAlias(o.NormalizedSecurityType())
	return [4]string{plan.Normalize(o.Symbol), ccy, st, o.NormalizedExchange()}
}

func stockAlias(secType string) string {
	if secType == broker.SecTypeETF {
		return broker.SecTypeStock
	}
	return secType
}

const quantityTolerance = 1e-9
