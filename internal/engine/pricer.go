package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orders-ai/internal/broker"
	"orders-ai/internal/config"
	"orders-ai/internal/plan"
)

// PriceResolver 为已确认合约解析参考价。
type PriceResolver struct {
	gw     broker.Gateway
	cfg    config.EngineConfig
	logger *zap.Logger
}

// NewPriceResolver 创建参考价解析器。
func NewPriceResolver(gw broker.Gateway, cfg config.EngineConfig, logger *zap.Logger) *PriceResolver {
	return &PriceResolver{gw: gw, cfg: cfg, logger: logger}
}

// Reference 在等待预算内取一次行情并按回退链取参考价：
// 最新成交价 → 收盘价 → 买卖中间价 → 买价 → 卖价。
// 全部缺失时返回 ErrNoMarketData，绝不使用缓存或猜测价格。
func (r *PriceResolver) Reference(ctx context.Context, contract broker.Contract) (float64, error) {
	quote, err := r.gw.Quote(ctx, contract, r.cfg.MarketDataWait)
	if err != nil {
		return 0, fmt.Errorf("%w: %s 询价失败: %v", ErrNoMarketData, contract.Symbol, err)
	}
	price, ok := referencePrice(quote)
	if !ok {
		return 0, fmt.Errorf("%w: %s 无任何可用报价", ErrNoMarketData, contract.Symbol)
	}
	r.logger.Debug("参考价已解析",
		zap.String("symbol", contract.Symbol),
		zap.Float64("price", price))
	return price, nil
}

// referencePrice 按回退链从一次行情采样中取出可用价格。
func referencePrice(q broker.Quote) (float64, bool) {
	if usable(q.Last) {
		return q.Last, true
	}
	if usable(q.Close) {
		return q.Close, true
	}
	if usable(q.Bid) && usable(q.Ask) {
		return (q.Bid + q.Ask) / 2, true
	}
	if usable(q.Bid) {
		return q.Bid, true
	}
	if usable(q.Ask) {
		return q.Ask, true
	}
	return 0, false
}

func usable(price float64) bool {
	return plan.ValidNumber(price) && price > 0
}
