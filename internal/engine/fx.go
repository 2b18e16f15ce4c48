package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"orders-ai/internal/broker"
	"orders-ai/internal/config"
	"orders-ai/internal/plan"
)

// FXConverter 通过券商外汇对报价把任意币种金额换算为预算币种。
// 汇率按运行周期缓存：同一次运行内同一币种只询价一次。
type FXConverter struct {
	gw     broker.Gateway
	cfg    config.EngineConfig
	logger *zap.Logger

	mu    sync.Mutex
	rates map[string]float64
}

// NewFXConverter 创建汇率转换器。
func NewFXConverter(gw broker.Gateway, cfg config.EngineConfig, logger *zap.Logger) *FXConverter {
	return &FXConverter{
		gw:     gw,
		cfg:    cfg,
		logger: logger,
		rates:  make(map[string]float64),
	}
}

// Rate 返回 1 单位预算币种兑 currency 的实时汇率。
// 例如预算币种为 EUR、currency 为 USD 时，返回 EURUSD 报价。
func (c *FXConverter) Rate(ctx context.Context, currency string) (float64, error) {
	budget := plan.Normalize(c.cfg.BudgetCurrency)
	currency = plan.Normalize(currency)
	if currency == "" || currency == budget {
		return 1, nil
	}

	c.mu.Lock()
	cached, ok := c.rates[currency]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	contract, err := c.gw.Qualify(ctx, broker.ContractSpec{
		Symbol:       budget,
		SecurityType: broker.SecTypeForex,
		Currency:     currency,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s 合约确认失败: %v", ErrNoFXRate, budget, currency, err)
	}

	quote, err := c.gw.Quote(ctx, contract, c.cfg.MarketDataWait)
	if err != nil {
		return 0, fmt.Errorf("%w: %s%s 询价失败: %v", ErrNoFXRate, budget, currency, err)
	}
	rate, ok := referencePrice(quote)
	if !ok {
		return 0, fmt.Errorf("%w: %s%s 报价为空", ErrNoFXRate, budget, currency)
	}

	c.mu.Lock()
	c.rates[currency] = rate
	c.mu.Unlock()

	c.logger.Debug("汇率已缓存",
		zap.String("pair", budget+currency),
		zap.Float64("rate", rate))
	return rate, nil
}

// ToBudget 将 currency 金额严格换算为预算币种；取不到实时汇率即失败。
// 任何参与预算检查的金额都必须走这条路径。
func (c *FXConverter) ToBudget(ctx context.Context, amount float64, currency string) (float64, error) {
	rate, err := c.Rate(ctx, currency)
	if err != nil {
		return 0, err
	}
	return amount / rate, nil
}

// ToBudgetApprox 在实时汇率不可用时退回配置中的近似汇率。
// 仅用于快照中的参考性金额；approx 为 true 时调用方必须显式告警。
func (c *FXConverter) ToBudgetApprox(ctx context.Context, amount float64, currency string) (float64, bool, error) {
	converted, err := c.ToBudget(ctx, amount, currency)
	if err == nil {
		return converted, false, nil
	}

	normalized := plan.Normalize(currency)
	rate, ok := c.cfg.FallbackFXRates[normalized]
	if !ok || rate <= 0 {
		return 0, false, err
	}
	c.logger.Warn("实时汇率不可用，使用配置近似汇率",
		zap.String("currency", normalized),
		zap.Float64("rate", rate),
		zap.Error(err))
	return amount / rate, true, nil
}
