package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMarketData 表示在等待预算内未能取得任何可用报价。
	// 引擎绝不会用陈旧缓存价格顶替。
	ErrNoMarketData = errors.New("engine: no market data")
	// ErrNoFXRate 表示无法取得实时汇率；预算类计算不允许猜测汇率。
	ErrNoFXRate = errors.New("engine: no fx rate")
	// ErrEmptyPlan 表示计划中没有任何订单。
	ErrEmptyPlan = errors.New("engine: plan contains no orders")
	// ErrMissingLimitPrice 表示 dry 模式下存在未定价的限价单。
	ErrMissingLimitPrice = errors.New("engine: limit order without price requires check or submit mode")
)

// Violation 描述单笔订单的一条校验违规。
// 一个计划中的所有违规会被一次性收集上报，而不是在第一条就停下。
type Violation struct {
	Index  int    `json:"index"`
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("订单 %d (%s): %s", v.Index, v.Symbol, v.Reason)
}

// BudgetExceededError 表示重新计算后的买入总额超过预算上限。
// 该错误作用于整个计划，任何一笔订单都不会被提交。
type BudgetExceededError struct {
	TotalBuy float64
	Cap      float64
	Budget   float64
	Currency string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("买入总额 %.2f %s 超过预算上限 %.2f %s (预算 %.2f %s)",
		e.TotalBuy, e.Currency, e.Cap, e.Currency, e.Budget, e.Currency)
}
