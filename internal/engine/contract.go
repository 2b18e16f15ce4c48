package engine

import (
	"orders-ai/internal/broker"
	"orders-ai/internal/plan"
)

// contractSpecFor 把订单意图翻译为待确认的合约描述。
// ETF 在券商接口层面按股票合约处理，交易所缺省走智能路由。
func contractSpecFor(o plan.OrderSpec) broker.ContractSpec {
	secType := o.NormalizedSecurityType()
	if secType == broker.SecTypeETF {
		secType = broker.SecTypeStock
	}
	return broker.ContractSpec{
		Symbol:       plan.Normalize(o.Symbol),
		SecurityType: secType,
		Exchange:     o.NormalizedExchange(),
		Currency:     plan.Normalize(o.Currency),
	}
}
