package broker

import "time"

const (
	// ActionBuy / ActionSell 为订单方向。
	ActionBuy  = "BUY"
	ActionSell = "SELL"

	// SecTypeStock 等为支持的证券类型；SecTypeForex 仅用于汇率询价。
	SecTypeStock = "STK"
	SecTypeETF   = "ETF"
	SecTypeForex = "CASH"

	// ExchangeSmart 表示智能路由，由券商选择成交场所。
	ExchangeSmart = "SMART"
)

// SummaryItem 为账户汇总中的一条 tag/currency 数值。
// 某个 tag 缺失时列表中不出现对应条目，调用方据此判断"未知"。
type SummaryItem struct {
	Account  string
	Tag      string
	Currency string
	Value    float64
}

// Position 为券商报告的一条持仓。Quantity 为带符号数量，负数代表空头。
type Position struct {
	Account       string
	Symbol        string
	LocalSymbol   string
	SecurityType  string
	Exchange      string
	Currency      string
	Quantity      float64
	AvgCost       float64
	MarketPrice   float64
	MarketValue   float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

// PendingOrder 为当前挂在券商侧、尚未成交的委托。
type PendingOrder struct {
	ID           string
	Symbol       string
	SecurityType string
	Exchange     string
	Currency     string
	Action       string
	Quantity     float64
	LimitPrice   float64
	Status       string
}

// ContractSpec 为抽象的合约描述，尚未经过券商确认。
type ContractSpec struct {
	Symbol       string
	SecurityType string
	Exchange     string
	Currency     string
}

// Contract 为券商确认后的可交易合约。
type Contract struct {
	ID           string
	Symbol       string
	SecurityType string
	Exchange     string
	Currency     string
}

// Quote 为一次行情采样。缺失的字段为 0 或 NaN，由调用方按回退链取值。
type Quote struct {
	Symbol string
	Last   float64
	Close  float64
	Bid    float64
	Ask    float64
	At     time.Time
}

// OrderTicket 描述一笔待提交的委托。
type OrderTicket struct {
	Action      string
	Quantity    float64
	OrderType   string
	LimitPrice  float64
	TimeInForce string
	Account     string
}

// OrderStatus 为券商返回的委托标识与状态。
type OrderStatus struct {
	ID             string
	Status         string
	FilledQuantity float64
	AvgFillPrice   float64
}
