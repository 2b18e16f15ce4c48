package plan

import (
	"math"
	"strings"
)

// OrderSpec 为提案端产出的单笔订单意图。所有字段均为不可信输入，
// 引擎只允许回填缺失的 LimitPrice，其余字段不做任何修补。
type OrderSpec struct {
	Symbol       string   `json:"symbol"`
	SecurityType string   `json:"security_type,omitempty"`
	Action       string   `json:"action"`
	Quantity     float64  `json:"quantity"`
	OrderType    string   `json:"order_type"`
	LimitPrice   *float64 `json:"limit_price,omitempty"`
	Currency     string   `json:"currency"`
	Exchange     string   `json:"exchange,omitempty"`
	TimeInForce  string   `json:"time_in_force,omitempty"`
	Rationale    string   `json:"rationale,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// Source 为提案引用的资料来源。
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// TradePlan 为提案端返回的完整交易计划。
// EstimatedTotalEUR 仅供参考，引擎会用实际解析出的价格重新计算买入总额。
type TradePlan struct {
	Summary           string      `json:"summary"`
	KeyPoints         []string    `json:"key_points,omitempty"`
	BudgetEUR         float64     `json:"budget_eur"`
	EstimatedTotalEUR float64     `json:"estimated_total_eur"`
	Orders            []OrderSpec `json:"orders"`
	Sources           []Source    `json:"sources,omitempty"`
	Disclaimer        string      `json:"disclaimer,omitempty"`
}

// NormalizedAction 返回大写去空格后的方向。
func (o OrderSpec) NormalizedAction() string {
	return Normalize(o.Action)
}

// NormalizedOrderType 返回大写去空格后的订单类型。
func (o OrderSpec) NormalizedOrderType() string {
	return Normalize(o.OrderType)
}

// NormalizedSecurityType 返回证券类型，缺省按股票处理。
func (o OrderSpec) NormalizedSecurityType() string {
	st := Normalize(o.SecurityType)
	if st == "" {
		return "STK"
	}
	return st
}

// NormalizedExchange 返回交易所，缺省按智能路由处理。
func (o OrderSpec) NormalizedExchange() string {
	ex := Normalize(o.Exchange)
	if ex == "" {
		return "SMART"
	}
	return ex
}

// IsLimit 判断是否为限价单（LMT 与 LIMIT 两种写法均接受）。
func (o OrderSpec) IsLimit() bool {
	t := o.NormalizedOrderType()
	return t == "LMT" || t == "LIMIT"
}

// Identity 返回用于对账持仓与挂单的四元组标识。
func (o OrderSpec) Identity() [4]string {
	return [4]string{
		Normalize(o.Symbol),
		Normalize(o.Currency),
		o.NormalizedSecurityType(),
		o.NormalizedExchange(),
	}
}

// Normalize 统一做大写去空格，空输入返回空串。
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

// ValidNumber 判断数值是否可用于价格或数量计算。
func ValidNumber(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
