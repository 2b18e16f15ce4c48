package engine

import (
	"time"

	"orders-ai/internal/broker"
	"orders-ai/internal/plan"
)

// Mode 控制提交器行为。
type Mode string

const (
	// ModeDry 完全不接触券商，仅回显本地可确定的信息。
	ModeDry Mode = "dry"
	// ModeCheck 完成确认、定价与预算检查，但不触碰下单接口。
	ModeCheck Mode = "check"
	// ModeSubmit 在预算检查通过后真正下单。
	ModeSubmit Mode = "submit"
)

// OrderState 为单笔订单在提交器状态机中的位置。
type OrderState string

const (
	StateDrafted       OrderState = "drafted"
	StateQualified     OrderState = "qualified"
	StatePriced        OrderState = "priced"
	StateBudgetChecked OrderState = "budget_checked"
	StateSubmitted     OrderState = "submitted"
	StateRejected      OrderState = "rejected"
)

// OrderResult 为单笔订单走完状态机后的完整结果。
// Order 字段保留原始意图，仅可能被回填 LimitPrice。
type OrderResult struct {
	Index          int             `json:"index"`
	Order          plan.OrderSpec  `json:"order"`
	State          OrderState      `json:"state"`
	Reason         string          `json:"reason,omitempty"`
	Contract       broker.Contract `json:"contract,omitempty"`
	LimitPrice     float64         `json:"limit_price,omitempty"`
	BudgetNotional float64         `json:"budget_notional,omitempty"`
	BrokerOrderID  string          `json:"broker_order_id,omitempty"`
	BrokerStatus   string          `json:"broker_status,omitempty"`
}

// Report 为一次计划处理的机器可读结果，可直接序列化供上层审计或展示。
type Report struct {
	Mode        Mode          `json:"mode"`
	GeneratedAt time.Time     `json:"generated_at"`
	Currency    string        `json:"currency"`
	BudgetSafe  float64       `json:"budget_safe"`
	BudgetCap   float64       `json:"budget_cap"`
	TotalBuy    float64       `json:"total_buy"`
	Results     []OrderResult `json:"results"`
	Warnings    []string      `json:"warnings,omitempty"`
	Submitted   bool          `json:"submitted"`
}

// Rejected 统计被拒绝的订单数量。
func (r Report) Rejected() int {
	count := 0
	for _, res := range r.Results {
		if res.State == StateRejected {
			count++
		}
	}
	return count
}
