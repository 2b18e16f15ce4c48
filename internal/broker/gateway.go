package broker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotQualified 表示券商无法将合约描述映射为唯一可交易合约。
	ErrNotQualified = errors.New("broker: contract not qualified")
	// ErrUnsupported 表示该网关实现不支持此类合约（如股票券商上的外汇对）。
	ErrUnsupported = errors.New("broker: contract type unsupported")
)

// Gateway 为引擎依赖的券商能力接口。
// 实现必须保证每个调用在 ctx 或显式 wait 约束内返回，不得无限阻塞。
type Gateway interface {
	// AccountSummary 返回账户汇总（现金、可用资金、净清算价值等 tag）。
	AccountSummary(ctx context.Context) ([]SummaryItem, error)
	// Positions 返回当前全部持仓。
	Positions(ctx context.Context) ([]Position, error)
	// PendingOrders 返回挂在券商侧的未成交委托。
	PendingOrders(ctx context.Context) ([]PendingOrder, error)
	// Qualify 将抽象合约描述确认为唯一可交易合约；失败返回 ErrNotQualified。
	Qualify(ctx context.Context, spec ContractSpec) (Contract, error)
	// Quote 订阅行情并在 wait 预算内返回一次采样；随后必须释放订阅。
	Quote(ctx context.Context, contract Contract, wait time.Duration) (Quote, error)
	// PlaceOrder 提交一笔委托并返回券商分配的标识。
	PlaceOrder(ctx context.Context, contract Contract, ticket OrderTicket) (OrderStatus, error)
	// OrderStatus 查询委托的最新状态。
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
}
