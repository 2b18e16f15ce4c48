// Package alpaca 把 Alpaca 交易与行情接口适配为通用券商网关。
// Alpaca 仅覆盖美股美元资产：外汇对返回 broker.ErrUnsupported，
// 非 USD 合约返回 broker.ErrNotQualified，由上层决定回退策略。
package alpaca

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orders-ai/internal/broker"
	"orders-ai/internal/config"
)

const paperBaseURL = "https://paper-api.alpaca.markets"

// Gateway 实现 broker.Gateway。
type Gateway struct {
	trade  *alpaca.Client
	md     *marketdata.Client
	cfg    config.BrokerConfig
	logger *zap.Logger
}

var _ broker.Gateway = (*Gateway)(nil)

// New 根据配置创建 Alpaca 网关。
func New(cfg config.BrokerConfig, logger *zap.Logger) *Gateway {
	baseURL := cfg.BaseURL
	if baseURL == "" && cfg.UsePaper {
		baseURL = paperBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		trade: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   baseURL,
		}),
		md: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.DataURL,
		}),
		cfg:    cfg,
		logger: logger,
	}
}

// AccountSummary 把 Alpaca 账户字段映射为通用汇总 tag。
func (g *Gateway) AccountSummary(ctx context.Context) ([]broker.SummaryItem, error) {
	acct, err := g.trade.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("alpaca: 获取账户失败: %w", err)
	}

	items := []broker.SummaryItem{
		{
			Account:  acct.AccountNumber,
			Tag:      "NetLiquidation",
			Currency: acct.Currency,
			Value:    acct.Equity.InexactFloat64(),
		},
		{
			Account:  acct.AccountNumber,
			Tag:      "TotalCashValue",
			Currency: acct.Currency,
			Value:    acct.Cash.InexactFloat64(),
		},
		{
			Account:  acct.AccountNumber,
			Tag:      "AvailableFunds",
			Currency: acct.Currency,
			Value:    acct.NonMarginBuyingPower.InexactFloat64(),
		},
	}
	return items, nil
}

// Positions 返回当前持仓；空头以负数量表示。
func (g *Gateway) Positions(ctx context.Context) ([]broker.Position, error) {
	positions, err := g.trade.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca: 获取持仓失败: %w", err)
	}

	out := make([]broker.Position, 0, len(positions))
	for _, p := range positions {
		qty := p.Qty.InexactFloat64()
		if strings.EqualFold(p.Side, "short") && qty > 0 {
			qty = -qty
		}
		out = append(out, broker.Position{
			Symbol:        p.Symbol,
			SecurityType:  broker.SecTypeStock,
			Exchange:      p.Exchange,
			Currency:      "USD",
			Quantity:      qty,
			AvgCost:       p.AvgEntryPrice.InexactFloat64(),
			MarketPrice:   derefFloat(p.CurrentPrice),
			MarketValue:   derefFloat(p.MarketValue),
			UnrealizedPnL: derefFloat(p.UnrealizedPL),
		})
	}
	return out, nil
}

// PendingOrders 返回未成交委托。
func (g *Gateway) PendingOrders(ctx context.Context) ([]broker.PendingOrder, error) {
	orders, err := g.trade.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  500,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca: 获取挂单失败: %w", err)
	}

	out := make([]broker.PendingOrder, 0, len(orders))
	for _, o := range orders {
		qty := 0.0
		if o.Qty != nil {
			qty = o.Qty.InexactFloat64()
		}
		out = append(out, broker.PendingOrder{
			ID:           o.ID,
			Symbol:       o.Symbol,
			SecurityType: broker.SecTypeStock,
			Currency:     "USD",
			Action:       strings.ToUpper(string(o.Side)),
			Quantity:     qty,
			LimitPrice:   derefFloat(o.LimitPrice),
			Status:       string(o.Status),
		})
	}
	return out, nil
}

// Qualify 确认合约可交易。外汇对与非美元合约在此直接出局。
func (g *Gateway) Qualify(ctx context.Context, spec broker.ContractSpec) (broker.Contract, error) {
	if spec.SecurityType == broker.SecTypeForex {
		return broker.Contract{}, fmt.Errorf("%w: 外汇对 %s%s", broker.ErrUnsupported, spec.Symbol, spec.Currency)
	}
	if spec.Currency != "" && spec.Currency != "USD" {
		return broker.Contract{}, fmt.Errorf("%w: 不支持币种 %s", broker.ErrNotQualified, spec.Currency)
	}

	asset, err := g.trade.GetAsset(spec.Symbol)
	if err != nil {
		return broker.Contract{}, fmt.Errorf("%w: %s: %v", broker.ErrNotQualified, spec.Symbol, err)
	}
	if !asset.Tradable {
		return broker.Contract{}, fmt.Errorf("%w: %s 不可交易", broker.ErrNotQualified, spec.Symbol)
	}

	return broker.Contract{
		ID:           asset.ID,
		Symbol:       asset.Symbol,
		SecurityType: spec.SecurityType,
		Exchange:     asset.Exchange,
		Currency:     "USD",
	}, nil
}

// Quote 用行情快照拼出一次采样。Alpaca 为请求-响应式行情，wait 仅作上限。
func (g *Gateway) Quote(ctx context.Context, contract broker.Contract, wait time.Duration) (broker.Quote, error) {
	snapshot, err := g.md.GetSnapshot(contract.Symbol, marketdata.GetSnapshotRequest{})
	if err != nil {
		return broker.Quote{}, fmt.Errorf("alpaca: 获取 %s 行情失败: %w", contract.Symbol, err)
	}
	if snapshot == nil {
		return broker.Quote{}, fmt.Errorf("alpaca: %s 无行情快照", contract.Symbol)
	}

	quote := broker.Quote{Symbol: contract.Symbol, At: time.Now().UTC()}
	if snapshot.LatestTrade != nil {
		quote.Last = snapshot.LatestTrade.Price
		quote.At = snapshot.LatestTrade.Timestamp
	}
	if snapshot.PrevDailyBar != nil {
		quote.Close = snapshot.PrevDailyBar.Close
	}
	if snapshot.LatestQuote != nil {
		quote.Bid = snapshot.LatestQuote.BidPrice
		quote.Ask = snapshot.LatestQuote.AskPrice
	}
	return quote, nil
}

// PlaceOrder 提交限价委托。
func (g *Gateway) PlaceOrder(ctx context.Context, contract broker.Contract, ticket broker.OrderTicket) (broker.OrderStatus, error) {
	qty := decimal.NewFromFloat(ticket.Quantity)
	limit := decimal.NewFromFloat(ticket.LimitPrice)

	side := alpaca.Buy
	if ticket.Action == broker.ActionSell {
		side = alpaca.Sell
	}

	order, err := g.trade.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      contract.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Limit,
		LimitPrice:  &limit,
		TimeInForce: timeInForce(ticket.TimeInForce),
	})
	if err != nil {
		return broker.OrderStatus{}, fmt.Errorf("alpaca: 下单 %s 失败: %w", contract.Symbol, err)
	}

	g.logger.Info("alpaca 委托已受理",
		zap.String("symbol", contract.Symbol),
		zap.String("order_id", order.ID),
		zap.String("status", string(order.Status)))
	return mapStatus(order), nil
}

// OrderStatus 查询委托最新状态。
func (g *Gateway) OrderStatus(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	order, err := g.trade.GetOrder(orderID)
	if err != nil {
		return broker.OrderStatus{}, fmt.Errorf("alpaca: 查询委托 %s 失败: %w", orderID, err)
	}
	return mapStatus(order), nil
}

func mapStatus(o *alpaca.Order) broker.OrderStatus {
	if o == nil {
		return broker.OrderStatus{}
	}
	return broker.OrderStatus{
		ID:             o.ID,
		Status:         string(o.Status),
		FilledQuantity: o.FilledQty.InexactFloat64(),
		AvgFillPrice:   derefFloat(o.FilledAvgPrice),
	}
}

func timeInForce(tif string) alpaca.TimeInForce {
	switch strings.ToUpper(tif) {
	case "DAY":
		return alpaca.Day
	case "IOC":
		return alpaca.IOC
	case "FOK":
		return alpaca.FOK
	default:
		return alpaca.GTC
	}
}

func derefFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
