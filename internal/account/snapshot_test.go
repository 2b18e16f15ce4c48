package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"orders-ai/internal/broker"
	"orders-ai/internal/config"
)

type fakeGateway struct {
	summary    []broker.SummaryItem
	positions  []broker.Position
	pending    []broker.PendingOrder
	summaryErr error
}

func (f *fakeGateway) AccountSummary(ctx context.Context) ([]broker.SummaryItem, error) {
	return f.summary, f.summaryErr
}

func (f *fakeGateway) Positions(ctx context.Context) ([]broker.Position, error) {
	return f.positions, nil
}

func (f *fakeGateway) PendingOrders(ctx context.Context) ([]broker.PendingOrder, error) {
	return f.pending, nil
}

func (f *fakeGateway) Qualify(ctx context.Context, spec broker.ContractSpec) (broker.Contract, error) {
	return broker.Contract{}, broker.ErrNotQualified
}

func (f *fakeGateway) Quote(ctx context.Context, contract broker.Contract, wait time.Duration) (broker.Quote, error) {
	return broker.Quote{}, errors.New("no feed")
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, contract broker.Contract, ticket broker.OrderTicket) (broker.OrderStatus, error) {
	return broker.OrderStatus{}, errors.New("not implemented")
}

func (f *fakeGateway) OrderStatus(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	return broker.OrderStatus{}, errors.New("not implemented")
}

// fakeConverter 以固定汇率换算，可配置为近似模式。
type fakeConverter struct {
	rate   float64
	approx bool
	err    error
}

func (f *fakeConverter) ToBudgetApprox(ctx context.Context, amount float64, currency string) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	return amount / f.rate, f.approx, nil
}

func summaryItems(account string, ccy string, netLiq, cash, available float64) []broker.SummaryItem {
	return []broker.SummaryItem{
		{Account: account, Tag: TagNetLiquidation, Currency: ccy, Value: netLiq},
		{Account: account, Tag: TagTotalCash, Currency: ccy, Value: cash},
		{Account: account, Tag: TagAvailableFunds, Currency: ccy, Value: available},
	}
}

func eurConfig() config.EngineConfig {
	return config.EngineConfig{BudgetCurrency: "EUR"}
}

func TestBuild_MarginCashZeroesBudget(t *testing.T) {
	gw := &fakeGateway{summary: summaryItems("ACC1", "EUR", 5000, -500, 2000)}
	builder := NewBuilder(gw, eurConfig(), &fakeConverter{rate: 1}, nil)

	snap, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !snap.UsingMargin {
		t.Errorf("negative cash must flag margin usage")
	}
	if snap.BudgetSafe != 0 {
		t.Errorf("budget must be zero on negative cash, got %v", snap.BudgetSafe)
	}
	if snap.BudgetEUR != 0 {
		t.Errorf("converted budget must also be zero, got %v", snap.BudgetEUR)
	}
}

func TestBuild_BudgetTakesConservativeSide(t *testing.T) {
	cases := []struct {
		name      string
		cash      float64
		available float64
		want      float64
	}{
		{"cash below available", 1000, 3000, 1000},
		{"available below cash", 3000, 1000, 1000},
		{"available missing positive cash", 1500, 0, 1500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{summary: summaryItems("ACC1", "EUR", 5000, tc.cash, tc.available)}
			builder := NewBuilder(gw, eurConfig(), &fakeConverter{rate: 1}, nil)

			snap, err := builder.Build(context.Background())
			if err != nil {
				t.Fatalf("Build returned error: %v", err)
			}
			if snap.BudgetSafe != tc.want {
				t.Errorf("unexpected budget: got %v want %v", snap.BudgetSafe, tc.want)
			}
		})
	}
}

func TestBuild_PendingBuysReduceBudget(t *testing.T) {
	gw := &fakeGateway{
		summary: summaryItems("ACC1", "EUR", 5000, 2000, 2000),
		pending: []broker.PendingOrder{
			{Symbol: "ASML", Currency: "EUR", Action: "BUY", Quantity: 2, LimitPrice: 300},
			{Symbol: "AAPL", Currency: "EUR", Action: "SELL", Quantity: 5, LimitPrice: 100},
		},
	}
	builder := NewBuilder(gw, eurConfig(), &fakeConverter{rate: 1}, nil)

	snap, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	// 只有买入挂单占用预算：2000 − 2×300。
	if snap.BudgetSafe != 1400 {
		t.Errorf("unexpected budget after pending buys: got %v want 1400", snap.BudgetSafe)
	}
}

func TestBuild_ForeignAccountConvertsBudget(t *testing.T) {
	gw := &fakeGateway{summary: summaryItems("ACC1", "USD", 5000, 1100, 1100)}
	builder := NewBuilder(gw, eurConfig(), &fakeConverter{rate: 1.10, approx: true}, nil)

	snap, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if snap.Currency != "USD" {
		t.Errorf("snapshot currency should be the account currency, got %s", snap.Currency)
	}
	if diff := snap.BudgetEUR - 1000; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("unexpected converted budget: got %v want 1000", snap.BudgetEUR)
	}
	if len(snap.Warnings) == 0 {
		t.Errorf("approximate conversion must surface a warning")
	}
}

func TestBuild_ForeignPendingBuyKeepsUnitsConsistent(t *testing.T) {
	gw := &fakeGateway{
		summary: summaryItems("ACC1", "USD", 5000, 1100, 1100),
		pending: []broker.PendingOrder{
			{Symbol: "ASML", Currency: "EUR", Action: "BUY", Quantity: 1, LimitPrice: 100},
		},
	}
	builder := NewBuilder(gw, eurConfig(), &fakeConverter{rate: 1.10}, nil)

	snap, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	// 挂单 100 EUR 折合 110 USD：账户币种下预算 990 USD，换算后 900 EUR。
	if diff := snap.BudgetSafe - 990; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("unexpected account-currency budget: got %v want 990", snap.BudgetSafe)
	}
	if diff := snap.BudgetEUR - 900; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("unexpected converted budget: got %v want 900", snap.BudgetEUR)
	}
}

func TestBuild_MissingAvailableFundsFails(t *testing.T) {
	gw := &fakeGateway{summary: []broker.SummaryItem{
		{Account: "ACC1", Tag: TagNetLiquidation, Currency: "EUR", Value: 5000},
	}}
	builder := NewBuilder(gw, eurConfig(), &fakeConverter{rate: 1}, nil)

	_, err := builder.Build(context.Background())
	if !errors.Is(err, ErrBudgetTagMissing) {
		t.Fatalf("expected ErrBudgetTagMissing, got %v", err)
	}
}

func TestBuild_ShortPositionFlagsMargin(t *testing.T) {
	gw := &fakeGateway{
		summary: summaryItems("ACC1", "EUR", 5000, 2000, 2000),
		positions: []broker.Position{
			{Symbol: "GME", SecurityType: "STK", Currency: "USD", Quantity: -5, AvgCost: 20},
		},
	}
	builder := NewBuilder(gw, eurConfig(), &fakeConverter{rate: 1}, nil)

	snap, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !snap.UsingMargin {
		t.Errorf("short position must flag margin usage")
	}
	if !snap.HasShortPositions() {
		t.Errorf("HasShortPositions should report the short leg")
	}
}

func TestPnLPercent(t *testing.T) {
	if got := PnLPercent(110, 100); got != 10 {
		t.Errorf("unexpected pnl percent: got %v want 10", got)
	}
	if got := PnLPercent(95.5, 100); got != -4.5 {
		t.Errorf("unexpected pnl percent: got %v want -4.5", got)
	}
	if got := PnLPercent(100, 0); got != 0 {
		t.Errorf("zero cost must yield zero, got %v", got)
	}
}

func TestPendingSellQuantities_Aggregates(t *testing.T) {
	snap := Snapshot{PendingOrders: []broker.PendingOrder{
		{Symbol: "AAPL", Currency: "USD", Action: "SELL", Quantity: 3},
		{Symbol: "aapl", Currency: "usd", Action: "sell", Quantity: 2},
		{Symbol: "AAPL", Currency: "USD", Action: "BUY", Quantity: 7},
	}}

	sells := snap.PendingSellQuantities()
	key := [4]string{"AAPL", "USD", "STK", "SMART"}
	if got := sells[key]; got != 5 {
		t.Errorf("expected aggregated sells of 5, got %v", got)
	}
}
