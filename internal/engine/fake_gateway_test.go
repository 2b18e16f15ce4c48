package engine

import (
	"context"
	"fmt"
	"time"

	"orders-ai/internal/broker"
)

// fakeGateway 为测试用内存网关，按调用顺序记录触达的接口。
type fakeGateway struct {
	summary   []broker.SummaryItem
	positions []broker.Position
	pending   []broker.PendingOrder

	contracts   map[string]broker.Contract
	qualifyErrs map[string]error
	quotes      map[string]broker.Quote
	quoteErrs   map[string]error

	placeErrs map[string]error
	statuses  map[string]broker.OrderStatus

	calls  []string
	placed []broker.OrderTicket
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		contracts:   make(map[string]broker.Contract),
		qualifyErrs: make(map[string]error),
		quotes:      make(map[string]broker.Quote),
		quoteErrs:   make(map[string]error),
		placeErrs:   make(map[string]error),
		statuses:    make(map[string]broker.OrderStatus),
	}
}

func (f *fakeGateway) addContract(symbol, currency string) {
	f.contracts[symbol] = broker.Contract{
		ID:           "c-" + symbol,
		Symbol:       symbol,
		SecurityType: broker.SecTypeStock,
		Exchange:     broker.ExchangeSmart,
		Currency:     currency,
	}
}

func (f *fakeGateway) AccountSummary(ctx context.Context) ([]broker.SummaryItem, error) {
	f.calls = append(f.calls, "AccountSummary")
	return f.summary, nil
}

func (f *fakeGateway) Positions(ctx context.Context) ([]broker.Position, error) {
	f.calls = append(f.calls, "Positions")
	return f.positions, nil
}

func (f *fakeGateway) PendingOrders(ctx context.Context) ([]broker.PendingOrder, error) {
	f.calls = append(f.calls, "PendingOrders")
	return f.pending, nil
}

func (f *fakeGateway) Qualify(ctx context.Context, spec broker.ContractSpec) (broker.Contract, error) {
	key := spec.Symbol
	if spec.SecurityType == broker.SecTypeForex {
		key = spec.Symbol + spec.Currency
	}
	f.calls = append(f.calls, "Qualify:"+key)
	if err, ok := f.qualifyErrs[key]; ok {
		return broker.Contract{}, err
	}
	if c, ok := f.contracts[key]; ok {
		return c, nil
	}
	return broker.Contract{}, fmt.Errorf("%w: %s", broker.ErrNotQualified, key)
}

func (f *fakeGateway) Quote(ctx context.Context, contract broker.Contract, wait time.Duration) (broker.Quote, error) {
	f.calls = append(f.calls, "Quote:"+contract.Symbol)
	if err, ok := f.quoteErrs[contract.Symbol]; ok {
		return broker.Quote{}, err
	}
	return f.quotes[contract.Symbol], nil
}

func (f *fakeGateway) PlaceOrder(ctx context.Context, contract broker.Contract, ticket broker.OrderTicket) (broker.OrderStatus, error) {
	f.calls = append(f.calls, "PlaceOrder:"+contract.Symbol)
	if err, ok := f.placeErrs[contract.Symbol]; ok {
		return broker.OrderStatus{}, err
	}
	f.placed = append(f.placed, ticket)
	return broker.OrderStatus{
		ID:     fmt.Sprintf("o-%d", len(f.placed)),
		Status: "accepted",
	}, nil
}

func (f *fakeGateway) OrderStatus(ctx context.Context, orderID string) (broker.OrderStatus, error) {
	f.calls = append(f.calls, "OrderStatus:"+orderID)
	if st, ok := f.statuses[orderID]; ok {
		return st, nil
	}
	return broker.OrderStatus{ID: orderID, Status: "accepted"}, nil
}

func (f *fakeGateway) placeCalls() int {
	count := 0
	for _, c := range f.calls {
		if len(c) >= 10 && c[:10] == "PlaceOrder" {
			count++
		}
	}
	return count
}
