package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"orders-ai/internal/account"
	"orders-ai/internal/config"
)

func TestParsePlan_ExtractsOutermostJSON(t *testing.T) {
	content := "以下是交易计划：\n```json\n" + `{
  "summary": "买入一笔半导体",
  "budget_eur": 1000,
  "estimated_total_eur": 600,
  "orders": [
    {"symbol": "ASML", "action": "BUY", "quantity": 1, "order_type": "LMT", "currency": "EUR"}
  ]
}` + "\n```\n请谨慎操作。"

	tradePlan, err := parsePlan(content)
	if err != nil {
		t.Fatalf("parsePlan returned error: %v", err)
	}
	if tradePlan.Summary != "买入一笔半导体" {
		t.Errorf("unexpected summary: %s", tradePlan.Summary)
	}
	if len(tradePlan.Orders) != 1 || tradePlan.Orders[0].Symbol != "ASML" {
		t.Errorf("unexpected orders: %v", tradePlan.Orders)
	}
	if tradePlan.Orders[0].LimitPrice != nil {
		t.Errorf("absent limit price must stay nil")
	}
}

func TestParsePlan_NoJSON(t *testing.T) {
	if _, err := parsePlan("抱歉，我无法给出计划。"); err == nil {
		t.Fatalf("expected error for content without JSON")
	}
}

func TestParsePlan_MissingSummary(t *testing.T) {
	if _, err := parsePlan(`{"orders": []}`); err == nil || !strings.Contains(err.Error(), "summary") {
		t.Fatalf("expected summary error, got %v", err)
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient(config.ProposerConfig{}, nil); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

func TestGeneratePlan_RefusesShortPositions(t *testing.T) {
	client, err := NewClient(config.ProposerConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	snap := account.Snapshot{
		Positions: []account.Position{{Symbol: "GME", Quantity: -5}},
	}
	_, err = client.GeneratePlan(context.Background(), "", snap, PromptInput{})
	if !errors.Is(err, ErrShortPositions) {
		t.Fatalf("expected ErrShortPositions, got %v", err)
	}
}

func TestBuildPrompt_CarriesMarginDirective(t *testing.T) {
	snap := account.Snapshot{
		Currency:    "USD",
		UsingMargin: true,
		BudgetEUR:   0,
	}
	prompt, err := BuildPrompt("test", snap, PromptInput{
		BudgetCurrency: "EUR",
		SecurityTypes:  []string{"STK", "ETF"},
	})
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if !strings.Contains(prompt, "只允许卖出") {
		t.Errorf("margin mode prompt must restrict to sells")
	}
	if !strings.Contains(prompt, "STK/ETF") {
		t.Errorf("prompt should list allowed security types")
	}
}

func TestBuildPrompt_IncludesMemoryAndMarkets(t *testing.T) {
	snap := account.Snapshot{Currency: "EUR", BudgetEUR: 1000}
	prompt, err := BuildPrompt("acheter", snap, PromptInput{
		BudgetCap:      800,
		BudgetCurrency: "EUR",
		OpenMarkets:    []string{"US (NYSE, NASDAQ)"},
		Memory:         "[08/29 10:00] 运行成功",
		SecurityTypes:  []string{"STK"},
	})
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if !strings.Contains(prompt, "US (NYSE, NASDAQ)") {
		t.Errorf("prompt should mention open markets")
	}
	if !strings.Contains(prompt, "[08/29 10:00]") {
		t.Errorf("prompt should embed the memory section")
	}
	if !strings.Contains(prompt, "800.00") {
		t.Errorf("prompt should state the budget cap")
	}
}
