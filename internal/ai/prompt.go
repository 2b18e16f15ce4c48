package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"orders-ai/internal/account"
)

const planTemplate = `
你是一个谨慎的长线股票投资顾问。你的任务是根据账户快照与用户要求，在严格的风险约束下提出一份可执行的交易计划。计划会经过独立校验，任何越界订单都会导致整份计划被拒绝。

用户要求：
{{ .Request }}

账户快照（唯一事实来源，禁止假设其中没有的持仓或资金）：
{{ .SnapshotJSON }}

可用预算（{{ .BudgetCurrency }}）: {{ printf "%.2f" .Budget }}
本次计划买入总额上限（{{ .BudgetCurrency }}）: {{ printf "%.2f" .BudgetCap }}
{{- if .MarginMode }}

账户当前处于保证金状态（现金为负）。本次计划只允许卖出订单，禁止任何买入。
{{- end }}
{{- if .OpenMarkets }}

当前开市的市场: {{ .OpenMarkets }}
{{- end }}
{{- if .Memory }}

近期运行记录（避免重复下单或反复买卖同一标的）：
{{ .Memory }}
{{- end }}

硬性规则：
1. 只允许 BUY 或 SELL，禁止做空、期权、杠杆产品；
2. 只允许限价单（order_type 为 LMT），limit_price 可留空由执行端按参考价决定；
3. 证券类型仅限 {{ .SecurityTypes }}，交易所留空走智能路由；
4. 卖出数量不得超过账户快照中对应持仓的数量；
5. 所有买入订单的预估总额不得超过上述买入上限；
6. 数量必须为正整数股。

请严格输出唯一的 JSON 对象，格式如下：
{
  "summary": "...",                      // 一段话概述本次计划
  "key_points": ["..."],                // 支撑计划的关键判断
  "budget_eur": 0.0,                     // 你理解的可用预算
  "estimated_total_eur": 0.0,            // 全部买入订单的预估总额
  "orders": [
    {
      "symbol": "AAPL",
      "security_type": "STK",           // STK 或 ETF
      "action": "BUY",                  // BUY 或 SELL
      "quantity": 1,
      "order_type": "LMT",
      "limit_price": null,               // 可为 null
      "currency": "USD",
      "exchange": "",                   // 留空走智能路由
      "time_in_force": "GTC",
      "rationale": "..."
    }
  ],
  "sources": [{"title": "...", "url": "..."}],
  "disclaimer": "..."
}

注意事项：
- 没有合适机会时允许返回空的 orders 数组，并在 summary 中说明原因；
- orders 之外不得输出任何文字、注释或代码块标记。
`

var planTmpl = template.Must(template.New("plan").Parse(planTemplate))

// PromptContext 用于渲染提案提示词。
type PromptContext struct {
	Request        string
	SnapshotJSON   string
	Budget         float64
	BudgetCap      float64
	BudgetCurrency string
	MarginMode     bool
	OpenMarkets    string
	Memory         string
	SecurityTypes  string
}

// BuildPrompt 将账户快照与上下文渲染成提示词字符串。
func BuildPrompt(request string, snap account.Snapshot, input PromptInput) (string, error) {
	snapshotJSON, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化账户快照失败: %w", err)
	}

	ctx := PromptContext{
		Request:        request,
		SnapshotJSON:   string(snapshotJSON),
		Budget:         snap.BudgetEUR,
		BudgetCap:      input.BudgetCap,
		BudgetCurrency: input.BudgetCurrency,
		MarginMode:     snap.UsingMargin,
		OpenMarkets:    strings.Join(input.OpenMarkets, ", "),
		Memory:         input.Memory,
		SecurityTypes:  strings.Join(input.SecurityTypes, "/"),
	}

	var buf bytes.Buffer
	if err = planTmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}

// PromptInput 为提示词中快照以外的上下文。
type PromptInput struct {
	BudgetCap      float64
	BudgetCurrency string
	OpenMarkets    []string
	Memory         string
	SecurityTypes  []string
}
