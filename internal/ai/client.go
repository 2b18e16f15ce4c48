package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"orders-ai/internal/account"
	"orders-ai/internal/config"
	"orders-ai/internal/plan"
)

// ErrShortPositions 表示账户存在空头持仓。
// 这种状态超出系统能安全处理的范围，提案端直接拒绝工作。
var ErrShortPositions = errors.New("ai: account holds short positions, refusing to propose")

// Client 封装大模型提案调用逻辑。
type Client struct {
	cfg    config.ProposerConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewClient 使用给定配置创建提案客户端。
func NewClient(cfg config.ProposerConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("proposer api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    openai.NewClientWithConfig(sdkConfig),
	}, nil
}

// GeneratePlan 根据账户快照与用户要求获取模型交易计划。
// 返回的计划仍是未经校验的候选，必须经执行引擎重新检查后才可提交。
func (c *Client) GeneratePlan(ctx context.Context, request string, snap account.Snapshot, input PromptInput) (plan.TradePlan, error) {
	if c.cfg.Model == "" {
		return plan.TradePlan{}, errors.New("proposer model 不能为空")
	}
	if snap.HasShortPositions() {
		return plan.TradePlan{}, ErrShortPositions
	}
	if request == "" {
		request = c.cfg.DefaultRequest
	}

	prompt, err := BuildPrompt(request, snap, input)
	if err != nil {
		return plan.TradePlan{}, err
	}

	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		c.logger.Error("调用模型失败", zap.Error(err))
		return plan.TradePlan{}, fmt.Errorf("调用模型失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return plan.TradePlan{}, errors.New("模型返回结果为空")
	}
	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return plan.TradePlan{}, errors.New("模型返回内容为空")
	}

	tradePlan, err := parsePlan(rawContent)
	if err != nil {
		c.logger.Error("解析模型计划失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return plan.TradePlan{}, err
	}

	c.logger.Info("交易计划生成成功",
		zap.Int("orders", len(tradePlan.Orders)),
		zap.Float64("estimated_total", tradePlan.EstimatedTotalEUR),
		zap.String("summary", tradePlan.Summary),
	)
	return tradePlan, nil
}

func parsePlan(content string) (plan.TradePlan, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return plan.TradePlan{}, err
	}

	var tradePlan plan.TradePlan
	if err = json.Unmarshal(jsonPayload, &tradePlan); err != nil {
		return plan.TradePlan{}, fmt.Errorf("解析计划JSON失败: %w", err)
	}
	if tradePlan.Summary == "" {
		return plan.TradePlan{}, errors.New("计划缺少 summary 字段")
	}
	return tradePlan, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}
	return []byte(content[start : end+1]), nil
}
