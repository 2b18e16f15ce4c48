package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	Proposer ProposerConfig `mapstructure:"proposer"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BrokerConfig 描述券商连接信息。
type BrokerConfig struct {
	Name      string `mapstructure:"name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
	DataURL   string `mapstructure:"data_url"`
	Account   string `mapstructure:"account"`
	UsePaper  bool   `mapstructure:"use_paper"`
}

// ProposerConfig 描述大模型提案端调用参数。
type ProposerConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	DefaultRequest string        `mapstructure:"default_request"`
}

// EngineConfig 管理订单校验与执行的策略参数。
// 白名单、预算上限等策略必须经由配置注入，引擎内部不读取环境变量。
type EngineConfig struct {
	BudgetCurrency       string             `mapstructure:"budget_currency"`
	BudgetCapFraction    float64            `mapstructure:"budget_cap_fraction"`
	LimitBufferBps       float64            `mapstructure:"limit_buffer_bps"`
	MarketDataWait       time.Duration      `mapstructure:"market_data_wait"`
	SettleWait           time.Duration      `mapstructure:"settle_wait"`
	AllowedSecurityTypes []string           `mapstructure:"allowed_security_types"`
	AllowedExchanges     []string           `mapstructure:"allowed_exchanges"`
	ETFDenylist          []string           `mapstructure:"etf_denylist"`
	ETFAllowlist         []string           `mapstructure:"etf_allowlist"`
	FallbackFXRates      map[string]float64 `mapstructure:"fallback_fx_rates"`
}

// DatabaseConfig 管理审计数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// AuditConfig 控制运行审计的留存与提示词记忆窗口。
type AuditConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	LookbackHours int  `mapstructure:"lookback_hours"`
}

// NotifyConfig 控制邮件告警；SMTPServer 为空时整体关闭。
type NotifyConfig struct {
	SMTPServer   string `mapstructure:"smtp_server"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	EmailTo      string `mapstructure:"email_to"`
}

// Enabled 判断通知是否配置齐全。
func (n NotifyConfig) Enabled() bool {
	return n.SMTPServer != "" && n.SMTPUser != "" && n.SMTPPassword != "" && n.EmailTo != ""
}

// NormalizedSecurityTypes 返回大写去重后的证券类型白名单。
func (e EngineConfig) NormalizedSecurityTypes() map[string]struct{} {
	return normalizeSet(e.AllowedSecurityTypes)
}

// NormalizedExchanges 返回大写后的交易所白名单；空串代表智能路由。
func (e EngineConfig) NormalizedExchanges() map[string]struct{} {
	set := normalizeSet(e.AllowedExchanges)
	set[""] = struct{}{}
	return set
}

// NormalizedETFDenylist 返回大写后的 ETF 黑名单。
func (e EngineConfig) NormalizedETFDenylist() map[string]struct{} {
	return normalizeSet(e.ETFDenylist)
}

// NormalizedETFAllowlist 返回大写后的 ETF 白名单；为 nil 表示未启用。
func (e EngineConfig) NormalizedETFAllowlist() map[string]struct{} {
	if len(e.ETFAllowlist) == 0 {
		return nil
	}
	return normalizeSet(e.ETFAllowlist)
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Broker.Name == "" {
		err = multierr.Append(err, errors.New("broker.name 不能为空"))
	}
	if c.Proposer.APIKey == "" {
		err = multierr.Append(err, errors.New("proposer.api_key 不能为空"))
	}
	if c.Proposer.Model == "" {
		err = multierr.Append(err, errors.New("proposer.model 不能为空"))
	}
	if c.Proposer.Timeout <= 0 {
		err = multierr.Append(err, errors.New("proposer.timeout 必须大于0"))
	}
	if c.Engine.BudgetCurrency == "" {
		err = multierr.Append(err, errors.New("engine.budget_currency 不能为空"))
	}
	if c.Engine.BudgetCapFraction <= 0 || c.Engine.BudgetCapFraction > 1 {
		err = multierr.Append(err, errors.New("engine.budget_cap_fraction 必须位于(0,1]"))
	}
	if c.Engine.LimitBufferBps < 0 || c.Engine.LimitBufferBps > 500 {
		err = multierr.Append(err, errors.New("engine.limit_buffer_bps 应位于[0,500]"))
	}
	if c.Engine.MarketDataWait <= 0 {
		err = multierr.Append(err, errors.New("engine.market_data_wait 必须大于0"))
	}
	if c.Engine.SettleWait <= 0 {
		err = multierr.Append(err, errors.New("engine.settle_wait 必须大于0"))
	}
	if len(c.Engine.AllowedSecurityTypes) == 0 {
		err = multierr.Append(err, errors.New("engine.allowed_security_types 至少包含一项"))
	}
	for ccy, rate := range c.Engine.FallbackFXRates {
		if rate <= 0 {
			err = multierr.Append(err, fmt.Errorf("engine.fallback_fx_rates.%s 必须为正", ccy))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Audit.Enabled && c.Audit.LookbackHours <= 0 {
		err = multierr.Append(err, errors.New("audit.lookback_hours 必须大于0"))
	}
	if c.Notify.SMTPServer != "" && c.Notify.SMTPPort <= 0 {
		err = multierr.Append(err, errors.New("notify.smtp_port 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
