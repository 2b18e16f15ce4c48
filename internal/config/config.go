package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "orders"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("broker.name", "alpaca")
	v.SetDefault("broker.use_paper", true)

	v.SetDefault("proposer.base_url", "https://api.x.ai/v1")
	v.SetDefault("proposer.model", "grok-4-1-fast-reasoning")
	v.SetDefault("proposer.timeout", "120s")
	v.SetDefault("proposer.default_request",
		"Analyse les news des dernieres 48-72h et propose des trades bases sur les catalyseurs actuels.")

	v.SetDefault("engine.budget_currency", "EUR")
	v.SetDefault("engine.budget_cap_fraction", 0.80)
	v.SetDefault("engine.limit_buffer_bps", 25)
	v.SetDefault("engine.market_data_wait", "1500ms")
	v.SetDefault("engine.settle_wait", "3s")
	v.SetDefault("engine.allowed_security_types", []string{"STK", "ETF"})
	v.SetDefault("engine.allowed_exchanges", []string{"SMART"})
	v.SetDefault("engine.etf_denylist", []string{
		"SPY", "QQQ", "VOO", "IWM", "DIA",
		"XLK", "XLF", "XLY", "XLP", "XLI",
		"XLE", "XLV", "XLU", "XLC", "XLB",
	})

	v.SetDefault("database.path", "data/orders_ai.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.lookback_hours", 72)

	v.SetDefault("notify.smtp_port", 587)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
