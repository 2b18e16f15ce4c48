package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:    AppConfig{Environment: "test"},
		Broker: BrokerConfig{Name: "alpaca"},
		Proposer: ProposerConfig{
			APIKey:  "key",
			Model:   "grok-4-1-fast-reasoning",
			Timeout: time.Minute,
		},
		Engine: EngineConfig{
			BudgetCurrency:       "EUR",
			BudgetCapFraction:    0.8,
			LimitBufferBps:       25,
			MarketDataWait:       time.Second,
			SettleWait:           time.Second,
			AllowedSecurityTypes: []string{"STK", "ETF"},
		},
		Database: DatabaseConfig{Path: "data/test.db", MaxOpenConns: 1},
		Logging: LoggingConfig{
			Level:            "info",
			Encoding:         "console",
			OutputPaths:      []string{"stdout"},
			ErrorOutputPaths: []string{"stderr"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Proposer.APIKey = ""
	cfg.Engine.BudgetCapFraction = 1.5
	cfg.Engine.BudgetCurrency = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"proposer.api_key", "budget_cap_fraction", "budget_currency"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestValidate_FallbackRatesMustBePositive(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.FallbackFXRates = map[string]float64{"USD": -1}

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "fallback_fx_rates") {
		t.Fatalf("expected fallback rate error, got %v", err)
	}
}

func TestNormalizedExchanges_AlwaysAllowsSmartRouting(t *testing.T) {
	e := EngineConfig{AllowedExchanges: []string{"smart"}}
	set := e.NormalizedExchanges()
	if _, ok := set[""]; !ok {
		t.Errorf("empty exchange must always be allowed")
	}
	if _, ok := set["SMART"]; !ok {
		t.Errorf("exchange names must be upper-cased")
	}
}

func TestNormalizedETFAllowlist_NilWhenUnset(t *testing.T) {
	e := EngineConfig{}
	if e.NormalizedETFAllowlist() != nil {
		t.Errorf("unset allowlist must be nil")
	}
	e.ETFAllowlist = []string{" spy "}
	set := e.NormalizedETFAllowlist()
	if _, ok := set["SPY"]; !ok {
		t.Errorf("allowlist entries must be trimmed and upper-cased")
	}
}

func TestNotifyEnabled(t *testing.T) {
	n := NotifyConfig{}
	if n.Enabled() {
		t.Errorf("empty notify config must be disabled")
	}
	n = NotifyConfig{
		SMTPServer:   "smtp.example.com",
		SMTPUser:     "bot",
		SMTPPassword: "secret",
		EmailTo:      "ops@example.com",
	}
	if !n.Enabled() {
		t.Errorf("complete notify config must be enabled")
	}
}
