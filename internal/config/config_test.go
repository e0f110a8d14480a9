package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	_ = os.Unsetenv("TRADESIM_CONFIG")
	_ = os.Unsetenv("TRADESIM_LOG_LEVEL")
	_ = os.Unsetenv("TRADESIM_FEE_TIER")

	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %s", c.Logging.Level)
	}
	if c.Order.QuantityUSD != 100 || c.Order.Volatility != 0.3 {
		t.Fatalf("unexpected default order %+v", c.Order)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADESIM_LOG_LEVEL", "debug")
	t.Setenv("TRADESIM_INST_ID", "ETH-USDT-SWAP")
	t.Setenv("TRADESIM_QUANTITY_USD", "2500")
	t.Setenv("TRADESIM_FEE_TIER", "VIP2")
	t.Setenv("TRADESIM_ADMIN_ALLOW_CIDRS", "10.0.0.0/8, 127.0.0.1/32")
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Logging.Level != "debug" {
		t.Fatalf("env override failed for log level, got %s", c.Logging.Level)
	}
	if c.Feed.InstID != "ETH-USDT-SWAP" || c.Order.QuantityUSD != 2500 || c.Order.FeeTier != "VIP2" {
		t.Fatalf("env overrides not applied: %+v %+v", c.Feed, c.Order)
	}
	if len(c.Server.AdminAllowCIDRs) != 2 || c.Server.AdminAllowCIDRs[1] != "127.0.0.1/32" {
		t.Fatalf("cidrs = %v", c.Server.AdminAllowCIDRs)
	}
}

func TestYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradesim.yaml")
	yml := `
feed:
  format: gomarket
  url: wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP
models:
  permanent_coefficient: 0.2
  fee_tier_table:
    - {name: T1, rate: 0.002}
    - {name: T2, rate: 0.001}
  maker_taker:
    intercept: 1.5
order:
  fee_tier: T2
  side: sell
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRADESIM_CONFIG", path)
	c, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	s := c.Suite()
	if s.PermanentCoefficient != 0.2 || s.TemporaryCoefficient != 0.1 || s.MakerTaker.Intercept != 1.5 {
		t.Fatalf("suite config = %+v", s)
	}
	if len(s.FeeTiers) != 2 || s.FeeTiers[1].Name != "T2" {
		t.Fatalf("fee tiers = %+v", s.FeeTiers)
	}
	p, err := c.OrderParams()
	if err != nil || p.Side != "sell" || p.FeeTier != "T2" {
		t.Fatalf("order params = %+v, %v", p, err)
	}
}

func TestLoadReportsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("models: [unterminated"), 0o600)
	t.Setenv("TRADESIM_CONFIG", path)
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	c := defaultConfig()
	c.Feed.URL = "https://example.com"
	c.Models.TopLevelsDepth = 0
	c.Models.FeeTierTable = []FeeTier{{Name: "A", Rate: 0.001}, {Name: "B", Rate: 0.002}}
	c.Latency.Window = 0
	c.Server.AdminAllowCIDRs = []string{"10.0.0.0/40"}
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"feed.url", "top_levels_depth", "fee_tier_table", "latency.window", "admin_allow_cidrs"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateUnknownDefaultTier(t *testing.T) {
	c := defaultConfig()
	c.Order.FeeTier = "VIP7"
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "order.fee_tier") {
		t.Fatalf("err = %v", err)
	}
}
