package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradesim/internal/costmodel"
	"tradesim/internal/feed"
	"tradesim/internal/infra/netutil"
)

type Config struct {
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
	Server struct {
		Addr                string   `yaml:"addr"`
		Pprof               bool     `yaml:"pprof"`
		ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
		IdleTimeoutSeconds  int      `yaml:"idle_timeout_seconds"`
		AdminAllowCIDRs     []string `yaml:"admin_allow_cidrs"`
	} `yaml:"server"`
	Feed struct {
		URL                     string  `yaml:"url"`
		Format                  string  `yaml:"format"`
		InstID                  string  `yaml:"inst_id"`
		Channel                 string  `yaml:"channel"`
		PingIntervalSeconds     int     `yaml:"ping_interval_seconds"`
		ReadTimeoutSeconds      int     `yaml:"read_timeout_seconds"`
		ReconnectInitialSeconds float64 `yaml:"reconnect_initial_seconds"`
		ReconnectMaxSeconds     float64 `yaml:"reconnect_max_seconds"`
		ReconnectFactor         float64 `yaml:"reconnect_factor"`
		ResyncTimeoutSeconds    int     `yaml:"resync_timeout_seconds"`
		ResyncBurst             int     `yaml:"resync_burst"`
		ResyncPerSecond         float64 `yaml:"resync_per_second"`
		Buffer                  int     `yaml:"buffer"`
	} `yaml:"feed"`
	Book struct {
		StaleAfterSeconds int `yaml:"stale_after_seconds"`
	} `yaml:"book"`
	Models struct {
		PermanentCoefficient float64   `yaml:"permanent_coefficient"`
		TemporaryCoefficient float64   `yaml:"temporary_coefficient"`
		DailyVolumeUSD       float64   `yaml:"daily_volume_usd"`
		FeeTierTable         []FeeTier `yaml:"fee_tier_table"`
		TopLevelsDepth       int       `yaml:"top_levels_depth"`
		MakerTaker           struct {
			Intercept  float64 `yaml:"intercept"`
			Quantity   float64 `yaml:"quantity"`
			Volatility float64 `yaml:"volatility"`
			Spread     float64 `yaml:"spread"`
			Imbalance  float64 `yaml:"imbalance"`
		} `yaml:"maker_taker"`
	} `yaml:"models"`
	Order struct {
		QuantityUSD float64 `yaml:"quantity_usd"`
		Volatility  float64 `yaml:"volatility"`
		FeeTier     string  `yaml:"fee_tier"`
		Side        string  `yaml:"side"`
	} `yaml:"order"`
	Latency struct {
		Window int `yaml:"window"`
	} `yaml:"latency"`
	Redis struct {
		Addr       string `yaml:"addr"`
		Password   string `yaml:"password"`
		DB         int    `yaml:"db"`
		Key        string `yaml:"key"`
		Channel    string `yaml:"channel"`
		TTLSeconds int    `yaml:"ttl_seconds"`
	} `yaml:"redis"`
}

// FeeTier is one row of models.fee_tier_table; order is rank, lowest first.
type FeeTier struct {
	Name string  `yaml:"name"`
	Rate float64 `yaml:"rate"`
}

func defaultConfig() Config {
	var c Config
	c.Logging.Level = "info"
	c.Logging.Pretty = false
	c.Server.Addr = ":9090"
	c.Server.Pprof = false
	c.Server.ReadTimeoutSeconds = 5
	c.Server.WriteTimeoutSeconds = 10
	c.Server.IdleTimeoutSeconds = 60
	c.Server.AdminAllowCIDRs = []string{"127.0.0.0/8", "::1/128"}
	c.Feed.URL = "wss://ws.okx.com:8443/ws/v5/public"
	c.Feed.Format = string(feed.FormatOKX)
	c.Feed.InstID = "BTC-USDT-SWAP"
	c.Feed.Channel = "books"
	c.Feed.PingIntervalSeconds = 20
	c.Feed.ReadTimeoutSeconds = 60
	c.Feed.ReconnectInitialSeconds = 2
	c.Feed.ReconnectMaxSeconds = 30
	c.Feed.ReconnectFactor = 1.5
	c.Feed.ResyncTimeoutSeconds = 10
	c.Feed.ResyncBurst = 2
	c.Feed.ResyncPerSecond = 0.2
	c.Feed.Buffer = 1024
	c.Book.StaleAfterSeconds = 10
	c.Models.PermanentCoefficient = 0.05
	c.Models.TemporaryCoefficient = 0.1
	c.Models.DailyVolumeUSD = 0
	c.Models.FeeTierTable = []FeeTier{
		{Name: "Regular", Rate: 0.0010},
		{Name: "VIP1", Rate: 0.0008},
		{Name: "VIP2", Rate: 0.0006},
		{Name: "VIP3", Rate: 0.0004},
	}
	c.Models.TopLevelsDepth = 50
	c.Models.MakerTaker.Intercept = -0.5
	c.Models.MakerTaker.Quantity = 0.01
	c.Order.QuantityUSD = 100
	c.Order.Volatility = 0.3
	c.Order.FeeTier = "Regular"
	c.Order.Side = "buy"
	c.Latency.Window = 128
	c.Redis.Key = "tradesim:estimate"
	c.Redis.Channel = "tradesim:estimates"
	c.Redis.TTLSeconds = 60
	return c
}

// Load returns defaults overlaid with the YAML file named by TRADESIM_CONFIG
// and then with TRADESIM_* environment variables.
func Load() (Config, error) {
	c := defaultConfig()
	if path := os.Getenv("TRADESIM_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if v := os.Getenv("TRADESIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TRADESIM_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TRADESIM_PPROF"); v == "1" || v == "true" {
		c.Server.Pprof = true
	}
	if v := os.Getenv("TRADESIM_ADMIN_ALLOW_CIDRS"); v != "" {
		c.Server.AdminAllowCIDRs = splitCSV(v)
	}
	if v := os.Getenv("TRADESIM_FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("TRADESIM_FEED_FORMAT"); v != "" {
		c.Feed.Format = v
	}
	if v := os.Getenv("TRADESIM_INST_ID"); v != "" {
		c.Feed.InstID = v
	}
	if v := os.Getenv("TRADESIM_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TRADESIM_QUANTITY_USD"); v != "" {
		var f float64
		_, _ = fmt.Sscan(v, &f)
		if f > 0 {
			c.Order.QuantityUSD = f
		}
	}
	if v := os.Getenv("TRADESIM_VOLATILITY"); v != "" {
		var f float64
		if _, err := fmt.Sscan(v, &f); err == nil && f >= 0 {
			c.Order.Volatility = f
		}
	}
	if v := os.Getenv("TRADESIM_FEE_TIER"); v != "" {
		c.Order.FeeTier = v
	}
	return c, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Feed.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("feed.url %q must be a ws:// or wss:// URL", c.Feed.URL))
	}
	if _, err := feed.ParseFormat(c.Feed.Format); err != nil {
		errs = append(errs, fmt.Errorf("feed.format: %w", err))
	}
	if c.Feed.InstID == "" {
		errs = append(errs, errors.New("feed.inst_id is required"))
	}
	if c.Models.TopLevelsDepth <= 0 {
		errs = append(errs, fmt.Errorf("models.top_levels_depth must be positive, got %d", c.Models.TopLevelsDepth))
	}
	if c.Models.PermanentCoefficient < 0 || c.Models.TemporaryCoefficient < 0 {
		errs = append(errs, errors.New("models impact coefficients must not be negative"))
	}
	if c.Models.DailyVolumeUSD < 0 {
		errs = append(errs, errors.New("models.daily_volume_usd must not be negative"))
	}
	sched, err := costmodel.NewFeeSchedule(c.feeTiers())
	if err != nil {
		errs = append(errs, fmt.Errorf("models.fee_tier_table: %w", err))
	} else if !sched.Has(c.Order.FeeTier) {
		errs = append(errs, fmt.Errorf("order.fee_tier %q is not in models.fee_tier_table", c.Order.FeeTier))
	}
	if c.Order.QuantityUSD <= 0 {
		errs = append(errs, errors.New("order.quantity_usd must be positive"))
	}
	if c.Order.Volatility < 0 {
		errs = append(errs, errors.New("order.volatility must not be negative"))
	}
	if _, err := costmodel.ParseOrderSide(c.Order.Side); err != nil {
		errs = append(errs, fmt.Errorf("order.side: %w", err))
	}
	if c.Latency.Window <= 0 {
		errs = append(errs, fmt.Errorf("latency.window must be positive, got %d", c.Latency.Window))
	}
	if c.Book.StaleAfterSeconds <= 0 {
		errs = append(errs, errors.New("book.stale_after_seconds must be positive"))
	}
	if _, err := netutil.ParseCIDRs(c.Server.AdminAllowCIDRs); err != nil {
		errs = append(errs, fmt.Errorf("server.admin_allow_cidrs: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) feeTiers() []costmodel.FeeTier {
	out := make([]costmodel.FeeTier, 0, len(c.Models.FeeTierTable))
	for _, t := range c.Models.FeeTierTable {
		out = append(out, costmodel.FeeTier{Name: t.Name, Rate: decimal.NewFromFloat(t.Rate)})
	}
	return out
}

// Suite maps the models section onto the cost model calibration.
func (c Config) Suite() costmodel.Config {
	mt := c.Models.MakerTaker
	return costmodel.Config{
		PermanentCoefficient: c.Models.PermanentCoefficient,
		TemporaryCoefficient: c.Models.TemporaryCoefficient,
		DailyVolumeUSD:       c.Models.DailyVolumeUSD,
		FeeTiers:             c.feeTiers(),
		TopLevelsDepth:       c.Models.TopLevelsDepth,
		MakerTaker: costmodel.MakerTakerWeights{
			Intercept:  mt.Intercept,
			Quantity:   mt.Quantity,
			Volatility: mt.Volatility,
			Spread:     mt.Spread,
			Imbalance:  mt.Imbalance,
		},
	}
}

// OrderParams is the default order the simulator prices until changed.
func (c Config) OrderParams() (costmodel.OrderParams, error) {
	side, err := costmodel.ParseOrderSide(c.Order.Side)
	if err != nil {
		return costmodel.OrderParams{}, err
	}
	return costmodel.OrderParams{
		QuantityUSD: decimal.NewFromFloat(c.Order.QuantityUSD),
		Volatility:  decimal.NewFromFloat(c.Order.Volatility),
		FeeTier:     c.Order.FeeTier,
		Side:        side,
	}, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
