package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"tradedesk/internal/model"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server        ServerConfig
	Log           LogConfig
	Trading       TradingConfig
	Arbitrage     ArbitrageConfig
	Signals       SignalConfig
	AutoMode      AutoModeConfig `mapstructure:"auto_mode"`
	Markets       []model.Market
	Exchanges     map[string]ExchangeConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Notifications NotificationConfig
	MemeRadar     MemeRadarConfig `mapstructure:"meme_radar"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port               int
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int `mapstructure:"rate_limit_burst"`
}

// LogConfig defines the slog level (debug, info, warn, error).
type LogConfig struct {
	Level string
}

// TradingConfig defines the simulated account and the polling loop.
type TradingConfig struct {
	InitialBalance      float64       `mapstructure:"initial_balance"`
	MinTradeUSD         float64       `mapstructure:"min_trade_usd"`
	MinBudgetUSD        float64       `mapstructure:"min_budget_usd"`
	TradeLogCap         int           `mapstructure:"trade_log_cap"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	Workers             int           `mapstructure:"workers"`
	ExecuteTopN         int           `mapstructure:"execute_top_n"`
	ExecuteMinProfitPct float64       `mapstructure:"execute_min_profit_pct"`
}

// ArbitrageConfig defines the opportunity scanner settings.
type ArbitrageConfig struct {
	DefaultMinProfitPct float64 `mapstructure:"default_min_profit_pct"`
	MinPositionUSD      float64 `mapstructure:"min_position_usd"`
	MaxPositionUSD      float64 `mapstructure:"max_position_usd"`
	TopN                int     `mapstructure:"top_n"`
}

// SignalConfig defines the signal generator settings.
type SignalConfig struct {
	MinConfidence float64 `mapstructure:"min_confidence"`
	TargetPct     float64 `mapstructure:"target_pct"`
	MaxSignals    int     `mapstructure:"max_signals"`
}

// AutoModeConfig defines the strategy selector retention.
type AutoModeConfig struct {
	HistorySize     int `mapstructure:"history_size"`
	StatusDecisions int `mapstructure:"status_decisions"`
}

// ExchangeConfig defines settings for a specific price source.
// A source without credentials and without Live falls back to simulated prices.
type ExchangeConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Live      bool   `mapstructure:"live"`
	URL       string `mapstructure:"url"`
}

// DatabaseConfig defines the trade store connection settings.
type DatabaseConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string `mapstructure:"dbname"`
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.DBName)
}

// CacheConfig defines the optional Redis quote mirror.
type CacheConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NotificationConfig defines outbound webhooks.
type NotificationConfig struct {
	Webhooks    []string
	Timeout     time.Duration
	HistorySize int `mapstructure:"history_size"`
}

// MemeRadarConfig defines the trending small-cap scanner. Without Live it
// analyses simulated market data.
type MemeRadarConfig struct {
	Live          bool
	URL           string
	Timeout       time.Duration
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	MaxCandidates int           `mapstructure:"max_candidates"`
}

var defaultSources = []string{"binance", "coinbase", "kucoin", "okx", "bybit", "kraken"}

// Loader reads and watches one config directory.
type Loader struct {
	path string
	v    *viper.Viper
}

// NewLoader creates a Loader for config.yaml (and .env) under path.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &Loader{path: path, v: v}
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	return NewLoader(path).Load()
}

// Load reads the config file if present and unmarshals it over the defaults.
func (l *Loader) Load() (config Config, err error) {
	// .env only fills variables that are not already set.
	_ = godotenv.Load(filepath.Join(l.path, ".env"))

	if err = l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (config Config, err error) {
	if err = l.v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}
	// A file that lists exchanges selects exactly those sources.
	if !l.v.InConfig("exchanges") {
		if config.Exchanges == nil {
			config.Exchanges = make(map[string]ExchangeConfig, len(defaultSources))
		}
		for _, name := range defaultSources {
			if _, ok := config.Exchanges[name]; !ok {
				config.Exchanges[name] = ExchangeConfig{}
			}
		}
	}
	raw := l.v.Get("markets")
	for i := range config.Markets {
		if !marketSets(raw, i, "min_profit_pct") {
			config.Markets[i].MinProfitPct = config.Arbitrage.DefaultMinProfitPct
		}
	}
	if err = config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// Watch re-reads the file on every change and hands valid configs to onChange.
// It is a no-op when no config file was found.
func (l *Loader) Watch(logger *slog.Logger, onChange func(Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config: file changed", "file", e.Name, "op", e.Op.String())
		cfg, err := l.unmarshal()
		if err != nil {
			logger.Error("Config: ignoring invalid reload", "error", err)
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Trading.PollInterval <= 0:
		return errors.New("trading.poll_interval must be positive")
	case c.Trading.FetchTimeout <= 0:
		return errors.New("trading.fetch_timeout must be positive")
	case c.Trading.Workers <= 0:
		return errors.New("trading.workers must be positive")
	case c.Arbitrage.MinPositionUSD > c.Arbitrage.MaxPositionUSD:
		return errors.New("arbitrage.min_position_usd exceeds max_position_usd")
	case len(c.Markets) == 0:
		return errors.New("at least one market is required")
	}
	for _, m := range c.Markets {
		if m.Symbol == "" {
			return errors.New("market symbol must not be empty")
		}
	}
	return nil
}

// marketSets reports whether the i-th raw market entry carries key, so an
// explicit zero can be told apart from an omitted value.
func marketSets(raw any, i int, key string) bool {
	var entry map[string]any
	switch markets := raw.(type) {
	case []any:
		if i < len(markets) {
			entry, _ = markets[i].(map[string]any)
		}
	case []map[string]any:
		if i < len(markets) {
			entry = markets[i]
		}
	}
	for k := range entry {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.rate_limit_per_minute", 100)
	v.SetDefault("server.rate_limit_burst", 20)

	v.SetDefault("log.level", "info")

	v.SetDefault("trading.initial_balance", 10000.0)
	v.SetDefault("trading.min_trade_usd", 100.0)
	v.SetDefault("trading.min_budget_usd", 100.0)
	v.SetDefault("trading.trade_log_cap", 50)
	v.SetDefault("trading.poll_interval", 15*time.Second)
	v.SetDefault("trading.fetch_timeout", 5*time.Second)
	v.SetDefault("trading.workers", 10)
	v.SetDefault("trading.execute_top_n", 2)
	v.SetDefault("trading.execute_min_profit_pct", 0.5)

	v.SetDefault("arbitrage.default_min_profit_pct", 0.3)
	v.SetDefault("arbitrage.min_position_usd", 100.0)
	v.SetDefault("arbitrage.max_position_usd", 500.0)
	v.SetDefault("arbitrage.top_n", 5)

	v.SetDefault("signals.min_confidence", 70.0)
	v.SetDefault("signals.target_pct", 3.0)
	v.SetDefault("signals.max_signals", 3)

	v.SetDefault("auto_mode.history_size", 20)
	v.SetDefault("auto_mode.status_decisions", 10)

	v.SetDefault("markets", []map[string]any{
		{"symbol": "BTC/USDT", "name": "Bitcoin", "min_profit_pct": 0.3, "allocation_pct": 30.0, "priority": 1.0, "volatility": "medium", "base_price": 43000.0},
		{"symbol": "ETH/USDT", "name": "Ethereum", "min_profit_pct": 0.4, "allocation_pct": 25.0, "priority": 2.0, "volatility": "medium", "base_price": 2600.0},
		{"symbol": "SOL/USDT", "name": "Solana", "min_profit_pct": 0.5, "allocation_pct": 20.0, "priority": 3.0, "volatility": "high", "base_price": 100.0},
	})

	_ = v.BindEnv("exchanges.binance.api_key", "EXCHANGES_BINANCE_API_KEY", "BINANCE_API_KEY")
	_ = v.BindEnv("exchanges.binance.api_secret", "EXCHANGES_BINANCE_API_SECRET", "BINANCE_SECRET")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "tradedesk.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 2*time.Minute)

	v.SetDefault("notifications.webhooks", []string{})
	v.SetDefault("notifications.timeout", 3*time.Second)
	v.SetDefault("notifications.history_size", 100)

	v.SetDefault("meme_radar.live", false)
	v.SetDefault("meme_radar.url", "https://api.coingecko.com/api/v3")
	v.SetDefault("meme_radar.timeout", 10*time.Second)
	v.SetDefault("meme_radar.cache_ttl", 5*time.Minute)
	v.SetDefault("meme_radar.max_candidates", 20)
}
