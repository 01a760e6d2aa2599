package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Shard     ShardConfig     `mapstructure:"shard"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Venues    []VenueConfig   `mapstructure:"venues"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	AdminKey string `mapstructure:"admin_key"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DiscoveryConfig struct {
	BaseURL       string  `mapstructure:"base_url"`
	TimeoutMs     int     `mapstructure:"timeout_ms"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// UpstreamConfig names the state feed per asset class.
type UpstreamConfig struct {
	SportsURL      string `mapstructure:"sports_url"`
	PriceTargetURL string `mapstructure:"price_target_url"`
	IndicatorURL   string `mapstructure:"indicator_url"`
	ElectionURL    string `mapstructure:"election_url"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`
}

type MonitorConfig struct {
	TickIntervalMs     int  `mapstructure:"tick_interval_ms"`
	QuoteTTLSeconds    int  `mapstructure:"quote_ttl_seconds"`
	WarnIntervalSec    int  `mapstructure:"warn_interval_seconds"`
	StateChangeEnabled bool `mapstructure:"state_change_enabled"`
}

type DetectorConfig struct {
	MinEdge            float64 `mapstructure:"min_edge"`
	DebounceSeconds    int     `mapstructure:"debounce_seconds"`
	PruneMultiplier    int     `mapstructure:"prune_multiplier"`
	ArbMinProfit       float64 `mapstructure:"arb_min_profit"`
	DefaultFeeBps      int     `mapstructure:"default_fee_bps"`
	DefaultMinDepth    float64 `mapstructure:"default_min_depth"`
	StateChangeMinMove float64 `mapstructure:"state_change_min_move"`
}

type RiskConfig struct {
	InitialBankroll     float64 `mapstructure:"initial_bankroll"`
	MaxDailyLoss        float64 `mapstructure:"max_daily_loss"`
	MaxEventExposure    float64 `mapstructure:"max_event_exposure"`
	MaxCategoryExposure float64 `mapstructure:"max_category_exposure"`
	MaxPositionsPerEv   int     `mapstructure:"max_positions_per_event"`
	AllowOpposing       bool    `mapstructure:"allow_opposing"`
	KellyFraction       float64 `mapstructure:"kelly_fraction"`
	MaxBankrollPct      float64 `mapstructure:"max_bankroll_pct"`
	ApprovalCooldownSec int     `mapstructure:"approval_cooldown_seconds"`
}

type ExecutionConfig struct {
	Mode                string  `mapstructure:"mode"` // "paper" or "live"
	LiveConfirm         bool    `mapstructure:"live_confirm"`
	LiveConfirmEnv      string  `mapstructure:"live_confirm_env"`
	KillSwitchFile      string  `mapstructure:"kill_switch_file"`
	OrdersPerMinute     int     `mapstructure:"orders_per_minute"`
	OrdersPerHour       int     `mapstructure:"orders_per_hour"`
	IdempotencyTTLSec   int     `mapstructure:"idempotency_ttl_seconds"`
	MinPrice            float64 `mapstructure:"min_price"`
	MaxPrice            float64 `mapstructure:"max_price"`
	MinSize             float64 `mapstructure:"min_size"`
	MaxSize             float64 `mapstructure:"max_size"`
	SubmitTimeoutMs     int     `mapstructure:"submit_timeout_ms"`
	SubmitRetries       int     `mapstructure:"submit_retries"`
}

type ShardConfig struct {
	ID                   string `mapstructure:"id"`
	HeartbeatIntervalSec int    `mapstructure:"heartbeat_interval_seconds"`
	MissThreshold        int    `mapstructure:"miss_threshold"`
	ZombieIntervalSec    int    `mapstructure:"zombie_interval_seconds"`
}

type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold"`
	OpenSeconds      int `mapstructure:"open_seconds"`
}

type VenueConfig struct {
	Name     string  `mapstructure:"name"`
	BaseURL  string  `mapstructure:"base_url"`
	WSURL    string  `mapstructure:"ws_url"`
	FeeBps   int     `mapstructure:"fee_bps"`
	MinDepth float64 `mapstructure:"min_depth"`
}

// VenueByName returns the venue section for name, or a zero-value config
// carrying the global detector defaults.
func (c *Config) VenueByName(name string) VenueConfig {
	for _, v := range c.Venues {
		if v.Name == name {
			return v
		}
	}
	return VenueConfig{
		Name:     name,
		FeeBps:   c.Detector.DefaultFeeBps,
		MinDepth: c.Detector.DefaultMinDepth,
	}
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. EDGEWATCH_EXECUTION_MODE
	viper.SetEnvPrefix("edgewatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("discovery.timeout_ms", 5000)
	viper.SetDefault("discovery.min_confidence", 0.85)

	viper.SetDefault("upstream.timeout_ms", 5000)

	viper.SetDefault("monitor.tick_interval_ms", 1000)
	viper.SetDefault("monitor.quote_ttl_seconds", 10)
	viper.SetDefault("monitor.warn_interval_seconds", 30)
	viper.SetDefault("monitor.state_change_enabled", false)

	viper.SetDefault("detector.min_edge", 0.05)
	viper.SetDefault("detector.debounce_seconds", 30)
	viper.SetDefault("detector.prune_multiplier", 10)
	viper.SetDefault("detector.arb_min_profit", 0.01)
	viper.SetDefault("detector.default_fee_bps", 100)
	viper.SetDefault("detector.default_min_depth", 50)
	viper.SetDefault("detector.state_change_min_move", 0.03)

	viper.SetDefault("risk.initial_bankroll", 1000)
	viper.SetDefault("risk.max_daily_loss", 300)
	viper.SetDefault("risk.max_event_exposure", 200)
	viper.SetDefault("risk.max_category_exposure", 1000)
	viper.SetDefault("risk.max_positions_per_event", 2)
	viper.SetDefault("risk.allow_opposing", false)
	viper.SetDefault("risk.kelly_fraction", 0.25)
	viper.SetDefault("risk.max_bankroll_pct", 0.05)
	viper.SetDefault("risk.approval_cooldown_seconds", 60)

	viper.SetDefault("execution.mode", "paper")
	viper.SetDefault("execution.live_confirm", false)
	viper.SetDefault("execution.live_confirm_env", "EDGEWATCH_LIVE_CONFIRMED")
	viper.SetDefault("execution.kill_switch_file", "./killswitch")
	viper.SetDefault("execution.orders_per_minute", 6)
	viper.SetDefault("execution.orders_per_hour", 60)
	viper.SetDefault("execution.idempotency_ttl_seconds", 3600)
	viper.SetDefault("execution.min_price", 0.01)
	viper.SetDefault("execution.max_price", 0.99)
	viper.SetDefault("execution.min_size", 1)
	viper.SetDefault("execution.max_size", 500)
	viper.SetDefault("execution.submit_timeout_ms", 5000)
	viper.SetDefault("execution.submit_retries", 2)

	viper.SetDefault("shard.id", "shard-1")
	viper.SetDefault("shard.heartbeat_interval_seconds", 10)
	viper.SetDefault("shard.miss_threshold", 3)
	viper.SetDefault("shard.zombie_interval_seconds", 60)

	viper.SetDefault("breaker.failure_threshold", 10)
	viper.SetDefault("breaker.open_seconds", 30)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
