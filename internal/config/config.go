package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Gateway     GatewayConfig    `mapstructure:"gateway"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
	Engine      EngineConfig     `mapstructure:"engine"`
	Fusion      FusionConfig     `mapstructure:"fusion"`
	Validation  ValidationConfig `mapstructure:"validation"`
	Risk        RiskConfig       `mapstructure:"risk"`
	Lifecycle   LifecycleConfig  `mapstructure:"lifecycle"`
	Adaptive    AdaptiveConfig   `mapstructure:"adaptive"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GatewayConfig points at the data-gateway sidecar that serves candles, the
// economic-calendar safe-window check, and account equity.
type GatewayConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	UseStdout   bool   `mapstructure:"use_stdout"`
	ServiceName string `mapstructure:"service_name"`
}

// EngineConfig drives the per-symbol evaluation cycles.
type EngineConfig struct {
	Symbols          []string `mapstructure:"symbols"`
	Timeframes       []string `mapstructure:"timeframes"`
	PrimaryTimeframe string   `mapstructure:"primary_timeframe"`
	CandleLimit      int      `mapstructure:"candle_limit"`
	CycleInterval    string   `mapstructure:"cycle_interval"`
	PeerSymbols      []string `mapstructure:"peer_symbols"`
}

type FusionConfig struct {
	DecisionMargin float64 `mapstructure:"decision_margin"`
	// GateOverrides replaces the built-in regime compatibility table per
	// regime when set: regime name -> allowed model IDs.
	GateOverrides map[string][]string `mapstructure:"gate_overrides"`
}

type ValidationConfig struct {
	VolumeFactor      float64 `mapstructure:"volume_factor"`
	MinScore          float64 `mapstructure:"min_score"`
	CounterTrendScore float64 `mapstructure:"counter_trend_score"`
}

type RiskConfig struct {
	BaseRiskFraction    float64 `mapstructure:"base_risk_fraction"`
	MaxPositionFraction float64 `mapstructure:"max_position_fraction"`
	MaxLeverage         int     `mapstructure:"max_leverage"`
}

type LifecycleConfig struct {
	TTL           string `mapstructure:"ttl"`
	SweepInterval string `mapstructure:"sweep_interval"`
	UseRedis      bool   `mapstructure:"use_redis"`
}

type AdaptiveConfig struct {
	ConfirmationThreshold   int     `mapstructure:"confirmation_threshold"`
	ATRStopMultiplier       float64 `mapstructure:"atr_stop_multiplier"`
	ATRTakeProfitMultiplier float64 `mapstructure:"atr_take_profit_multiplier"`
	ModelWeight             float64 `mapstructure:"model_weight"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if _, err := time.ParseDuration(config.Engine.CycleInterval); err != nil {
		return nil, fmt.Errorf("invalid engine cycle_interval: %w", err)
	}
	if _, err := time.ParseDuration(config.Lifecycle.TTL); err != nil {
		return nil, fmt.Errorf("invalid lifecycle ttl: %w", err)
	}
	if _, err := time.ParseDuration(config.Lifecycle.SweepInterval); err != nil {
		return nil, fmt.Errorf("invalid lifecycle sweep_interval: %w", err)
	}
	if config.Risk.MaxPositionFraction <= 0 || config.Risk.MaxPositionFraction > 1 {
		return nil, fmt.Errorf("risk max_position_fraction must be in (0,1], got %v",
			config.Risk.MaxPositionFraction)
	}
	if config.Fusion.DecisionMargin < 0 {
		return nil, fmt.Errorf("fusion decision_margin must be >= 0, got %v",
			config.Fusion.DecisionMargin)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "signalforge")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("gateway.base_url", "http://localhost:3001")
	viper.SetDefault("gateway.timeout", 30)

	viper.SetDefault("telegram.enabled", false)
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.use_stdout", true)
	viper.SetDefault("telemetry.service_name", "signalforge")

	viper.SetDefault("engine.symbols", []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"})
	viper.SetDefault("engine.timeframes", []string{"5m", "15m", "1h", "4h", "1d"})
	viper.SetDefault("engine.primary_timeframe", "1h")
	viper.SetDefault("engine.candle_limit", 200)
	viper.SetDefault("engine.cycle_interval", "5m")
	viper.SetDefault("engine.peer_symbols", []string{"BTC/USDT", "ETH/USDT"})

	viper.SetDefault("fusion.decision_margin", 2.0)

	viper.SetDefault("validation.volume_factor", 1.2)
	viper.SetDefault("validation.min_score", 4.0)
	viper.SetDefault("validation.counter_trend_score", 7.0)

	viper.SetDefault("risk.base_risk_fraction", 0.01)
	viper.SetDefault("risk.max_position_fraction", 0.05)
	viper.SetDefault("risk.max_leverage", 5)

	viper.SetDefault("lifecycle.ttl", "4h")
	viper.SetDefault("lifecycle.sweep_interval", "10m")
	viper.SetDefault("lifecycle.use_redis", false)

	viper.SetDefault("adaptive.confirmation_threshold", 2)
	viper.SetDefault("adaptive.atr_stop_multiplier", 1.5)
	viper.SetDefault("adaptive.atr_take_profit_multiplier", 3.0)
	viper.SetDefault("adaptive.model_weight", 1.0)
}
