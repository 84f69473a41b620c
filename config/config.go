package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log          Logger         `mapstructure:"logger"`
	DB           Database       `mapstructure:"database"`
	API          API            `mapstructure:"api"`
	Cache        Cache          `mapstructure:"cache"`
	YahooFinance YahooFinance   `mapstructure:"yahoo_finance"`
	Gemini       GeminiConfig   `mapstructure:"gemini"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
	Scheduler    Scheduler      `mapstructure:"scheduler"`
	Backtest     Backtest       `mapstructure:"backtest"`
	Strategy     Strategy       `mapstructure:"strategy"`
	Predictor    Predictor      `mapstructure:"predictor"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type YahooFinance struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
	MaxConcurrentFetch  int           `mapstructure:"max_concurrent_fetch"`
	CacheExpiration     time.Duration `mapstructure:"cache_expiration"`
}

type GeminiConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	BaseModel           string        `mapstructure:"base_model"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
	MaxTokenPerMinute   int           `mapstructure:"max_token_per_minute"`
}

type TelegramConfig struct {
	Enabled                   bool          `mapstructure:"enabled"`
	BotToken                  string        `mapstructure:"bot_token"`
	ChatID                    int64         `mapstructure:"chat_id"`
	TimeoutDuration           time.Duration `mapstructure:"timeout_duration"`
	MaxGlobalRequestPerSecond int           `mapstructure:"max_global_request_per_second"`
}

type Scheduler struct {
	// DailyScanSpec is a cron expression evaluated in the market time zone.
	DailyScanSpec   string        `mapstructure:"daily_scan_spec"`
	TimeoutDuration time.Duration `mapstructure:"timeout_duration"`
}

// Backtest holds the simulation account and calendar knobs.
type Backtest struct {
	InitialCash    float64  `mapstructure:"initial_cash"`
	TransactionFee float64  `mapstructure:"transaction_fee"`
	StartDate      string   `mapstructure:"start_date"`
	EndDate        string   `mapstructure:"end_date"`
	Frequency      string   `mapstructure:"frequency"` // "daily" or "business"
	Universe       []string `mapstructure:"universe"`
	MarketIndex    string   `mapstructure:"market_index"`
	WarmupDays     int      `mapstructure:"warmup_days"`
}

// Strategy holds the sizing, exit rule and entry filter knobs. Variant
// selects which exit rules are active: "classic", "super" or "trailing".
type Strategy struct {
	Variant               string  `mapstructure:"variant"`
	MaxPositions          int     `mapstructure:"max_positions"`
	AllocationPct         float64 `mapstructure:"allocation_pct"`
	StopLossPct           float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct         float64 `mapstructure:"take_profit_pct"`
	ATRStopMultiplier     float64 `mapstructure:"atr_stop_multiplier"`
	TimeStopDays          int     `mapstructure:"time_stop_days"`
	TrailingActivationPct float64 `mapstructure:"trailing_activation_pct"`
	StrongDropTolerance   float64 `mapstructure:"strong_drop_tolerance"`
	WeakDropTolerance     float64 `mapstructure:"weak_drop_tolerance"`
	SuperProfitPct        float64 `mapstructure:"super_profit_pct"`
	SuperDropPct          float64 `mapstructure:"super_drop_pct"`
	MABreakoutBuffer      float64 `mapstructure:"ma_breakout_buffer"`
	TopKMomentum          int     `mapstructure:"top_k_momentum"`
	MarketRegimeFilter    bool    `mapstructure:"market_regime_filter"`
	EntryCooldownDays     int     `mapstructure:"entry_cooldown_days"`
	StopLossCooldownDays  int     `mapstructure:"stop_loss_cooldown_days"`
}

// Predictor holds the signal model knobs. Variant "prob" scores a
// continuation probability, "roi" scores a predicted max ROI percentage.
type Predictor struct {
	Variant             string  `mapstructure:"variant"`
	LookBack            int     `mapstructure:"look_back"`
	ForecastDays        int     `mapstructure:"forecast_days"`
	TargetROI           float64 `mapstructure:"target_roi"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	RetrainIntervalDays int     `mapstructure:"retrain_interval_days"`
	MaxTrainSamples     int     `mapstructure:"max_train_samples"`
	Epochs              int     `mapstructure:"epochs"`
	LearningRate        float64 `mapstructure:"learning_rate"`
	ModelDir            string  `mapstructure:"model_dir"`
}

func Load() (*Config, error) {
	// .env is optional for local development
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills the zero values the simulation cannot run without.
func (c *Config) ApplyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Backtest.Frequency == "" {
		c.Backtest.Frequency = "daily"
	}
	if c.Backtest.WarmupDays <= 0 {
		c.Backtest.WarmupDays = 1000
	}
	if c.Strategy.Variant == "" {
		c.Strategy.Variant = "trailing"
	}
	if c.Strategy.MaxPositions <= 0 {
		c.Strategy.MaxPositions = 1
	}
	if c.Strategy.AllocationPct <= 0 {
		c.Strategy.AllocationPct = 1.0
	}
	if c.Strategy.EntryCooldownDays <= 0 {
		c.Strategy.EntryCooldownDays = 1
	}
	if c.Predictor.Variant == "" {
		c.Predictor.Variant = "prob"
	}
	if c.Predictor.LookBack <= 0 {
		c.Predictor.LookBack = 60
	}
	if c.Predictor.ForecastDays <= 0 {
		c.Predictor.ForecastDays = 10
	}
	if c.Predictor.RetrainIntervalDays <= 0 {
		c.Predictor.RetrainIntervalDays = 20
	}
	if c.Predictor.MaxTrainSamples <= 0 {
		c.Predictor.MaxTrainSamples = 500
	}
	if c.Predictor.Epochs <= 0 {
		c.Predictor.Epochs = 10
	}
	if c.Predictor.LearningRate <= 0 {
		c.Predictor.LearningRate = 0.05
	}
}
