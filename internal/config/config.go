package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Ledger   Ledger   `mapstructure:"ledger"`
	Market   Market   `mapstructure:"market"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Ledger holds the configuration for the external economy provider.
type Ledger struct {
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"apiKey"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	DryRun         bool    `mapstructure:"dry_run"`
}

// Server holds the configuration for the status API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Market holds the configuration for the market engine.
type Market struct {
	CatalogPath   string   `mapstructure:"catalog_path"`
	FlushInterval int      `mapstructure:"flush_interval"` // seconds
	MaxRetries    int      `mapstructure:"max_retries"`
	PressureK     string   `mapstructure:"pressure_k"`
	StockRef      int64    `mapstructure:"stock_reference"`
	PriceScale    int32    `mapstructure:"price_scale"`
	TradeAtBound  bool     `mapstructure:"trade_at_bound"`
	Rotation      Rotation `mapstructure:"rotation"`
}

// Rotation holds the configuration for the periodic market refresh.
// An interval of 0 disables rotation entirely.
type Rotation struct {
	Interval      int    `mapstructure:"interval"` // seconds
	SelectionSize int    `mapstructure:"selection_size"`
	RecoveryRate  string `mapstructure:"recovery_rate"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("ledger.rate_limit", 20) // requests per second
	viper.SetDefault("ledger.rate_limit_burst", 5)
	viper.SetDefault("market.flush_interval", 60)
	viper.SetDefault("market.max_retries", 5)
	viper.SetDefault("market.pressure_k", "0.2")
	viper.SetDefault("market.stock_reference", 10)
	viper.SetDefault("market.price_scale", 2)
	viper.SetDefault("market.trade_at_bound", true)
	viper.SetDefault("market.rotation.recovery_rate", "0.5")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
