package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	ScrapingDog ScrapingDogConfig `yaml:"scrapingdog" mapstructure:"scrapingdog"`
	Hunter      HunterConfig      `yaml:"hunter" mapstructure:"hunter"`
	Geocode     GeocodeConfig     `yaml:"geocode" mapstructure:"geocode"`
	Budget      BudgetConfig      `yaml:"budget" mapstructure:"budget"`
	Enrichment  EnrichmentConfig  `yaml:"enrichment" mapstructure:"enrichment"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ScrapingDogConfig holds maps-search provider settings.
type ScrapingDogConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	CostPerRequest float64 `yaml:"cost_per_request" mapstructure:"cost_per_request"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	MaxPages       int     `yaml:"max_pages" mapstructure:"max_pages"`
}

// HunterConfig holds the paid email-finder settings.
type HunterConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	CostPerSearch float64 `yaml:"cost_per_search" mapstructure:"cost_per_search"`
}

// GeocodeConfig holds the free-text geocoder settings.
type GeocodeConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// WindowLimits caps spend and request volume for one window kind.
// A zero value means unlimited for that dimension.
type WindowLimits struct {
	MaxRequests int     `yaml:"max_requests" mapstructure:"max_requests"`
	MaxCostUSD  float64 `yaml:"max_cost_usd" mapstructure:"max_cost_usd"`
}

// ProviderBudget holds the per-window limits for one provider.
type ProviderBudget struct {
	Day   WindowLimits `yaml:"day" mapstructure:"day"`
	Week  WindowLimits `yaml:"week" mapstructure:"week"`
	Month WindowLimits `yaml:"month" mapstructure:"month"`
}

// BudgetConfig configures the cost governor. Providers without an explicit
// entry fall back to Default. Strict aborts a job on budget exhaustion
// instead of degrading to free strategies.
type BudgetConfig struct {
	Default       ProviderBudget            `yaml:"default" mapstructure:"default"`
	Providers     map[string]ProviderBudget `yaml:"providers" mapstructure:"providers"`
	Strict        bool                      `yaml:"strict" mapstructure:"strict"`
	WarnThreshold float64                   `yaml:"warn_threshold" mapstructure:"warn_threshold"`
}

// Limits returns the budget for a provider, falling back to the default.
func (b BudgetConfig) Limits(provider string) ProviderBudget {
	if pb, ok := b.Providers[provider]; ok {
		return pb
	}
	return b.Default
}

// EnrichmentConfig configures the email waterfall.
type EnrichmentConfig struct {
	PolicyFile          string  `yaml:"policy_file" mapstructure:"policy_file"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxEmails           int     `yaml:"max_emails" mapstructure:"max_emails"`
	AttemptTimeoutSecs  int     `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	CacheTTLHours       int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	ScrapeTimeoutSecs   int     `yaml:"scrape_timeout_secs" mapstructure:"scrape_timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadgen.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("scrapingdog.key", "")
	v.SetDefault("scrapingdog.base_url", "https://api.scrapingdog.com/google_maps")
	v.SetDefault("scrapingdog.cost_per_request", 0.00165)
	v.SetDefault("scrapingdog.requests_per_sec", 10)
	v.SetDefault("scrapingdog.max_pages", 6)
	v.SetDefault("hunter.key", "")
	v.SetDefault("hunter.enabled", false)
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.cost_per_search", 0.049)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "leadgen-cli/1.0")
	v.SetDefault("geocode.cache_ttl_hours", 720)
	v.SetDefault("budget.default.day.max_requests", 10000)
	v.SetDefault("budget.default.week.max_requests", 50000)
	v.SetDefault("budget.default.month.max_requests", 200000)
	v.SetDefault("budget.default.month.max_cost_usd", 330)
	v.SetDefault("budget.warn_threshold", 0.8)
	v.SetDefault("enrichment.confidence_threshold", 0.7)
	v.SetDefault("enrichment.max_emails", 1)
	v.SetDefault("enrichment.attempt_timeout_secs", 20)
	v.SetDefault("enrichment.cache_ttl_hours", 720)
	v.SetDefault("enrichment.scrape_timeout_secs", 15)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
