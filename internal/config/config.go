// Package config loads application configuration from file and environment
// and owns the global logger setup.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/enrich-cli/pkg/closecrm"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Close     CloseConfig     `yaml:"close" mapstructure:"close"`
	Apollo    ApolloConfig    `yaml:"apollo" mapstructure:"apollo"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Matching  MatchingConfig  `yaml:"matching" mapstructure:"matching"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CloseConfig holds Close CRM credentials and lead-source settings.
type CloseConfig struct {
	Key           string            `yaml:"key" mapstructure:"key"`
	BaseURL       string            `yaml:"base_url" mapstructure:"base_url"`
	SavedSearchID string            `yaml:"saved_search_id" mapstructure:"saved_search_id"`
	Fields        closecrm.FieldMap `yaml:"fields" mapstructure:"fields"`
	WriteBack     bool              `yaml:"write_back" mapstructure:"write_back"`
}

// ApolloConfig holds provider API settings.
type ApolloConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	RateLimitMillis int    `yaml:"rate_limit_millis" mapstructure:"rate_limit_millis"`
	BreakerFailures int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldown int    `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// AnthropicConfig holds Anthropic API settings for lead recovery.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	Model         string `yaml:"model" mapstructure:"model"`
	MinConfidence int    `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// MatchingConfig points at the match-policy overlay file.
type MatchingConfig struct {
	PolicyPath string `yaml:"policy_path" mapstructure:"policy_path"`
}

// EnrichConfig tunes the enrichment pipeline.
type EnrichConfig struct {
	Concurrency      int      `yaml:"concurrency" mapstructure:"concurrency"`
	ContactTarget    int      `yaml:"contact_target" mapstructure:"contact_target"`
	UnlockBudget     int      `yaml:"unlock_budget" mapstructure:"unlock_budget"`
	PhoneTimeoutMins int      `yaml:"phone_timeout_mins" mapstructure:"phone_timeout_mins"`
	Titles           []string `yaml:"titles" mapstructure:"titles"`
	WebhookURL       string   `yaml:"webhook_url" mapstructure:"webhook_url"`
	UnlockIntervalMS int      `yaml:"unlock_interval_millis" mapstructure:"unlock_interval_millis"`
	OrgFallbackLimit int      `yaml:"org_fallback_limit" mapstructure:"org_fallback_limit"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "enrich.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("close.base_url", "https://api.close.com/api/v1")
	v.SetDefault("apollo.base_url", "https://api.apollo.io/v1")
	v.SetDefault("apollo.rate_limit_millis", 1000)
	v.SetDefault("apollo.breaker_failures", 5)
	v.SetDefault("apollo.breaker_cooldown_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.min_confidence", 7)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("enrich.contact_target", 6)
	v.SetDefault("enrich.unlock_budget", 6)
	v.SetDefault("enrich.phone_timeout_mins", 30)
	v.SetDefault("enrich.unlock_interval_millis", 1000)
	v.SetDefault("enrich.org_fallback_limit", 2)
	v.SetDefault("enrich.titles", []string{})

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
