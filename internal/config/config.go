package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Lookup    LookupConfig    `yaml:"lookup" mapstructure:"lookup"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	SMTP      SMTPConfig      `yaml:"smtp" mapstructure:"smtp"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Sweeper   SweeperConfig   `yaml:"sweeper" mapstructure:"sweeper"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds reasoning-provider settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LookupConfig holds web lookup capability settings.
type LookupConfig struct {
	SearchBaseURL  string `yaml:"search_base_url" mapstructure:"search_base_url"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxScrapeChars int    `yaml:"max_scrape_chars" mapstructure:"max_scrape_chars"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
}

// AgentConfig configures the tool-calling agent.
type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
	MaxRetries    int `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffSecs   int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
}

// SMTPConfig configures the outbound mail transport.
type SMTPConfig struct {
	Host      string `yaml:"host" mapstructure:"host"`
	Port      int    `yaml:"port" mapstructure:"port"`
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
	FromName  string `yaml:"from_name" mapstructure:"from_name"`
}

// WorkerConfig configures the background worker.
type WorkerConfig struct {
	MaxConcurrentRuns int     `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
	PollIntervalSecs  int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	EnrichRatePerMin  float64 `yaml:"enrich_rate_per_min" mapstructure:"enrich_rate_per_min"`
	JobBudgetMins     int     `yaml:"job_budget_mins" mapstructure:"job_budget_mins"`
}

// SweeperConfig configures stuck-run recovery.
type SweeperConfig struct {
	StaleAfterMins int `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
}

// StaleAfter returns the staleness threshold as a duration.
func (c SweeperConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMins) * time.Minute
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("AGENTIQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("lookup.search_base_url", "https://api.duckduckgo.com")
	v.SetDefault("lookup.timeout_secs", 15)
	v.SetDefault("lookup.max_scrape_chars", 6000)
	v.SetDefault("lookup.user_agent", "AgentIQ-Enrichment/1.0")
	v.SetDefault("agent.max_iterations", 15)
	v.SetDefault("agent.max_retries", 3)
	v.SetDefault("agent.backoff_secs", 2)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("worker.max_concurrent_runs", 4)
	v.SetDefault("worker.poll_interval_secs", 5)
	v.SetDefault("worker.enrich_rate_per_min", 20)
	v.SetDefault("worker.job_budget_mins", 60)
	v.SetDefault("sweeper.stale_after_mins", 120)

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

// Validate checks that required settings are present for the given
// mode. The empty mode is the store path; enrichment and campaign modes
// validate their provider credentials only, so a store-less command
// like a one-off enrich does not demand a database URL.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required (AGENTIQ_STORE_DATABASE_URL)")
		}
	case "enrichment":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required for enrichment (AGENTIQ_ANTHROPIC_KEY)")
		}
	case "campaign":
		if c.SMTP.Host == "" {
			return eris.New("config: smtp.host is required for campaign sends (AGENTIQ_SMTP_HOST)")
		}
	}
	return nil
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
