// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Vectorize VectorizeConfig `mapstructure:"vectorize"`
	Search    SearchConfig    `mapstructure:"search"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CrawlConfig governs the browsing session and catalog traversal.
type CrawlConfig struct {
	BaseURL            string              `mapstructure:"base_url"`
	UserAgent          string              `mapstructure:"user_agent"`
	WaitSeconds        int                 `mapstructure:"wait_seconds"`
	NavTimeoutSeconds  int                 `mapstructure:"nav_timeout_seconds"`
	NavMaxAttempts     int                 `mapstructure:"nav_max_attempts"`
	StatePath          string              `mapstructure:"state_path"`
	ExcludedRegions    []string            `mapstructure:"excluded_regions"`
	ExcludedSubRegions map[string][]string `mapstructure:"excluded_sub_regions"`
}

// ProviderConfig configures the embedding provider client.
type ProviderConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// VectorizeConfig governs batch sizing, retries, and the quality gate.
type VectorizeConfig struct {
	BatchSize        int     `mapstructure:"batch_size"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	NormMin          float64 `mapstructure:"norm_min"`
	NormMax          float64 `mapstructure:"norm_max"`
	ProviderRPS      float64 `mapstructure:"provider_rps"`
	PoolSize         int     `mapstructure:"pool_size"`
}

// SearchConfig tunes the hybrid ranking combination.
type SearchConfig struct {
	KeywordWeight       float64 `mapstructure:"keyword_weight"`
	VectorWeight        float64 `mapstructure:"vector_weight"`
	CandidateMultiplier int     `mapstructure:"candidate_multiplier"`
	IndexPath           string  `mapstructure:"index_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CORPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("crawl.user_agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("crawl.wait_seconds", 2)
	v.SetDefault("crawl.nav_timeout_seconds", 25)
	v.SetDefault("crawl.nav_max_attempts", 3)
	v.SetDefault("crawl.state_path", "data/crawl_state.json")
	v.SetDefault("provider.model", "text-embedding-3-small")
	v.SetDefault("provider.timeout_seconds", 30)
	v.SetDefault("vectorize.batch_size", 10)
	v.SetDefault("vectorize.max_retries", 3)
	v.SetDefault("vectorize.backoff_initial_ms", 1000)
	v.SetDefault("vectorize.backoff_max_ms", 16000)
	v.SetDefault("vectorize.norm_min", 1e-6)
	v.SetDefault("vectorize.norm_max", 10)
	v.SetDefault("vectorize.provider_rps", 2)
	v.SetDefault("vectorize.pool_size", 1)
	v.SetDefault("search.keyword_weight", 0.7)
	v.SetDefault("search.vector_weight", 0.3)
	v.SetDefault("search.candidate_multiplier", 3)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.NavMaxAttempts <= 0 {
		return fmt.Errorf("crawl.nav_max_attempts must be > 0")
	}
	if c.Vectorize.BatchSize <= 0 {
		return fmt.Errorf("vectorize.batch_size must be > 0")
	}
	if c.Vectorize.NormMin <= 0 || c.Vectorize.NormMax <= c.Vectorize.NormMin {
		return fmt.Errorf("vectorize norm band must satisfy 0 < norm_min < norm_max")
	}
	if c.Vectorize.PoolSize <= 0 {
		return fmt.Errorf("vectorize.pool_size must be > 0")
	}
	if c.Search.KeywordWeight < 0 || c.Search.VectorWeight < 0 {
		return fmt.Errorf("search weights must be >= 0")
	}
	if c.Search.KeywordWeight+c.Search.VectorWeight == 0 {
		return fmt.Errorf("at least one search weight must be > 0")
	}
	if c.Search.CandidateMultiplier < 1 {
		return fmt.Errorf("search.candidate_multiplier must be >= 1")
	}
	return nil
}

// RequireProvider fails when embedding-provider credentials are missing.
// Binaries that call the provider invoke this at startup so a misconfigured
// process aborts before doing any work.
func (c Config) RequireProvider() error {
	if c.Provider.APIKey == "" && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.api_key (or provider.base_url for a local provider) is required")
	}
	return nil
}

// ProviderTimeout converts the provider timeout config into a duration.
func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// NavTimeout converts the navigation timeout config into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Crawl.NavTimeoutSeconds) * time.Second
}

// Wait converts the polite-crawl wait config into a duration.
func (c Config) Wait() time.Duration {
	return time.Duration(c.Crawl.WaitSeconds) * time.Second
}
