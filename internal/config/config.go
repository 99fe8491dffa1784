package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Market    MarketConfig    `yaml:"market" mapstructure:"market"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Prefetch  PrefetchConfig  `yaml:"prefetch" mapstructure:"prefetch"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// OverpassConfig configures the OpenStreetMap POI source.
type OverpassConfig struct {
	Endpoint     string  `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxParallel  int     `yaml:"max_parallel" mapstructure:"max_parallel"`
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	ResultLimit  int     `yaml:"result_limit" mapstructure:"result_limit"`
	IncludeMinor bool    `yaml:"include_minor" mapstructure:"include_minor"`
}

// MarketConfig configures listing sources and the price estimator.
type MarketConfig struct {
	TimeoutSecs int            `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int            `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec  float64        `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RegionsFile string         `yaml:"regions_file" mapstructure:"regions_file"`
	Sources     []SourceConfig `yaml:"sources" mapstructure:"sources"`
}

// SourceConfig describes one listing source. URL may contain the
// placeholders {lat}, {lng}, {radius} and {region}.
type SourceConfig struct {
	Name      string            `yaml:"name" mapstructure:"name"`
	Type      string            `yaml:"type" mapstructure:"type"` // html or api
	URL       string            `yaml:"url" mapstructure:"url"`
	Headers   map[string]string `yaml:"headers" mapstructure:"headers"`
	Selectors SelectorConfig    `yaml:"selectors" mapstructure:"selectors"`
	Fields    FieldConfig       `yaml:"fields" mapstructure:"fields"`
}

// SelectorConfig holds CSS selectors for HTML listing pages.
type SelectorConfig struct {
	Item    string `yaml:"item" mapstructure:"item"`
	Title   string `yaml:"title" mapstructure:"title"`
	Price   string `yaml:"price" mapstructure:"price"`
	Area    string `yaml:"area" mapstructure:"area"`
	Address string `yaml:"address" mapstructure:"address"`
	Link    string `yaml:"link" mapstructure:"link"`
}

// FieldConfig maps JSON listing API fields.
type FieldConfig struct {
	Items   string `yaml:"items" mapstructure:"items"`
	Title   string `yaml:"title" mapstructure:"title"`
	Price   string `yaml:"price" mapstructure:"price"`
	Area    string `yaml:"area" mapstructure:"area"`
	Address string `yaml:"address" mapstructure:"address"`
	URL     string `yaml:"url" mapstructure:"url"`
}

// AnthropicConfig holds Anthropic API settings for analysis summaries.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Backend           string        `yaml:"backend" mapstructure:"backend"` // memory or redis
	AmenityTTL        time.Duration `yaml:"amenity_ttl" mapstructure:"amenity_ttl"`
	InfrastructureTTL time.Duration `yaml:"infrastructure_ttl" mapstructure:"infrastructure_ttl"`
	MarketTTL         time.Duration `yaml:"market_ttl" mapstructure:"market_ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	RedisAddr         string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword     string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB           int           `yaml:"redis_db" mapstructure:"redis_db"`
	RedisPrefix       string        `yaml:"redis_prefix" mapstructure:"redis_prefix"`
}

// PrefetchConfig configures speculative cache warming.
type PrefetchConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	Tick        time.Duration `yaml:"tick" mapstructure:"tick"`
	Batch       int           `yaml:"batch" mapstructure:"batch"`
	MaxQueue    int           `yaml:"max_queue" mapstructure:"max_queue"`
	MaxAge      time.Duration `yaml:"max_age" mapstructure:"max_age"`
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout"`
	Sweep       string        `yaml:"sweep" mapstructure:"sweep"`
}

// AnalysisConfig holds request defaults.
type AnalysisConfig struct {
	DefaultRadius float64 `yaml:"default_radius" mapstructure:"default_radius"`
	MaxRadius     float64 `yaml:"max_radius" mapstructure:"max_radius"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROPERTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 30)
	v.SetDefault("overpass.rate_per_sec", 2)
	v.SetDefault("overpass.max_parallel", 2)
	v.SetDefault("overpass.concurrency", 4)
	v.SetDefault("overpass.max_retries", 2)
	v.SetDefault("overpass.result_limit", 50)
	v.SetDefault("overpass.include_minor", false)
	v.SetDefault("market.timeout_secs", 15)
	v.SetDefault("market.max_retries", 2)
	v.SetDefault("market.rate_per_sec", 1)
	v.SetDefault("market.regions_file", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 600)
	v.SetDefault("anthropic.timeout_secs", 20)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.amenity_ttl", "10m")
	v.SetDefault("cache.infrastructure_ttl", "30m")
	v.SetDefault("cache.market_ttl", "30m")
	v.SetDefault("cache.sweep_interval", "5m")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.redis_prefix", "property:")
	v.SetDefault("prefetch.enabled", true)
	v.SetDefault("prefetch.tick", "30s")
	v.SetDefault("prefetch.batch", 5)
	v.SetDefault("prefetch.max_queue", 50)
	v.SetDefault("prefetch.max_age", "10m")
	v.SetDefault("prefetch.task_timeout", "60s")
	v.SetDefault("prefetch.sweep", "@every 5m")
	v.SetDefault("analysis.default_radius", 1000)
	v.SetDefault("analysis.max_radius", 30000)
}

// Validate checks the settings a command mode depends on. mode is "serve"
// or "analyze".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "analyze":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Overpass.Endpoint == "" {
		errs = append(errs, "overpass.endpoint is required")
	}
	if c.Overpass.Concurrency < 1 || c.Overpass.Concurrency > 16 {
		errs = append(errs, "overpass.concurrency must be between 1 and 16")
	}
	if c.Overpass.RatePerSec <= 0 {
		errs = append(errs, "overpass.rate_per_sec must be > 0")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.backend must be memory or redis, got %q", c.Cache.Backend))
	}
	if c.Prefetch.Enabled {
		if c.Prefetch.Tick <= 0 {
			errs = append(errs, "prefetch.tick must be > 0")
		}
		if c.Prefetch.Batch < 1 || c.Prefetch.MaxQueue < 1 {
			errs = append(errs, "prefetch.batch and prefetch.max_queue must be >= 1")
		}
	}
	for i, src := range c.Market.Sources {
		if src.Name == "" || src.URL == "" {
			errs = append(errs, fmt.Sprintf("market.sources[%d]: name and url are required", i))
		}
		if src.Type != "html" && src.Type != "api" {
			errs = append(errs, fmt.Sprintf("market.sources[%d]: type must be html or api", i))
		}
	}
	if c.Analysis.DefaultRadius <= 0 || c.Analysis.MaxRadius < c.Analysis.DefaultRadius {
		errs = append(errs, "analysis.default_radius must be > 0 and <= analysis.max_radius")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
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
