package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Ranking  RankingConfig  `mapstructure:"ranking"`
	Unfurl   UnfurlConfig   `mapstructure:"unfurl"`
	AI       AIConfig       `mapstructure:"ai"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		EngagementRaw string `mapstructure:"engagement_raw"`
		FeedServed    string `mapstructure:"feed_served"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	SessionSecret string          `mapstructure:"session_secret"`
	SessionTTL    time.Duration   `mapstructure:"session_ttl"`
	CookieName    string          `mapstructure:"cookie_name"`
	CookieSecure  bool            `mapstructure:"cookie_secure"`
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Default int           `mapstructure:"default"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RankingConfig struct {
	CandidateCap  int            `mapstructure:"candidate_cap"`
	EngagedWindow int            `mapstructure:"engaged_window"`
	DefaultLimit  int            `mapstructure:"default_limit"`
	MaxLimit      int            `mapstructure:"max_limit"`
	Reranker      RerankerConfig `mapstructure:"reranker"`
}

type RerankerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ModelPath string `mapstructure:"model_path"`
}

type UnfurlConfig struct {
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	OEmbedTimeout time.Duration `mapstructure:"oembed_timeout"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	MaxRedirects  int           `mapstructure:"max_redirects"`
	UserAgent     string        `mapstructure:"user_agent"`
}

type AIConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	CategorizeModel string        `mapstructure:"categorize_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindAliases()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate enforces the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	return nil
}

// bindAliases maps the deployment contract's flat env names onto config
// keys that AutomaticEnv would not reach on its own.
func bindAliases() {
	viper.BindEnv("auth.session_secret", "SESSION_SECRET", "AUTH_SESSION_SECRET")
	viper.BindEnv("ranking.reranker.enabled", "ENABLE_XGBOOST_RERANKER", "RANKING_RERANKER_ENABLED")
	viper.BindEnv("ranking.reranker.model_path", "XGBOOST_RERANKER_MODEL_PATH", "RANKING_RERANKER_MODEL_PATH")
	viper.BindEnv("server.port", "PORT", "SERVER_PORT")
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults (URL empty = sessions fall back to signed tokens only)
	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults (no brokers = analytics stream disabled)
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topics.engagement_raw", "lanefeed.engagement.raw")
	viper.SetDefault("kafka.topics.feed_served", "lanefeed.feed.served")

	// Auth defaults
	viper.SetDefault("auth.session_ttl", "720h")
	viper.SetDefault("auth.cookie_name", "lanefeed_session")
	viper.SetDefault("auth.cookie_secure", false)
	viper.SetDefault("auth.rate_limit.enabled", true)
	viper.SetDefault("auth.rate_limit.default", 300)
	viper.SetDefault("auth.rate_limit.window", "1m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Ranking defaults
	viper.SetDefault("ranking.candidate_cap", 400)
	viper.SetDefault("ranking.engaged_window", 48)
	viper.SetDefault("ranking.default_limit", 20)
	viper.SetDefault("ranking.max_limit", 50)
	viper.SetDefault("ranking.reranker.enabled", false)
	viper.SetDefault("ranking.reranker.model_path", "models/xgboost-reranker.json")

	// Unfurl defaults
	viper.SetDefault("unfurl.fetch_timeout", "8s")
	viper.SetDefault("unfurl.oembed_timeout", "5s")
	viper.SetDefault("unfurl.max_body_bytes", 750000)
	viper.SetDefault("unfurl.max_redirects", 4)
	viper.SetDefault("unfurl.user_agent", "Mozilla/5.0 (compatible; LanefeedBot/1.0; +https://lanefeed.app)")

	// AI provider defaults (base_url empty = categorization/embedding disabled)
	viper.SetDefault("ai.base_url", "")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("ai.categorize_model", "gpt-4o-mini")
	viper.SetDefault("ai.timeout", "10s")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
