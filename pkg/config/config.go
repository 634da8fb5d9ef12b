// Package config loads the process configuration from defaults, an optional
// YAML file, an optional dotenv file and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the immutable configuration value handed to every component
// at construction time.
type Config struct {
	TMDB    TMDBConfig
	Fetch   FetchConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	Log     LogConfig
	Metrics MetricsConfig

	// Endpoints maps (endpoint, item type) to path and default params.
	Endpoints Endpoints `validate:"required"`
}

type TMDBConfig struct {
	BaseURL string `validate:"required,url"`
	APIKey  string `validate:"required"`

	// Timeout is the per-request client timeout. A timeout counts as a
	// failed attempt.
	Timeout time.Duration `validate:"gt=0"`

	// RequestsPerSecond caps the aggregate request rate (0 disables).
	RequestsPerSecond float64 `validate:"gte=0"`
	Burst             int     `validate:"gte=0"`
}

type FetchConfig struct {
	PageConcurrency int           `validate:"min=1"`
	PageCeiling     int           `validate:"min=1"`
	PagePace        time.Duration `validate:"gte=0"`
	PageTimeout     time.Duration `validate:"gt=0"`

	DetailConcurrency int `validate:"min=1"`
	MaxConns          int `validate:"min=1"`
	MaxIdleConns      int `validate:"min=0"`

	RetryAttempts       int           `validate:"min=1"`
	RetryInitialBackoff time.Duration `validate:"gte=0"`
	RetryMaxJitter      time.Duration `validate:"gte=0"`

	// RetryClientErrors retries 4xx replies other than 408/429 like any
	// other failure. When false they end the fetch after one attempt.
	RetryClientErrors bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

type MongoConfig struct {
	User     string
	Password string
	Host     string
	Port     int `validate:"gte=0,lte=65535"`
	Database string
}

// Enabled reports whether a MongoDB target is configured.
func (m MongoConfig) Enabled() bool {
	return m.Host != "" && m.Database != ""
}

// URI builds the connection string for the configured MongoDB.
func (m MongoConfig) URI() string {
	u := url.URL{
		Scheme: "mongodb",
		Host:   fmt.Sprintf("%s:%d", m.Host, m.Port),
		Path:   "/" + m.Database,
	}
	if m.User != "" {
		u.User = url.UserPassword(m.User, m.Password)
	}
	return u.String()
}

type LogConfig struct {
	Level      string `validate:"oneof=debug info warn warning error"`
	Pretty     bool
	File       string
	MaxSizeMB  int `validate:"gte=0"`
	MaxBackups int `validate:"gte=0"`
}

type MetricsConfig struct {
	Addr string
}

// LoadOptions names the optional files Load reads.
type LoadOptions struct {
	// ConfigFile is a YAML file. Missing is not an error.
	ConfigFile string

	// EnvFile is a dotenv file whose values fill unset environment
	// variables. Missing is not an error.
	EnvFile string
}

// Load resolves the configuration. Precedence: environment, config file,
// defaults. Keys map to environment variables by upper-casing and replacing
// dots, e.g. tmdb.api_key -> TMDB_API_KEY.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := loadDotEnv(opts.EnvFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := fromViper(v)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the defaults without reading files or the environment.
// The API key is left empty.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

// Validate checks struct constraints on cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		TMDB: TMDBConfig{
			BaseURL:           strings.TrimRight(v.GetString("tmdb.base_url"), "/"),
			APIKey:            v.GetString("tmdb.api_key"),
			Timeout:           v.GetDuration("tmdb.timeout"),
			RequestsPerSecond: v.GetFloat64("tmdb.requests_per_second"),
			Burst:             v.GetInt("tmdb.burst"),
		},
		Fetch: FetchConfig{
			PageConcurrency:     v.GetInt("fetch.page_concurrency"),
			PageCeiling:         v.GetInt("fetch.page_ceiling"),
			PagePace:            v.GetDuration("fetch.page_pace"),
			PageTimeout:         v.GetDuration("fetch.page_timeout"),
			DetailConcurrency:   v.GetInt("fetch.detail_concurrency"),
			MaxConns:            v.GetInt("fetch.max_conns"),
			MaxIdleConns:        v.GetInt("fetch.max_idle_conns"),
			RetryAttempts:       v.GetInt("fetch.retry_attempts"),
			RetryInitialBackoff: v.GetDuration("fetch.retry_initial_backoff"),
			RetryMaxJitter:      v.GetDuration("fetch.retry_max_jitter"),
			RetryClientErrors:   v.GetBool("fetch.retry_client_errors"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Mongo: MongoConfig{
			User:     v.GetString("mongo.user"),
			Password: v.GetString("mongo.password"),
			Host:     v.GetString("mongo.host"),
			Port:     v.GetInt("mongo.port"),
			Database: v.GetString("mongo.db"),
		},
		Log: LogConfig{
			Level:      strings.ToLower(v.GetString("log.level")),
			Pretty:     v.GetBool("log.pretty"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Endpoints: DefaultEndpoints(),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.timeout", 30*time.Second)
	v.SetDefault("tmdb.requests_per_second", 0)
	v.SetDefault("tmdb.burst", 0)

	v.SetDefault("fetch.page_concurrency", 10)
	v.SetDefault("fetch.page_ceiling", 500)
	v.SetDefault("fetch.page_pace", 500*time.Millisecond)
	v.SetDefault("fetch.page_timeout", 15*time.Second)
	v.SetDefault("fetch.detail_concurrency", 10)
	v.SetDefault("fetch.max_conns", 200)
	v.SetDefault("fetch.max_idle_conns", 50)
	v.SetDefault("fetch.retry_attempts", 3)
	v.SetDefault("fetch.retry_initial_backoff", time.Second)
	v.SetDefault("fetch.retry_max_jitter", 500*time.Millisecond)
	v.SetDefault("fetch.retry_client_errors", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mongo.user", "")
	v.SetDefault("mongo.password", "")
	v.SetDefault("mongo.host", "")
	v.SetDefault("mongo.port", 27017)
	v.SetDefault("mongo.db", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 1)
	v.SetDefault("log.max_backups", 5)

	v.SetDefault("metrics.addr", "")
}

// loadDotEnv copies KEY=VALUE pairs from path into the environment without
// overriding variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}

	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}
