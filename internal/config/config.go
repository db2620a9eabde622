// Package config loads the gateway configuration.
//
// Priority (highest to lowest):
//  1. Environment variables with GATEWAY_ prefix (e.g. GATEWAY_BACKEND_API_SECRET)
//  2. gateway.yaml (working directory, /etc/marketplace-gateway) or an explicit file
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/marketplace-gateway/pkg/cache"
	"github.com/Sternrassler/marketplace-gateway/pkg/client"
	"github.com/Sternrassler/marketplace-gateway/pkg/credentials"
	"github.com/Sternrassler/marketplace-gateway/pkg/invalidation"
	"github.com/Sternrassler/marketplace-gateway/pkg/logging"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of configuration environment variables.
const EnvPrefix = "GATEWAY"

// Config is the complete gateway configuration. It is read once at start.
type Config struct {
	Backend      BackendConfig
	Cache        CacheConfig
	Redis        RedisConfig
	Invalidation InvalidationConfig
	Server       ServerConfig
	Log          LogConfig
}

// BackendConfig describes the commerce REST API.
type BackendConfig struct {
	BaseURL      string        `validate:"required,url"`
	APIKey       string        `validate:"required_with=APISecret"`
	APISecret    string        `validate:"required_with=APIKey"`
	UserAgent    string        `validate:"required"`
	Timeout      time.Duration `validate:"gt=0"`
	RetryBudget  int           `validate:"gte=0,lte=10"`
	RetryBackoff time.Duration `validate:"gt=0"`
}

// CacheConfig bounds the fallback cache.
type CacheConfig struct {
	TTL      time.Duration `validate:"gt=0"`
	Capacity int           `validate:"gt=0"`
}

// RedisConfig enables the Redis invalidation sink when Addr is set.
type RedisConfig struct {
	Addr     string `validate:"omitempty,hostname_port"`
	Password string
	DB       int `validate:"gte=0,lte=15"`
}

// InvalidationConfig tunes the coupler.
type InvalidationConfig struct {
	Channel string        `validate:"required"`
	Timeout time.Duration `validate:"gt=0"`
}

// ServerConfig configures the proxy HTTP server.
type ServerConfig struct {
	Port            int           `validate:"gt=0,lte=65535"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Pretty bool
}

// Options control where configuration is read from.
type Options struct {
	// File is an explicit config file; empty searches for gateway.yaml.
	File string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.api_secret", "")
	v.SetDefault("backend.user_agent", credentials.DefaultUserAgent)
	v.SetDefault("backend.timeout", client.DefaultTimeout)
	v.SetDefault("backend.retry_budget", client.DefaultRetryConfig().Budget)
	v.SetDefault("backend.retry_backoff", client.DefaultRetryConfig().BaseBackoff)
	v.SetDefault("cache.ttl", cache.DefaultConfig().TTL)
	v.SetDefault("cache.capacity", cache.DefaultConfig().Capacity)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("invalidation.channel", invalidation.DefaultChannel)
	v.SetDefault("invalidation.timeout", invalidation.DefaultSinkTimeout)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
}

// Load reads and validates the configuration.
func Load(opts Options) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/marketplace-gateway")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		// No file is fine: defaults and environment apply.
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Backend: BackendConfig{
			BaseURL:      v.GetString("backend.base_url"),
			APIKey:       v.GetString("backend.api_key"),
			APISecret:    v.GetString("backend.api_secret"),
			UserAgent:    v.GetString("backend.user_agent"),
			Timeout:      v.GetDuration("backend.timeout"),
			RetryBudget:  v.GetInt("backend.retry_budget"),
			RetryBackoff: v.GetDuration("backend.retry_backoff"),
		},
		Cache: CacheConfig{
			TTL:      v.GetDuration("cache.ttl"),
			Capacity: v.GetInt("cache.capacity"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Invalidation: InvalidationConfig{
			Channel: v.GetString("invalidation.channel"),
			Timeout: v.GetDuration("invalidation.timeout"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Pretty: v.GetBool("log.pretty"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags and reports every invalid field.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ClientConfig maps the backend settings onto the gateway client.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL: c.Backend.BaseURL,
		Credentials: credentials.Credentials{
			Key:    c.Backend.APIKey,
			Secret: c.Backend.APISecret,
		},
		UserAgent: c.Backend.UserAgent,
		Timeout:   c.Backend.Timeout,
		Retry: client.RetryConfig{
			Budget:      c.Backend.RetryBudget,
			BaseBackoff: c.Backend.RetryBackoff,
		},
		Cache: cache.Config{
			TTL:      c.Cache.TTL,
			Capacity: c.Cache.Capacity,
		},
	}
}

// LoggingConfig maps the log settings onto pkg/logging.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// RedisEnabled reports whether the Redis sink should be used.
func (c Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}
