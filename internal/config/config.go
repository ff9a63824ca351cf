package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"

	AssetBackendLocal = "local"
	AssetBackendS3    = "s3"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Log struct {
		Level string
	}
	Auth struct {
		SessionSecret     string
		SessionTTLMinutes int
		CookieSecure      bool
	}
	Session struct {
		Backend string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Assets struct {
		Backend         string
		Dir             string
		URLPrefix       string
		MaxBytes        int64
		CleanupOnDelete bool
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	_ = godotenv.Load() // optional .env, never overrides the real environment

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("NOVELHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:9005")
	v.SetDefault("database.path", "data/novelhub.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.sessionsecret", "")
	v.SetDefault("auth.sessionttlminutes", 24*60)
	v.SetDefault("auth.cookiesecure", false)
	v.SetDefault("session.backend", SessionBackendMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("assets.backend", AssetBackendLocal)
	v.SetDefault("assets.dir", "public/uploads")
	v.SetDefault("assets.urlprefix", "/uploads")
	v.SetDefault("assets.maxbytes", 20<<20)
	v.SetDefault("assets.cleanupondelete", false)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "covers")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.SessionSecret) == "" {
		return fmt.Errorf("auth session secret is required")
	}
	if c.Auth.SessionTTLMinutes <= 0 {
		return fmt.Errorf("auth session ttl must be positive, got %d", c.Auth.SessionTTLMinutes)
	}
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Assets.Backend {
	case AssetBackendLocal:
	case AssetBackendS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the s3 asset backend")
		}
	default:
		return fmt.Errorf("unknown asset backend %q", c.Assets.Backend)
	}
	if c.Assets.MaxBytes <= 0 {
		return fmt.Errorf("assets max bytes must be positive")
	}
	return nil
}
