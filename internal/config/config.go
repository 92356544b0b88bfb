package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Callback   CallbackConfig
	Speech     ProcessorConfig
	Media      ProcessorConfig
	Generative ProcessorConfig
	R2         R2Config
	Sweeper    SweeperConfig
	Resilience ResilienceConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CallbackConfig controls how webhook callback URLs are constructed. The
// query string of these URLs is the only reliable channel for passing the
// job id back.
type CallbackConfig struct {
	BaseURL string
}

// ProcessorConfig holds the connection settings for one third-party
// processor family, including the base URL its finished artifacts land under.
type ProcessorConfig struct {
	APIKey      string
	BaseURL     string
	ArtifactURL string
	Timeout     int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type SweeperConfig struct {
	Interval       time.Duration
	StaleThreshold time.Duration
	AbandonAfter   time.Duration
}

type ResilienceConfig struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	RateWindow       time.Duration
	RateLimit        int
}

type RateLimitConfig struct {
	DispatchPerMin int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("SPEECH_API_KEY")
	readSecret("MEDIA_API_KEY")
	readSecret("GENERATIVE_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("callback.base_url", "CALLBACK_BASE_URL")
	_ = viper.BindEnv("speech.api_key", "SPEECH_API_KEY")
	_ = viper.BindEnv("speech.base_url", "SPEECH_BASE_URL")
	_ = viper.BindEnv("speech.artifact_url", "SPEECH_ARTIFACT_URL")
	_ = viper.BindEnv("media.api_key", "MEDIA_API_KEY")
	_ = viper.BindEnv("media.base_url", "MEDIA_BASE_URL")
	_ = viper.BindEnv("media.artifact_url", "MEDIA_ARTIFACT_URL")
	_ = viper.BindEnv("generative.api_key", "GENERATIVE_API_KEY")
	_ = viper.BindEnv("generative.base_url", "GENERATIVE_BASE_URL")
	_ = viper.BindEnv("generative.artifact_url", "GENERATIVE_ARTIFACT_URL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("sweeper.interval", "SWEEPER_INTERVAL")
	_ = viper.BindEnv("sweeper.stale_threshold", "SWEEPER_STALE_THRESHOLD")
	_ = viper.BindEnv("sweeper.abandon_after", "SWEEPER_ABANDON_AFTER")
	_ = viper.BindEnv("ratelimit.dispatch_per_min", "RATELIMIT_DISPATCH_PER_MIN")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("callback.base_url", "http://localhost:8000")

	// Processor defaults
	viper.SetDefault("speech.base_url", "https://api.speechforge.io")
	viper.SetDefault("speech.artifact_url", "https://cdn.speechforge.io")
	viper.SetDefault("speech.timeout", 120)
	viper.SetDefault("media.base_url", "https://api.clipstitch.dev")
	viper.SetDefault("media.artifact_url", "https://cdn.clipstitch.dev")
	viper.SetDefault("media.timeout", 120)
	viper.SetDefault("generative.base_url", "https://api.dreamframe.ai")
	viper.SetDefault("generative.artifact_url", "https://cdn.dreamframe.ai")
	viper.SetDefault("generative.timeout", 120)

	// Sweeper defaults: scan every minute, treat processing jobs older than
	// 5 minutes as stale, give up entirely after 60 minutes
	viper.SetDefault("sweeper.interval", "1m")
	viper.SetDefault("sweeper.stale_threshold", "5m")
	viper.SetDefault("sweeper.abandon_after", "60m")

	// Resilience defaults
	viper.SetDefault("resilience.max_attempts", 3)
	viper.SetDefault("resilience.initial_backoff", "500ms")
	viper.SetDefault("resilience.max_backoff", "30s")
	viper.SetDefault("resilience.breaker_threshold", 5)
	viper.SetDefault("resilience.breaker_cooldown", "60s")
	viper.SetDefault("resilience.rate_window", "1m")
	viper.SetDefault("resilience.rate_limit", 60)

	viper.SetDefault("ratelimit.dispatch_per_min", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Callback: CallbackConfig{
			BaseURL: viper.GetString("callback.base_url"),
		},
		Speech: ProcessorConfig{
			APIKey:      viper.GetString("speech.api_key"),
			BaseURL:     viper.GetString("speech.base_url"),
			ArtifactURL: viper.GetString("speech.artifact_url"),
			Timeout:     viper.GetInt("speech.timeout"),
		},
		Media: ProcessorConfig{
			APIKey:      viper.GetString("media.api_key"),
			BaseURL:     viper.GetString("media.base_url"),
			ArtifactURL: viper.GetString("media.artifact_url"),
			Timeout:     viper.GetInt("media.timeout"),
		},
		Generative: ProcessorConfig{
			APIKey:      viper.GetString("generative.api_key"),
			BaseURL:     viper.GetString("generative.base_url"),
			ArtifactURL: viper.GetString("generative.artifact_url"),
			Timeout:     viper.GetInt("generative.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Sweeper: SweeperConfig{
			Interval:       viper.GetDuration("sweeper.interval"),
			StaleThreshold: viper.GetDuration("sweeper.stale_threshold"),
			AbandonAfter:   viper.GetDuration("sweeper.abandon_after"),
		},
		Resilience: ResilienceConfig{
			MaxAttempts:      viper.GetInt("resilience.max_attempts"),
			InitialBackoff:   viper.GetDuration("resilience.initial_backoff"),
			MaxBackoff:       viper.GetDuration("resilience.max_backoff"),
			BreakerThreshold: viper.GetInt("resilience.breaker_threshold"),
			BreakerCooldown:  viper.GetDuration("resilience.breaker_cooldown"),
			RateWindow:       viper.GetDuration("resilience.rate_window"),
			RateLimit:        viper.GetInt("resilience.rate_limit"),
		},
		RateLimit: RateLimitConfig{
			DispatchPerMin: viper.GetInt("ratelimit.dispatch_per_min"),
		},
	}

	return cfg, nil
}
