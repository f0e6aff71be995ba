package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Steam     SteamConfig     `mapstructure:"steam"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	SessionSecret string        `mapstructure:"session_secret"`
	CallbackURL   string        `mapstructure:"callback_url"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

// Steam provider credentials and per-call deadline
type SteamConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// RateLimitConfig mirrors the provider's published quota. The limit is
// shared across every user of the deployment.
type RateLimitConfig struct {
	Window   time.Duration `mapstructure:"window"`
	MaxCalls int           `mapstructure:"max_calls"`
	MaxWait  time.Duration `mapstructure:"max_wait"`
}

type ScanConfig struct {
	Cooldown      time.Duration `mapstructure:"cooldown"`
	FanOut        int           `mapstructure:"fanout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:8080", "http://localhost:3000"})

	viper.SetDefault("database.path", "./overachiever.db")

	viper.SetDefault("auth.jwt_secret", "dev-secret-change-in-production")
	viper.SetDefault("auth.session_secret", "dev-session-secret-change-in-production")
	viper.SetDefault("auth.callback_url", "http://localhost:8080/auth/steam/callback")
	viper.SetDefault("auth.token_ttl", 7*24*time.Hour)

	viper.SetDefault("steam.base_url", "https://api.steampowered.com")
	viper.SetDefault("steam.call_timeout", 15*time.Second)

	// Steam allows 100k calls per day; the defaults stay well under that
	viper.SetDefault("ratelimit.window", 5*time.Minute)
	viper.SetDefault("ratelimit.max_calls", 200)
	viper.SetDefault("ratelimit.max_wait", 2*time.Minute)

	viper.SetDefault("scan.cooldown", time.Hour)
	viper.SetDefault("scan.fanout", 4)
	viper.SetDefault("scan.retry_attempts", 3)
	viper.SetDefault("scan.retry_backoff", 500*time.Millisecond)

	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.interval", 6*time.Hour)

	viper.BindEnv("steam.api_key", "STEAM_API_KEY")
	viper.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// Allow environment variables
	viper.SetEnvPrefix("OVERACHIEVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults
	}

	// Read local config file for overrides (ignored by git)
	viper.SetConfigName("config.local")
	viper.MergeInConfig()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
