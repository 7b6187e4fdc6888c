package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates every tunable the service reads at boot.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Removal    RemovalConfig    `mapstructure:"removal"`
	Generation GenerationConfig `mapstructure:"generation"`
	Backdrops  BackdropConfig   `mapstructure:"backdrops"`
	Retention  RetentionConfig  `mapstructure:"retention"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	JWTAudience string `mapstructure:"jwt_audience"`
}

type UploadConfig struct {
	MaxSize int64 `mapstructure:"max_size"`
	// MaxDimension clamps the longest side of decoded uploads before
	// the pipeline runs. Zero disables the clamp.
	MaxDimension int `mapstructure:"max_dimension"`
}

type RemovalConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// FeatherSigma softens the edges produced by the local fallback.
	// Zero keeps the hard threshold rule.
	FeatherSigma float64 `mapstructure:"feather_sigma"`
}

type GenerationConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type BackdropConfig struct {
	Dir string `mapstructure:"dir"`
}

type RetentionConfig struct {
	// MaxAge is how long processing logs are kept; zero disables the purge job.
	MaxAge   time.Duration `mapstructure:"max_age"`
	Schedule string        `mapstructure:"schedule"`
}

// Load reads config.yaml from the working directory (optional) and
// environment variables prefixed with FITROOM_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("fitroom")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.dsn", "host=postgres user=postgres password=postgres dbname=fitroom port=5432 sslmode=disable")

	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "dev-secret")
	v.SetDefault("auth.jwt_audience", "")

	v.SetDefault("upload.max_size", int64(10<<20))
	v.SetDefault("upload.max_dimension", 2048)

	// Endpoint and key defaults are empty so every key is visible to the
	// FITROOM_ environment override path.
	v.SetDefault("removal.endpoint", "")
	v.SetDefault("removal.api_key", "")
	v.SetDefault("removal.timeout", 30*time.Second)
	v.SetDefault("removal.feather_sigma", 0.0)

	v.SetDefault("generation.base_url", "")
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.timeout", 120*time.Second)
	v.SetDefault("generation.model", "tryon-v1")

	v.SetDefault("backdrops.dir", "./assets/backdrops")

	v.SetDefault("retention.max_age", 30*24*time.Hour)
	v.SetDefault("retention.schedule", "0 3 * * *")
}
