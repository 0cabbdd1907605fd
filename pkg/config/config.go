package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Ledger   LedgerConfig
	Mirror   MirrorConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig tunes material-flow thresholds and chain behaviour.
type LedgerConfig struct {
	BatchThresholdGrams    float64
	BatchWindow            time.Duration
	DefaultItemWeightGrams float64
	ProjectStartFraction   float64
	TopContributorFraction float64
	AppendRetries          int
	ChainCacheTTL          time.Duration
}

// MirrorConfig controls the external document mirror workers.
type MirrorConfig struct {
	Enabled    bool
	Namespace  string
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		BatchThresholdGrams:    v.GetFloat64("LEDGER_BATCH_THRESHOLD_GRAMS"),
		BatchWindow:            parseDuration(v.GetString("LEDGER_BATCH_WINDOW"), 7*24*time.Hour),
		DefaultItemWeightGrams: v.GetFloat64("LEDGER_DEFAULT_ITEM_WEIGHT_GRAMS"),
		ProjectStartFraction:   v.GetFloat64("LEDGER_PROJECT_START_FRACTION"),
		TopContributorFraction: v.GetFloat64("LEDGER_TOP_CONTRIBUTOR_FRACTION"),
		AppendRetries:          v.GetInt("LEDGER_APPEND_RETRIES"),
		ChainCacheTTL:          parseDuration(v.GetString("LEDGER_CHAIN_CACHE_TTL"), 30*time.Second),
	}

	cfg.Mirror = MirrorConfig{
		Enabled:    v.GetBool("MIRROR_ENABLED"),
		Namespace:  v.GetString("MIRROR_NAMESPACE"),
		Workers:    v.GetInt("MIRROR_WORKERS"),
		BufferSize: v.GetInt("MIRROR_BUFFER_SIZE"),
		MaxRetries: v.GetInt("MIRROR_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("MIRROR_RETRY_DELAY"), 2*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "regenworks")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "regenworks-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_BATCH_THRESHOLD_GRAMS", 1000.0)
	v.SetDefault("LEDGER_BATCH_WINDOW", "168h")
	v.SetDefault("LEDGER_DEFAULT_ITEM_WEIGHT_GRAMS", 25.0)
	v.SetDefault("LEDGER_PROJECT_START_FRACTION", 0.1)
	v.SetDefault("LEDGER_TOP_CONTRIBUTOR_FRACTION", 0.1)
	v.SetDefault("LEDGER_APPEND_RETRIES", 3)
	v.SetDefault("LEDGER_CHAIN_CACHE_TTL", "30s")

	v.SetDefault("MIRROR_ENABLED", false)
	v.SetDefault("MIRROR_NAMESPACE", "ledger")
	v.SetDefault("MIRROR_WORKERS", 2)
	v.SetDefault("MIRROR_BUFFER_SIZE", 64)
	v.SetDefault("MIRROR_MAX_RETRIES", 3)
	v.SetDefault("MIRROR_RETRY_DELAY", "2s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
