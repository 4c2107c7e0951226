package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"calendar-aggregator/core/constants"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GoogleAPI    OAuthClientConfig
	MicrosoftAPI MicrosoftConfig
	Security     SecurityConfig
	Calendar     CalendarConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
}

type MicrosoftConfig struct {
	OAuthClientConfig
	Tenant string
}

type SecurityConfig struct {
	// TokenEncryptionKey seeds the cipher for provider tokens at rest.
	TokenEncryptionKey string
}

type CalendarConfig struct {
	CacheBackend    string // postgres | redis
	ProviderTimeout time.Duration
	WarmerEnabled   bool
}

type LogConfig struct {
	Level string
	JSON  bool
}

var (
	instance *Config
	mu       sync.RWMutex
)

// Load reads .env (when present) and the process environment into a Config
// and installs it as the global instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host:    v.GetString("SERVER_HOST"),
			Port:    v.GetInt("SERVER_PORT"),
			BaseURL: v.GetString("SERVER_BASE_URL"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		GoogleAPI: OAuthClientConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		},
		MicrosoftAPI: MicrosoftConfig{
			OAuthClientConfig: OAuthClientConfig{
				ClientID:     v.GetString("MICROSOFT_CLIENT_ID"),
				ClientSecret: v.GetString("MICROSOFT_CLIENT_SECRET"),
			},
			Tenant: v.GetString("MICROSOFT_TENANT"),
		},
		Security: SecurityConfig{
			TokenEncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),
		},
		Calendar: CalendarConfig{
			CacheBackend:    strings.ToLower(v.GetString("CALENDAR_CACHE_BACKEND")),
			ProviderTimeout: v.GetDuration("CALENDAR_PROVIDER_TIMEOUT"),
			WarmerEnabled:   v.GetBool("CALENDAR_WARMER_ENABLED"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			JSON:  v.GetBool("LOG_JSON"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	instance = cfg
	mu.Unlock()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 7070)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "calendar")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MICROSOFT_TENANT", "common")
	v.SetDefault("CALENDAR_CACHE_BACKEND", "postgres")
	v.SetDefault("CALENDAR_PROVIDER_TIMEOUT", constants.DefaultProviderTimeout)
	v.SetDefault("CALENDAR_WARMER_ENABLED", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Security.TokenEncryptionKey == "" {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}
	switch c.Calendar.CacheBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("unknown CALENDAR_CACHE_BACKEND: %s", c.Calendar.CacheBackend)
	}
	if c.Calendar.ProviderTimeout <= 0 {
		c.Calendar.ProviderTimeout = constants.DefaultProviderTimeout
	}
	return nil
}

// Get returns the loaded config and panics when Load has not run.
func Get() *Config {
	cfg, ok := GetSafe()
	if !ok {
		panic("config not initialized")
	}
	return cfg
}

// GetSafe returns the loaded config and whether it has been initialized.
func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}

// Set installs cfg as the global instance.
func Set(cfg *Config) {
	mu.Lock()
	instance = cfg
	mu.Unlock()
}
