package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	DBPath       string
	CacheBackend string
	RedisAddr    string
	DocumentTTL  time.Duration

	GCPProjectID    string
	CredentialsFile string
	StorageBucket   string
	SignedURLTTL    time.Duration

	IdentityAPIKey  string
	IdentityBaseURL string

	ImageCacheDir    string
	ImageCacheMaxAge time.Duration

	PrefetchInterval time.Duration
	CORSOrigins      string
}

var AppConfig *Config

func Load() {
	_ = godotenv.Load()

	AppConfig = FromEnv()
	if err := AppConfig.Validate(); err != nil {
		log.Fatal(err)
	}
}

// FromEnv reads the configuration without validating it
func FromEnv() *Config {
	return &Config{
		Port:     GetEnv("PORT", "3000"),
		Env:      GetEnv("ENV", "development"),
		LogLevel: GetEnv("LOG_LEVEL", "info"),

		DBPath:       GetEnv("DB_PATH", "./data/appcommerce.db"),
		CacheBackend: strings.ToLower(GetEnv("CACHE_BACKEND", CacheSQLite)),
		RedisAddr:    GetEnv("REDIS_ADDR", "localhost:6379"),
		DocumentTTL:  GetDuration("DOCUMENT_CACHE_TTL", 7*24*time.Hour),

		GCPProjectID:    GetEnv("GCP_PROJECT_ID", ""),
		CredentialsFile: GetEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		StorageBucket:   GetEnv("STORAGE_BUCKET", ""),
		SignedURLTTL:    GetDuration("SIGNED_URL_TTL", 15*time.Minute),

		IdentityAPIKey:  GetEnv("IDENTITY_API_KEY", ""),
		IdentityBaseURL: GetEnv("IDENTITY_BASE_URL", ""),

		ImageCacheDir:    GetEnv("IMAGE_CACHE_DIR", "./data/images"),
		ImageCacheMaxAge: GetDuration("IMAGE_CACHE_MAX_AGE", 24*time.Hour),

		PrefetchInterval: GetDuration("PREFETCH_INTERVAL", 5*time.Minute),
		CORSOrigins:      GetEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.GCPProjectID == "" {
		errs = append(errs, errors.New("GCP_PROJECT_ID is required"))
	}
	if c.StorageBucket == "" {
		errs = append(errs, errors.New("STORAGE_BUCKET is required"))
	}
	if c.IdentityAPIKey == "" {
		errs = append(errs, errors.New("IDENTITY_API_KEY is required"))
	}
	if c.CacheBackend != CacheSQLite && c.CacheBackend != CacheRedis {
		errs = append(errs, errors.New("CACHE_BACKEND must be sqlite or redis"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetDuration parses values like "90s" or "15m". Unparseable values fall
// back to the default.
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid duration for %s: %q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}
