package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	CredentialSourceEnv    = "env"
	CredentialSourceSSM    = "ssm"
	CredentialSourceDynamo = "dynamodb"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendDynamo = "dynamodb"
)

type Shopify struct {
	StoreDomain       string
	APIVersion        string
	AccessToken       string
	AccessTokenEnc    string
	TokenKeyB64       string
	CredentialSource  string
	TokenParameter    string
	IntegrationsTable string
	RateLimitRPS      float64
	HTTPTimeout       time.Duration
}

type Cache struct {
	Backend   string
	TTL       time.Duration
	RedisAddr string
	Table     string
}

type Dashboard struct {
	PageSize          int
	OrdersPageSize    int
	MaxPages          int
	LowStockThreshold int
	MaxWindows        int
}

type Config struct {
	AppEnv   string
	LogLevel string

	Shopify   Shopify
	Cache     Cache
	Dashboard Dashboard

	ExportBucket   string
	ExportPrefix   string
	AlertsTopicArn string
}

func (c Config) IsDevelopment() bool { return c.AppEnv == "development" }

// Load reads configuration from the environment. A local .env file is
// applied first when present; in Lambda there is none.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppEnv:   getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Shopify: Shopify{
			StoreDomain:       getEnv("SHOPIFY_STORE_DOMAIN", ""),
			APIVersion:        getEnv("SHOPIFY_ADMIN_API_VERSION", "2024-04"),
			AccessToken:       getEnv("SHOPIFY_ADMIN_API_ACCESS_TOKEN", ""),
			AccessTokenEnc:    getEnv("SHOPIFY_ACCESS_TOKEN_ENC", ""),
			TokenKeyB64:       getEnv("TOKEN_ENC_KEY_B64", ""),
			CredentialSource:  strings.ToLower(getEnv("SHOPIFY_CREDENTIAL_SOURCE", CredentialSourceEnv)),
			TokenParameter:    getEnv("SHOPIFY_TOKEN_PARAMETER", ""),
			IntegrationsTable: getEnv("INTEGRATIONS_TABLE", ""),
			RateLimitRPS:      getFloat("SHOPIFY_RATE_LIMIT_RPS", 2),
			HTTPTimeout:       getDuration("SHOPIFY_HTTP_TIMEOUT", 30*time.Second),
		},
		Cache: Cache{
			Backend:   strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory)),
			TTL:       getDuration("CACHE_TTL", 5*time.Minute),
			RedisAddr: getEnv("REDIS_ADDR", ""),
			Table:     getEnv("CACHE_TABLE", ""),
		},
		Dashboard: Dashboard{
			PageSize:          getInt("DASHBOARD_PAGE_SIZE", 20),
			OrdersPageSize:    getInt("DASHBOARD_ORDERS_PAGE_SIZE", 100),
			MaxPages:          getInt("DASHBOARD_MAX_PAGES", 5),
			LowStockThreshold: getInt("LOW_STOCK_THRESHOLD", 10),
			MaxWindows:        getInt("DASHBOARD_MAX_WINDOWS", 16),
		},
		ExportBucket:   getEnv("EXPORT_BUCKET", ""),
		ExportPrefix:   getEnv("EXPORT_PREFIX", "product_sales/"),
		AlertsTopicArn: getEnv("ALERTS_TOPIC_ARN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

// getDuration accepts Go durations ("45s") or plain seconds ("45").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
