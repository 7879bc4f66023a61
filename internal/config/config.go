package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	MongoURI        string
	DBName          string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	PublicDir       string
	PublicBaseURL   string
	MaxUploadBytes  int64
	RedisAddr       string
	CartCacheTTL    time.Duration
	RabbitMQURL     string
	OrderExchange   string
	Rate            RateConfig
	CompensateSaga  bool
	CheckoutTimeout time.Duration
}

// RateConfig drives the exchange rate service.
type RateConfig struct {
	Staleness    time.Duration
	RefreshEvery time.Duration
	SanityFloor  float64
	DefaultRate  float64
	Sources      []string
	HTTPTimeout  time.Duration
	PyDolarURL   string
	DolarAPIURL  string
	ERAPIURL     string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	return Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		MongoURI:        requireEnv("MONGO_URI"),
		DBName:          getEnvOrDefault("DB_NAME", "storefront"),
		JWTSecret:       requireEnv("JWT_SECRET"),
		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 60, time.Minute),
		PublicDir:       getEnvOrDefault("PUBLIC_DIR", "./public"),
		PublicBaseURL:   getEnvOrDefault("PUBLIC_BASE_URL", "/public"),
		MaxUploadBytes:  int64(getIntEnv("MAX_UPLOAD_MB", 5)) << 20,
		RedisAddr:       getEnvOrDefault("REDIS_ADDR", ""),
		CartCacheTTL:    getDurationEnv("CART_CACHE_TTL", 15, time.Minute),
		RabbitMQURL:     getEnvOrDefault("RABBITMQ_URL", ""),
		OrderExchange:   getEnvOrDefault("ORDER_EXCHANGE", "storefront.orders"),
		CompensateSaga:  getBoolEnv("CHECKOUT_COMPENSATE", false),
		CheckoutTimeout: getDurationEnv("CHECKOUT_TIMEOUT", 30, time.Second),
		Rate: RateConfig{
			Staleness:    getDurationEnv("RATE_STALENESS_HOURS", 6, time.Hour),
			RefreshEvery: getDurationEnv("RATE_REFRESH_HOURS", 6, time.Hour),
			SanityFloor:  getFloatEnv("RATE_SANITY_FLOOR", 10),
			DefaultRate:  getFloatEnv("RATE_DEFAULT", 50),
			Sources:      getListEnv("RATE_SOURCES", []string{"pydolar", "dolarapi", "erapi"}),
			HTTPTimeout:  getDurationEnv("RATE_HTTP_TIMEOUT", 10, time.Second),
			PyDolarURL:   getEnvOrDefault("RATE_PYDOLAR_URL", "https://pydolarve.org/api/v1/dollar?page=bcv"),
			DolarAPIURL:  getEnvOrDefault("RATE_DOLARAPI_URL", "https://ve.dolarapi.com/v1/dolares/oficial"),
			ERAPIURL:     getEnvOrDefault("RATE_ERAPI_URL", "https://open.er-api.com/v6/latest/USD"),
		},
	}
}
