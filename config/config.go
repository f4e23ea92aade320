package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры движка резервирования.
type Config struct {
	DatabaseURL string
	ServerPort  int

	JWTSecretKey string
	AdminKeyHash string

	PaymentAPIBaseURL    string
	PaymentAPIKey        string
	PaymentWebhookSecret string

	BaseFeeCents      int
	NonmemberFeeCents int
	DefaultMaxSlots   int
	OfferTTL          time.Duration

	CheckoutSuccessURL string
	CheckoutCancelURL  string

	PromotionSweepInterval time.Duration

	EntryRateLimit  int
	EntryRateWindow time.Duration

	// Пустой RedisURL переключает лимитер на память одного процесса.
	RedisURL string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTSecretKey:         os.Getenv("JWT_SECRET_KEY"),
		AdminKeyHash:         os.Getenv("ADMIN_KEY_HASH"),
		PaymentAPIBaseURL:    os.Getenv("PAYMENT_API_BASE_URL"),
		PaymentAPIKey:        os.Getenv("PAYMENT_API_KEY"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		CheckoutSuccessURL:   os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:    os.Getenv("CHECKOUT_CANCEL_URL"),
		RedisURL:             os.Getenv("REDIS_URL"),
		R2AccountID:          os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:        os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:    os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:         os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:      os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	for name, value := range map[string]string{
		"DATABASE_URL":           cfg.DatabaseURL,
		"JWT_SECRET_KEY":         cfg.JWTSecretKey,
		"ADMIN_KEY_HASH":         cfg.AdminKeyHash,
		"PAYMENT_API_BASE_URL":   cfg.PaymentAPIBaseURL,
		"PAYMENT_API_KEY":        cfg.PaymentAPIKey,
		"PAYMENT_WEBHOOK_SECRET": cfg.PaymentWebhookSecret,
	} {
		if value == "" {
			return nil, fmt.Errorf("%s environment variable is not set", name)
		}
	}

	var err error
	if cfg.ServerPort, err = intEnv("SERVER_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", cfg.ServerPort)
	}

	if cfg.BaseFeeCents, err = intEnv("BASE_FEE_CENTS", 2500); err != nil {
		return nil, err
	}
	if cfg.NonmemberFeeCents, err = intEnv("NONMEMBER_FEE_CENTS", 4000); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxSlots, err = intEnv("DEFAULT_MAX_SLOTS", 32); err != nil {
		return nil, err
	}
	if cfg.EntryRateLimit, err = intEnv("ENTRY_RATE_LIMIT", 10); err != nil {
		return nil, err
	}

	offerTTLMinutes, err := intEnv("OFFER_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.OfferTTL = time.Duration(offerTTLMinutes) * time.Minute

	if cfg.PromotionSweepInterval, err = durationEnv("PROMOTION_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.EntryRateWindow, err = durationEnv("ENTRY_RATE_WINDOW", time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return value, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return value, nil
}
