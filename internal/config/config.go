package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `validate:"oneof=production development"`
	HTTPAddr    string `validate:"required"`
	StoreDriver string `validate:"oneof=postgres memory"`
	DatabaseURI string `validate:"required_if=StoreDriver postgres"`
	Timezone    string `validate:"required"`
	Location    *time.Location

	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppAPIVersion    string `validate:"required"`

	TelegramToken string
	CronSecret    string

	SchedulerEnabled   bool
	SweepInterval      time.Duration `validate:"min=1s"`
	SweepWindow        time.Duration `validate:"min=1s"`
	StaleAfter         time.Duration `validate:"gtfield=SweepWindow"`
	RetryDelay         time.Duration `validate:"min=1s"`
	MaxDeliveryRetries int           `validate:"min=0,max=20"`
	DeliveryTimeout    time.Duration `validate:"min=1s"`

	ConfirmScope string        `validate:"oneof=group all"`
	FollowUpTTL  time.Duration `validate:"min=1s"`
}

var validate = validator.New()

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	cfg := &Config{
		Environment: getEnvOrDefault("APP_ENV", "development"),
		HTTPAddr:    getEnvOrDefault("HTTP_ADDR", ":8080"),
		StoreDriver: getEnvOrDefault("STORE_DRIVER", "postgres"),
		DatabaseURI: os.Getenv("DATABASE_URI"),
		Timezone:    getEnvOrDefault("TIMEZONE", "America/Sao_Paulo"),

		WhatsAppAccessToken:   getEnvOrFallback("WHATSAPP_ACCESS_TOKEN", "META_ACCESS_TOKEN"),
		WhatsAppPhoneNumberID: getEnvOrFallback("WHATSAPP_PHONE_NUMBER_ID", "META_PHONE_NUMBER_ID"),
		WhatsAppVerifyToken:   getEnvOrFallback("WHATSAPP_VERIFY_TOKEN", "WEBHOOK_VERIFY_TOKEN"),
		WhatsAppAppSecret:     os.Getenv("WHATSAPP_APP_SECRET"),
		WhatsAppAPIVersion:    getEnvOrDefault("WHATSAPP_API_VERSION", "v21.0"),

		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		CronSecret:    os.Getenv("CRON_SECRET"),

		ConfirmScope: strings.ToLower(getEnvOrDefault("CONFIRM_SCOPE", "group")),
	}

	var err error
	if cfg.SchedulerEnabled, err = getBoolOrDefault("SCHEDULER_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDurationOrDefault("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepWindow, err = getDurationOrDefault("SWEEP_WINDOW", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StaleAfter, err = getDurationOrDefault("STALE_AFTER", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = getDurationOrDefault("RETRY_DELAY", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxDeliveryRetries, err = getIntOrDefault("MAX_DELIVERY_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.DeliveryTimeout, err = getDurationOrDefault("DELIVERY_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.FollowUpTTL, err = getDurationOrDefault("FOLLOWUP_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrFallback reads key, then the older name it replaced.
func getEnvOrFallback(key, legacyKey string) string {
	return getEnvOrDefault(key, os.Getenv(legacyKey))
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}
