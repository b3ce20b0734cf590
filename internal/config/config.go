package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Business BusinessConfig
	Payment  PaymentConfig
	OCR      OCRConfig
}

type HTTPConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string

	// Startup-time connection retries, not per-request.
	RetryCount int
	RetryDelay time.Duration
}

// BusinessConfig carries the merchant facts embedded in payment instructions
// and verified against receipts. Passed explicitly to the lifecycle manager
// instead of being read from the environment at call sites.
type BusinessConfig struct {
	Name          string
	BankName      string
	AccountNumber string
	AccountName   string
	Currency      string
}

type PaymentConfig struct {
	// InstructionTTL is how long issued payment instructions stay valid.
	InstructionTTL      time.Duration
	CardRedirectBaseURL string
}

type OCRConfig struct {
	Provider       string
	OCRSpaceAPIKey string
}

func Load() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port: getEnvOrDefault("PORT", "8004"),
		},
		Database: DatabaseConfig{
			Host:       getEnvOrDefault("DB_HOST", "localhost"),
			Port:       getEnvOrDefault("DB_PORT", "5432"),
			User:       getEnvOrDefault("DB_USER", "postgres"),
			Password:   getEnvOrDefault("DB_PASSWORD", "postgres"),
			Name:       getEnvOrDefault("DB_NAME", "chatpay_db"),
			RetryCount: getEnvInt("DB_RETRY_COUNT", 5),
			RetryDelay: time.Second * 2,
		},
		Business: BusinessConfig{
			Name:          getEnvOrDefault("BUSINESS_NAME", "Demo Store"),
			BankName:      getEnvOrDefault("BUSINESS_BANK_NAME", "First Bank"),
			AccountNumber: getEnvOrDefault("BUSINESS_ACCOUNT_NUMBER", "1234567890"),
			AccountName:   getEnvOrDefault("BUSINESS_ACCOUNT_NAME", "Demo Store Ltd"),
			Currency:      getEnvOrDefault("BUSINESS_CURRENCY", "NGN"),
		},
		Payment: PaymentConfig{
			InstructionTTL:      time.Minute * time.Duration(getEnvInt("PAYMENT_TIMEOUT_MINUTES", 30)),
			CardRedirectBaseURL: getEnvOrDefault("CARD_REDIRECT_BASE_URL", "https://pay.example.com/checkout"),
		},
		OCR: OCRConfig{
			Provider:       getEnvOrDefault("OCR_PROVIDER", "tesseract"),
			OCRSpaceAPIKey: getEnvOrDefault("OCRSPACE_API_KEY", ""),
		},
	}
}

func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
